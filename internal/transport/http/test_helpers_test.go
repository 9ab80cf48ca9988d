package http

import (
	"bytes"
	"context"
	"encoding/json"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-dm/internal/auth"
	"github.com/vovakirdan/wirechat-dm/internal/config"
	"github.com/vovakirdan/wirechat-dm/internal/core"
	"github.com/vovakirdan/wirechat-dm/internal/proto"
	"github.com/vovakirdan/wirechat-dm/internal/service/chat"
	"github.com/vovakirdan/wirechat-dm/internal/store/sqlite"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	cfg    config.Config
	store  *sqlite.SQLiteStore
	auth   *auth.Service
	hub    *core.Hub
	server *stdhttp.Server
	ts     *httptest.Server
}

// newTestEnv wires the full HTTP stack over an in-memory SQLite store.
func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.JWTSecret = "test-secret"
	cfg.ReadHeaderTimeout = time.Second
	if mutate != nil {
		mutate(&cfg)
	}

	st, err := sqlite.NewWithSetup(":memory:", sqlite.ApplySchema)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	disabledLogger := zerolog.New(nil)

	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	})
	chatService := chat.New(st, &disabledLogger,
		chat.WithMaxMessageLength(cfg.MaxMessageLength),
		chat.WithMembershipCheck(cfg.EnforceThreadMembership),
	)
	hub := core.NewHub(chatService, nil, &disabledLogger)

	server := NewServer(hub, authService, chatService, st, &cfg, &disabledLogger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{
		cfg:    cfg,
		store:  st,
		auth:   authService,
		hub:    hub,
		server: server,
		ts:     ts,
	}
}

func (e *testEnv) register(t *testing.T, username string) *auth.Session {
	t.Helper()

	session, err := e.auth.Register(context.Background(), username, "password123", auth.Profile{
		Name:  strings.ToUpper(username[:1]) + username[1:],
		Email: username + "@example.com",
	})
	if err != nil {
		t.Fatalf("failed to register %s: %v", username, err)
	}
	return session
}

type apiEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (e *testEnv) doJSON(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, apiEnvelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp := httptest.NewRecorder()
	e.server.Handler.ServeHTTP(resp, req)

	var envelope apiEnvelope
	_ = json.Unmarshal(resp.Body.Bytes(), &envelope)
	return resp, envelope
}

func (e *testEnv) dial(t *testing.T, ctx context.Context) *websocket.Conn {
	t.Helper()

	wsURL := strings.Replace(e.ts.URL, "http", "ws", 1) + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func (e *testEnv) waitOnline(t *testing.T, userID string) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := e.hub.Presence().Lookup(userID); ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s to come online", userID)
}

func sendFrame(t *testing.T, ctx context.Context, conn *websocket.Conn, typ string, data any) {
	t.Helper()

	payload, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal %s: %v", typ, err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: payload}); err != nil {
		t.Fatalf("send %s: %v", typ, err)
	}
}

type wireOutbound struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func readOutbound(t *testing.T, ctx context.Context, conn *websocket.Conn) wireOutbound {
	t.Helper()

	var outbound wireOutbound
	if err := wsjson.Read(ctx, conn, &outbound); err != nil {
		t.Fatalf("read outbound: %v", err)
	}
	return outbound
}

func readDirectMessage(t *testing.T, ctx context.Context, conn *websocket.Conn, event string) proto.EventDirectMessage {
	t.Helper()

	outbound := readOutbound(t, ctx, conn)
	if outbound.Type != proto.OutboundTypeEvent || outbound.Event != event {
		t.Fatalf("expected %s event, got %+v", event, outbound)
	}
	var msg proto.EventDirectMessage
	if err := json.Unmarshal(outbound.Data, &msg); err != nil {
		t.Fatalf("unmarshal event data: %v", err)
	}
	return msg
}
