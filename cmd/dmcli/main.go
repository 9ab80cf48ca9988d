package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/wirechat-dm/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("dmcli: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	user := flag.String("user", "", "your user id; must match the token subject when -token is set")
	token := flag.String("token", "", "JWT from /api/login")
	to := flag.String("to", "", "user id to send messages to")
	flag.Parse()

	if *to == "" {
		return errors.New("-to is required")
	}
	if *user == "" {
		return errors.New("-user is required")
	}

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	onlinePayload, err := json.Marshal(proto.UserOnlineData{
		UserID:   *user,
		Token:    *token,
		Protocol: proto.ProtocolVersion,
	})
	if err != nil {
		return fmt.Errorf("marshal user-online: %w", err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeUserOnline, Data: onlinePayload}); err != nil {
		return fmt.Errorf("send user-online: %w", err)
	}

	fmt.Printf("Connected to %s, chatting with %s\n", *addr, *to)
	fmt.Println("Type messages and press Enter to send. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn, *to)
	}()

	writeLoop(ctx, conn, *user, *to)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

type outbound struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

func readLoop(ctx context.Context, conn *websocket.Conn, peer string) {
	for {
		var out outbound
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			// Treat expected shutdowns quietly.
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		if out.Type == proto.OutboundTypeError && out.Error != nil {
			fmt.Printf("error %s: %s\n", out.Error.Code, out.Error.Msg)
			continue
		}

		var msg proto.EventDirectMessage
		if err := json.Unmarshal(out.Data, &msg); err != nil {
			log.Printf("unmarshal %s: %v", out.Event, err)
			continue
		}
		ts := time.UnixMilli(msg.CreatedAt).Format(time.Kitchen)

		switch out.Event {
		case proto.EventReceiveMessage:
			if msg.SenderID != peer {
				fmt.Printf("[%s] (from %s) %s\n", ts, msg.SenderID, msg.Message)
				continue
			}
			fmt.Printf("[%s] %s: %s\n", ts, msg.SenderID, msg.Message)
		case proto.EventMessageSent:
			fmt.Printf("[%s] sent %s\n", ts, msg.MessageID)
		default:
			fmt.Printf("event=%s data=%s\n", out.Event, string(out.Data))
		}
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn, user, to string) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}

			payload, err := json.Marshal(proto.SendMessageData{SenderID: user, ReceiverID: to, Message: text})
			if err != nil {
				log.Printf("marshal send-message: %v", err)
				return
			}
			if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeSendMessage, Data: payload}); err != nil {
				log.Printf("send error: %v", err)
				return
			}
		}
	}
}
