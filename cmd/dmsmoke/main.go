package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/wirechat-dm/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("dmsmoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	sender := flag.String("from", "", "sender user id")
	receiver := flag.String("to", "", "receiver user id")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	if *sender == "" || *receiver == "" {
		return fmt.Errorf("-from and -to are required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	from, err := connect(ctx, *addr, *sender)
	if err != nil {
		return fmt.Errorf("connect %s: %w", *sender, err)
	}
	defer from.Close(websocket.StatusNormalClosure, "bye")

	to, err := connect(ctx, *addr, *receiver)
	if err != nil {
		return fmt.Errorf("connect %s: %w", *receiver, err)
	}
	defer to.Close(websocket.StatusNormalClosure, "bye")

	// user-online has no acknowledgement; give the server a moment to register both.
	time.Sleep(200 * time.Millisecond)

	payload, err := json.Marshal(proto.SendMessageData{SenderID: *sender, ReceiverID: *receiver, Message: *text})
	if err != nil {
		return fmt.Errorf("marshal send-message: %w", err)
	}
	if err := wsjson.Write(ctx, from, proto.Inbound{Type: proto.InboundTypeSendMessage, Data: payload}); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	received, err := expect(ctx, to, proto.EventReceiveMessage)
	if err != nil {
		return err
	}
	fmt.Printf("receive-message: thread=%s id=%s from=%s text=%q\n",
		received.ThreadID, received.MessageID, received.SenderID, received.Message)

	sent, err := expect(ctx, from, proto.EventMessageSent)
	if err != nil {
		return err
	}
	fmt.Printf("message-sent: thread=%s id=%s\n", sent.ThreadID, sent.MessageID)

	if sent.MessageID != received.MessageID {
		return fmt.Errorf("ack %s does not match delivery %s", sent.MessageID, received.MessageID)
	}
	fmt.Println("OK")
	return nil
}

func connect(ctx context.Context, addr, userID string) (*websocket.Conn, error) {
	conn, _, err := websocket.Dial(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	payload, err := json.Marshal(proto.UserOnlineData{UserID: userID, Protocol: proto.ProtocolVersion})
	if err != nil {
		conn.CloseNow()
		return nil, fmt.Errorf("marshal user-online: %w", err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeUserOnline, Data: payload}); err != nil {
		conn.CloseNow()
		return nil, fmt.Errorf("send user-online: %w", err)
	}
	return conn, nil
}

func expect(ctx context.Context, conn *websocket.Conn, event string) (proto.EventDirectMessage, error) {
	for {
		var out struct {
			Type  string          `json:"type"`
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
			Error *proto.Error    `json:"error"`
		}
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			return proto.EventDirectMessage{}, fmt.Errorf("read %s: %w", event, err)
		}
		if out.Error != nil {
			return proto.EventDirectMessage{}, fmt.Errorf("server error %s: %s", out.Error.Code, out.Error.Msg)
		}
		if out.Event != event {
			fmt.Printf("skipping event=%s\n", out.Event)
			continue
		}

		var msg proto.EventDirectMessage
		if err := json.Unmarshal(out.Data, &msg); err != nil {
			return msg, fmt.Errorf("unmarshal %s: %w", event, err)
		}
		return msg, nil
	}
}
