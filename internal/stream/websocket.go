package stream

import (
	"context"
	"encoding/json"
	"time"

	"nhooyr.io/websocket"
)

const writeTimeout = 5 * time.Second

// frame is one WebSocket text message.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// WebSocketSink sends the same notifications as SSESink, one JSON frame per
// message, for clients behind proxies that break event streams.
type WebSocketSink struct {
	conn *websocket.Conn
}

func NewWebSocketSink(conn *websocket.Conn) *WebSocketSink {
	return &WebSocketSink{conn: conn}
}

func (s *WebSocketSink) Update(ctx context.Context, payload []byte) error {
	return s.write(ctx, frame{Event: "update", Data: payload})
}

func (s *WebSocketSink) Error(ctx context.Context, msg ErrorMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return s.write(ctx, frame{Event: "error", Data: data})
}

func (s *WebSocketSink) KeepAlive(ctx context.Context) error {
	return s.write(ctx, frame{Event: "ping"})
}

func (s *WebSocketSink) write(ctx context.Context, f frame) error {
	b, err := json.Marshal(f)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return s.conn.Write(ctx, websocket.MessageText, b)
}
