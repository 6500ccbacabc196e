package server

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/coder/websocket"

	"github.com/voicebridge-ai/voicebridge/internal/session"
)

// Compile-time assertion that wsConn satisfies session.Conn.
var _ session.Conn = (*wsConn)(nil)

// wsConn wraps a websocket connection with a write mutex so the transcript
// loop, the translation worker and the heartbeat can share one outbound
// channel safely.
type wsConn struct {
	mu sync.Mutex
	c  *websocket.Conn
}

func newWSConn(c *websocket.Conn) *wsConn {
	return &wsConn{c: c}
}

// WriteJSON marshals v and sends it as one text frame. Writes are
// serialized; marshalling happens outside the lock.
func (w *wsConn) WriteJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.c.Write(ctx, websocket.MessageText, data)
}

// Close performs a normal websocket closure.
func (w *wsConn) Close() error {
	return w.c.Close(websocket.StatusNormalClosure, "")
}

func (w *wsConn) closeWith(code websocket.StatusCode, reason string) {
	_ = w.c.Close(code, reason)
}
