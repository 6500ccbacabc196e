package session

import "context"

// Listener is a passive session that receives translation broadcasts for
// exactly one speaker uid.
type Listener struct {
	id      string
	follows string
	conn    Conn
}

// NewListener builds a listener identified by its own id, following the
// given speaker uid.
func NewListener(id, follows string, conn Conn) *Listener {
	return &Listener{id: id, follows: follows, conn: conn}
}

// ID returns the listener's own opaque id.
func (l *Listener) ID() string { return l.id }

// Follows returns the speaker uid this listener subscribes to.
func (l *Listener) Follows() string { return l.follows }

// Send delivers one message to the listener.
func (l *Listener) Send(ctx context.Context, msg any) error {
	return l.conn.WriteJSON(ctx, msg)
}

// Close closes the underlying connection.
func (l *Listener) Close() error { return l.conn.Close() }
