package ws

import (
	"sync"

	"github.com/google/uuid"
)

// clientConn is the subset of *websocket.Conn the hub writes to. Narrowed
// so tests can substitute an in-memory connection.
type clientConn interface {
	WriteJSON(v any) error
	Close() error
}

// Session is one live connection's runtime state, distinct from the durable
// user record. A user may hold several sessions at once (multiple tabs,
// reconnect races); each gets its own ID.
type Session struct {
	ID     string
	UserID int64

	mu   sync.Mutex
	conn clientConn
}

func NewSession(userID int64, conn clientConn) *Session {
	return &Session{
		ID:     uuid.NewString(),
		UserID: userID,
		conn:   conn,
	}
}

// Send writes a JSON frame to the client. Writes are serialized because the
// underlying websocket permits only one concurrent writer.
func (s *Session) Send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(v)
}

func (s *Session) Close() error {
	return s.conn.Close()
}
