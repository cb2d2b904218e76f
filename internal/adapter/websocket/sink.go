package websocket

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/imupulse/internal/domain"
)

const (
	writeDeadline = 5 * time.Second
	pingInterval  = 30 * time.Second
	pongDeadline  = 60 * time.Second
)

// Sink writes readings to one WebSocket connection. Send and the ping loop
// share the connection, so writes are serialized.
type Sink struct {
	conn  *websocket.Conn
	clock clockwork.Clock

	writeMu sync.Mutex
}

func newSink(conn *websocket.Conn, clock clockwork.Clock) *Sink {
	return &Sink{conn: conn, clock: clock}
}

// Send writes r as one text frame.
func (s *Sink) Send(r domain.Reading) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal reading: %w", err)
	}
	if err := s.write(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrSubscriberGone, err)
	}
	return nil
}

func (s *Sink) ping() error {
	return s.write(websocket.PingMessage, nil)
}

func (s *Sink) closeWithReason(code int, reason string) {
	_ = s.write(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
}

func (s *Sink) write(messageType int, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_ = s.conn.SetWriteDeadline(s.clock.Now().Add(writeDeadline))
	return s.conn.WriteMessage(messageType, data)
}

func (s *Sink) configurePongHandler() {
	s.extendReadDeadline()
	s.conn.SetPongHandler(func(string) error {
		s.extendReadDeadline()
		return nil
	})
}

func (s *Sink) extendReadDeadline() {
	_ = s.conn.SetReadDeadline(s.clock.Now().Add(pongDeadline))
}
