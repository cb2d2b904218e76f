package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/imupulse/internal/domain"
)

const sseHeartbeatInterval = 15 * time.Second

var errStreamClosed = errors.New("stream closed")

func (s *Server) registerStreamRoutes() {
	s.echo.GET("/api/readings/stream", s.handleReadingStream)
	if s.websocketHandler != nil {
		s.echo.GET("/ws/readings", echo.WrapHandler(s.websocketHandler))
	}
}

// sseSink writes readings as server-sent events. The subscriber's writer
// goroutine and the heartbeat share the response, so writes are serialized,
// and nothing is written once the handler has returned.
type sseSink struct {
	mu     sync.Mutex
	res    *echo.Response
	closed bool
}

func (s *sseSink) Send(r domain.Reading) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal reading: %w", err)
	}
	return s.write("data: " + string(payload) + "\n\n")
}

func (s *sseSink) heartbeat() error {
	return s.write(": ping\n\n")
}

func (s *sseSink) write(frame string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errStreamClosed
	}
	if _, err := s.res.Write([]byte(frame)); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrSubscriberGone, err)
	}
	s.res.Flush()
	return nil
}

func (s *sseSink) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *Server) handleReadingStream(c echo.Context) error {
	ctx := c.Request().Context()

	res := c.Response()
	sink := &sseSink{res: res}

	// Held until the headers are out so the first Send cannot race them.
	sink.mu.Lock()
	sub, err := s.feed.Subscribe(sink)
	if err != nil {
		sink.mu.Unlock()
		return err
	}
	defer sink.close()
	defer s.feed.Unsubscribe(sub.ID())

	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.Header().Set("X-Accel-Buffering", "no")
	res.WriteHeader(http.StatusOK)
	res.Flush()
	sink.mu.Unlock()

	slog.InfoContext(ctx, "SSE subscriber connected", "subscriber_id", sub.ID().String())

	ticker := s.clock.NewTicker(sseHeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "SSE subscriber disconnected", "subscriber_id", sub.ID().String())
			return nil
		case <-sub.Done():
			slog.InfoContext(ctx, "SSE subscriber dropped", "subscriber_id", sub.ID().String())
			return nil
		case <-ticker.Chan():
			if err := sink.heartbeat(); err != nil {
				return nil //nolint:nilerr // client went away; nothing left to respond to
			}
		}
	}
}
