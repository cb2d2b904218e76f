package websocket

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/imupulse/internal/broadcast"
	"github.com/pscheid92/imupulse/internal/domain"
)

// Feed registers live subscribers.
type Feed interface {
	Subscribe(sink domain.Sink) (*broadcast.Subscriber, error)
	Unsubscribe(id uuid.UUID)
}

// Handler upgrades requests and attaches each connection to the feed until
// either side goes away.
type Handler struct {
	feed     Feed
	clock    clockwork.Clock
	upgrader websocket.Upgrader
}

func NewHandler(feed Feed, clock clockwork.Clock, checkOrigin func(r *http.Request) bool) *Handler {
	return &Handler{
		feed:  feed,
		clock: clock,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response.
		slog.DebugContext(ctx, "WebSocket upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	sink := newSink(conn, h.clock)
	sub, err := h.feed.Subscribe(sink)
	if err != nil {
		code := websocket.CloseInternalServerErr
		if errors.Is(err, domain.ErrTooManySubscribers) {
			code = websocket.CloseTryAgainLater
		}
		slog.WarnContext(ctx, "WebSocket subscribe rejected", "error", err)
		sink.closeWithReason(code, "subscribe rejected")
		return
	}
	defer h.feed.Unsubscribe(sub.ID())

	slog.InfoContext(ctx, "WebSocket subscriber connected", "subscriber_id", sub.ID().String(), "remote_addr", r.RemoteAddr)

	readDone := make(chan struct{})
	go h.keepAlive(sink, sub, readDone)

	sink.configurePongHandler()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	close(readDone)

	slog.InfoContext(ctx, "WebSocket subscriber disconnected", "subscriber_id", sub.ID().String())
}

// keepAlive pings the client and closes the connection when the subscriber is
// removed or a ping fails, which ends the read loop.
func (h *Handler) keepAlive(sink *Sink, sub *broadcast.Subscriber, readDone <-chan struct{}) {
	ticker := h.clock.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-readDone:
			return
		case <-sub.Done():
			_ = sink.conn.Close()
			return
		case <-ticker.Chan():
			if err := sink.ping(); err != nil {
				_ = sink.conn.Close()
				return
			}
		}
	}
}
