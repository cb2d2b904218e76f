package broadcast

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/imupulse/internal/adapter/metrics"
	"github.com/pscheid92/imupulse/internal/domain"
)

const (
	defaultQueueSize = 16
	stopTimeout      = 10 * time.Second
)

// Removal reasons, used for logs and the subscribers_removed_total metric.
const (
	reasonUnsubscribed = "unsubscribed"
	reasonSendFailed   = "send_failed"
	reasonShutdown     = "shutdown"
)

// ErrStopped is returned by Subscribe once the broadcaster has been stopped.
var ErrStopped = errors.New("broadcaster stopped")

// Options configures a Broadcaster. Zero values use defaults.
type Options struct {
	// QueueSize is the per-subscriber buffer; on overflow the oldest reading is dropped.
	QueueSize int
	// MaxSubscribers caps concurrent subscribers (0 = unlimited).
	MaxSubscribers int
	Metrics        *metrics.BroadcastMetrics
}

// Broadcaster replicates every published Reading to each registered subscriber
// exactly once, in publish order.
type Broadcaster struct {
	clock          clockwork.Clock
	queueSize      int
	maxSubscribers int
	metrics        *metrics.BroadcastMetrics

	mu          sync.Mutex
	subscribers map[uuid.UUID]*Subscriber
	stopped     bool

	// publishMu serializes Publish so every subscriber sees one global order.
	publishMu sync.Mutex
	latest    atomic.Pointer[domain.Reading]
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster(clock clockwork.Clock, opts Options) *Broadcaster {
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Broadcaster{
		clock:          clock,
		queueSize:      queueSize,
		maxSubscribers: opts.MaxSubscribers,
		metrics:        opts.Metrics,
		subscribers:    make(map[uuid.UUID]*Subscriber),
	}
}

// Subscribe registers sink and starts its writer goroutine. The subscriber
// receives every reading published after this call returns, until it is
// removed.
func (b *Broadcaster) Subscribe(sink domain.Sink) (*Subscriber, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return nil, ErrStopped
	}
	if b.maxSubscribers > 0 && len(b.subscribers) >= b.maxSubscribers {
		slog.Warn("Rejecting subscriber: max subscribers reached", "max_subscribers", b.maxSubscribers)
		return nil, fmt.Errorf("%w: limit %d", domain.ErrTooManySubscribers, b.maxSubscribers)
	}

	sub := newSubscriber(uuid.New(), sink, b.queueSize, b.clock, b.metrics, b.remove)
	b.subscribers[sub.id] = sub

	if b.metrics != nil {
		b.metrics.ActiveSubscribers.Set(float64(len(b.subscribers)))
	}
	slog.Debug("Subscriber registered", "subscriber_id", sub.id.String(), "total_subscribers", len(b.subscribers))
	return sub, nil
}

// Unsubscribe removes the subscriber with the given id. Readings published
// after Unsubscribe returns are never delivered to it. Unknown ids are ignored.
func (b *Broadcaster) Unsubscribe(id uuid.UUID) {
	b.remove(id, reasonUnsubscribed)
}

func (b *Broadcaster) remove(id uuid.UUID, reason string) {
	b.mu.Lock()
	sub, ok := b.subscribers[id]
	if ok {
		delete(b.subscribers, id)
	}
	remaining := len(b.subscribers)
	b.mu.Unlock()

	if !ok {
		return
	}
	sub.stop()

	if b.metrics != nil {
		b.metrics.ActiveSubscribers.Set(float64(remaining))
		b.metrics.SubscribersDropped.WithLabelValues(reason).Inc()
	}
	slog.Debug("Subscriber removed", "subscriber_id", id.String(), "reason", reason, "remaining_subscribers", remaining)
}

// Publish hands r to every current subscriber without blocking on any of them.
func (b *Broadcaster) Publish(r domain.Reading) {
	b.publishMu.Lock()
	defer b.publishMu.Unlock()

	b.latest.Store(&r)

	for _, sub := range b.snapshot() {
		if sub.offer(r) {
			slog.Debug("Subscriber queue full, dropped oldest reading", "subscriber_id", sub.id.String())
			if b.metrics != nil {
				b.metrics.QueueOverflows.Inc()
			}
		}
	}

	if b.metrics != nil {
		b.metrics.ReadingsPublished.Inc()
	}
}

func (b *Broadcaster) snapshot() []*Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := make([]*Subscriber, 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		subs = append(subs, sub)
	}
	return subs
}

// Latest returns the most recently published reading.
func (b *Broadcaster) Latest() (domain.Reading, bool) {
	r := b.latest.Load()
	if r == nil {
		return domain.Reading{}, false
	}
	return *r, true
}

// Count returns the number of registered subscribers.
func (b *Broadcaster) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// Stop removes every subscriber and waits for their writer goroutines to exit
// or for the stop timeout to pass. Subscribe fails afterwards.
func (b *Broadcaster) Stop() {
	b.mu.Lock()
	b.stopped = true
	subs := make([]*Subscriber, 0, len(b.subscribers))
	for id, sub := range b.subscribers {
		subs = append(subs, sub)
		delete(b.subscribers, id)
	}
	b.mu.Unlock()

	slog.Info("Broadcaster shutting down", "subscribers", len(subs))

	for _, sub := range subs {
		sub.stop()
	}
	if b.metrics != nil {
		b.metrics.ActiveSubscribers.Set(0)
		b.metrics.SubscribersDropped.WithLabelValues(reasonShutdown).Add(float64(len(subs)))
	}

	done := make(chan struct{})
	go func() {
		for _, sub := range subs {
			sub.wait()
		}
		close(done)
	}()

	timeout := b.clock.NewTimer(stopTimeout)
	defer timeout.Stop()

	select {
	case <-done:
		slog.Info("Broadcaster stopped gracefully", "disconnected_subscribers", len(subs))
	case <-timeout.Chan():
		slog.Warn("Broadcaster stop timeout exceeded, subscriber writers may have leaked",
			"timeout", stopTimeout,
			"subscribers", len(subs),
		)
	}
}
