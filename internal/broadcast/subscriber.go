package broadcast

import (
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/imupulse/internal/adapter/metrics"
	"github.com/pscheid92/imupulse/internal/domain"
)

// Subscriber is one live consumer attached to the broadcaster.
type Subscriber struct {
	id      uuid.UUID
	sink    domain.Sink
	clock   clockwork.Clock
	metrics *metrics.BroadcastMetrics
	onGone  func(id uuid.UUID, reason string)

	queue    chan domain.Reading
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func newSubscriber(id uuid.UUID, sink domain.Sink, queueSize int, clock clockwork.Clock, m *metrics.BroadcastMetrics, onGone func(uuid.UUID, string)) *Subscriber {
	s := &Subscriber{
		id:      id,
		sink:    sink,
		clock:   clock,
		metrics: m,
		onGone:  onGone,
		queue:   make(chan domain.Reading, queueSize),
		done:    make(chan struct{}),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

// ID returns the subscriber's registry key.
func (s *Subscriber) ID() uuid.UUID {
	return s.id
}

// Done is closed once the subscriber has been removed, whether by
// Unsubscribe, a failed delivery or broadcaster shutdown.
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

// offer enqueues r without blocking. When the queue is full the oldest
// buffered reading is discarded to make room; the return value reports that.
// Only Publish calls offer, and Publish is serialized.
func (s *Subscriber) offer(r domain.Reading) (overflowed bool) {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.queue <- r:
		return false
	default:
	}

	select {
	case <-s.queue:
	default:
	}
	select {
	case s.queue <- r:
	default:
	}
	return true
}

func (s *Subscriber) run() {
	defer s.wg.Done()

	for {
		select {
		case r := <-s.queue:
			select {
			case <-s.done:
				return
			default:
			}

			start := s.clock.Now()
			if err := s.sink.Send(r); err != nil {
				// SubscriberGone: silent to the publisher and to everyone else.
				s.onGone(s.id, reasonSendFailed)
				return
			}
			if s.metrics != nil {
				s.metrics.SendDuration.Observe(s.clock.Since(start).Seconds())
				s.metrics.Deliveries.Inc()
			}
		case <-s.done:
			return
		}
	}
}

func (s *Subscriber) stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
}

func (s *Subscriber) wait() {
	s.wg.Wait()
}
