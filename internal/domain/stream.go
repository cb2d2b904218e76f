package domain

import "context"

// Sink accepts one Reading at a time on behalf of a live subscriber.
// A non-nil error means the subscriber is gone and must not be written again.
type Sink interface {
	Send(r Reading) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(r Reading) error

func (f SinkFunc) Send(r Reading) error { return f(r) }

// Publisher hands a Reading to every live subscriber.
type Publisher interface {
	Publish(r Reading)
}

// LineProducer delivers complete text lines from a live source. Run blocks
// until ctx is cancelled or the source ends.
type LineProducer interface {
	Run(ctx context.Context, emit func(line string)) error
}

// ReadingQuery answers point-in-time "last n readings" requests against a
// logical data source.
type ReadingQuery interface {
	Query(ctx context.Context, source string, n int) ([]Reading, error)
}
