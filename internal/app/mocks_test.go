package app

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/pscheid92/imupulse/internal/domain"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scriptedProducer emits its lines, then blocks until cancelled unless
// finish is set.
type scriptedProducer struct {
	lines  []string
	finish bool
	err    error
}

func (p *scriptedProducer) Run(ctx context.Context, emit func(string)) error {
	for _, line := range p.lines {
		emit(line)
	}
	if p.finish {
		return p.err
	}
	<-ctx.Done()
	return nil
}

type mockFactory struct {
	newFn func(id string, rate int) (domain.LineProducer, error)
}

func (m *mockFactory) New(id string, rate int) (domain.LineProducer, error) {
	return m.newFn(id, rate)
}

func factoryFor(p domain.LineProducer) *mockFactory {
	return &mockFactory{newFn: func(string, int) (domain.LineProducer, error) { return p, nil }}
}

type mockFeed struct {
	mu        sync.Mutex
	published []domain.Reading
	count     int
}

func (m *mockFeed) Publish(r domain.Reading) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, r)
}

func (m *mockFeed) Latest() (domain.Reading, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.published) == 0 {
		return domain.Reading{}, false
	}
	return m.published[len(m.published)-1], true
}

func (m *mockFeed) Count() int { return m.count }

func (m *mockFeed) getPublished() []domain.Reading {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Reading, len(m.published))
	copy(out, m.published)
	return out
}

type mockQuery struct {
	queryFn func(ctx context.Context, source string, n int) ([]domain.Reading, error)
}

func (m *mockQuery) Query(ctx context.Context, source string, n int) ([]domain.Reading, error) {
	return m.queryFn(ctx, source, n)
}

// failingAppender rejects every append.
type failingAppender struct {
	mu     sync.Mutex
	closed bool
}

func (a *failingAppender) Append(string) error {
	return errors.Join(domain.ErrTransientIO, errors.New("disk full"))
}

func (a *failingAppender) Path() string { return "broken.csv" }

func (a *failingAppender) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}

func (a *failingAppender) isClosed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

type mockPoller struct {
	pollFn func() ([]string, error)
}

func (m *mockPoller) Poll() ([]string, error) { return m.pollFn() }
