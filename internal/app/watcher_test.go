package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/pscheid92/imupulse/internal/adapter/metrics"
	"github.com/pscheid92/imupulse/internal/domain"
	"github.com/pscheid92/imupulse/internal/logfile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appendLines(t *testing.T, path, data string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(data)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

// startWatcher runs w until the test ends and waits for it to exit.
func startWatcher(t *testing.T, w *Watcher, clock *clockwork.FakeClock) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	require.NoError(t, clock.BlockUntilContext(t.Context(), 1))
}

func TestWatcher_PublishesAppendedLinesInOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "readings.csv")
	appendLines(t, path, "9,9,9\n")

	cursor, err := logfile.NewCursor(path)
	require.NoError(t, err)

	clock := clockwork.NewFakeClock()
	feed := &mockFeed{}
	m := metrics.NewPipelineMetrics(prometheus.NewRegistry())
	w := NewWatcher(cursor, feed, clock, 0, m)
	startWatcher(t, w, clock)

	appendLines(t, path, "1.0,2.0,3.0\nbad,2.0,3.0\n\n4.0,5.0,6.0\n")
	clock.Advance(defaultPollInterval)

	require.Eventually(t, func() bool { return len(feed.getPublished()) == 3 }, time.Second, 5*time.Millisecond)
	got := feed.getPublished()
	assert.Equal(t, []float64{1, 0, 4}, []float64{got[0].Ax, got[1].Ax, got[2].Ax})
	assert.Equal(t, clock.Now(), got[0].ObservedAt)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MalformedFields))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.LinesTailed))
}

func TestWatcher_SplitLineWaitsForTerminator(t *testing.T) {
	path := filepath.Join(t.TempDir(), "readings.csv")
	cursor, err := logfile.NewCursor(path)
	require.NoError(t, err)

	clock := clockwork.NewFakeClock()
	feed := &mockFeed{}
	w := NewWatcher(cursor, feed, clock, 100*time.Millisecond, nil)
	startWatcher(t, w, clock)

	appendLines(t, path, "1.5,2.")
	clock.Advance(100 * time.Millisecond)
	require.Eventually(t, func() bool { return cursor.Offset() == 6 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, feed.getPublished())

	appendLines(t, path, "5,3.5\n")
	clock.Advance(100 * time.Millisecond)

	require.Eventually(t, func() bool { return len(feed.getPublished()) == 1 }, time.Second, 5*time.Millisecond)
	r := feed.getPublished()[0]
	assert.Equal(t, "1.5,2.5,3.5", r.Raw)
	assert.Equal(t, 2.5, r.Ay)
}

func TestWatcher_PollErrorIsCountedAndRetried(t *testing.T) {
	calls := make(chan struct{}, 4)
	first := true
	poller := &mockPoller{pollFn: func() ([]string, error) {
		defer func() { calls <- struct{}{} }()
		if first {
			first = false
			return nil, domain.ErrTransientIO
		}
		return []string{"1,2,3"}, nil
	}}

	clock := clockwork.NewFakeClock()
	feed := &mockFeed{}
	m := metrics.NewPipelineMetrics(prometheus.NewRegistry())
	w := NewWatcher(poller, feed, clock, time.Second, m)
	startWatcher(t, w, clock)

	clock.Advance(time.Second)
	<-calls
	assert.Empty(t, feed.getPublished())

	clock.Advance(time.Second)
	<-calls
	require.Eventually(t, func() bool { return len(feed.getPublished()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PollErrors))
}

func TestWatcher_StopsOnCancel(t *testing.T) {
	poller := &mockPoller{pollFn: func() ([]string, error) { return nil, errors.New("unused") }}
	w := NewWatcher(poller, &mockFeed{}, clockwork.NewFakeClock(), time.Second, nil)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
}
