package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/imupulse/internal/adapter/metrics"
	"github.com/pscheid92/imupulse/internal/domain"
	"github.com/pscheid92/imupulse/internal/platform/correlation"
	"github.com/pscheid92/imupulse/internal/reading"
)

const defaultPollInterval = 500 * time.Millisecond

// LinePoller returns the complete lines appended since its previous call.
type LinePoller interface {
	Poll() ([]string, error)
}

// Watcher turns lines appended to the log into published readings. It polls
// on a fixed interval so the log can be written by anything, not only by
// this process.
type Watcher struct {
	poller    LinePoller
	publisher domain.Publisher
	clock     clockwork.Clock
	interval  time.Duration
	metrics   *metrics.PipelineMetrics
}

// NewWatcher creates a watcher. interval <= 0 uses 500ms; m may be nil.
func NewWatcher(poller LinePoller, publisher domain.Publisher, clock clockwork.Clock, interval time.Duration, m *metrics.PipelineMetrics) *Watcher {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Watcher{
		poller:    poller,
		publisher: publisher,
		clock:     clock,
		interval:  interval,
		metrics:   m,
	}
}

// Run polls until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()

	slog.InfoContext(ctx, "Log watcher started", "interval", w.interval)
	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Log watcher stopped")
			return
		case <-ticker.Chan():
			w.poll(ctx)
		}
	}
}

func (w *Watcher) poll(ctx context.Context) {
	start := w.clock.Now()

	lines, err := w.poller.Poll()
	if err != nil {
		// The next tick retries from the same offset.
		slog.WarnContext(ctx, "Watcher: poll failed", "error", err)
		if w.metrics != nil {
			w.metrics.PollErrors.Inc()
		}
		return
	}
	if len(lines) == 0 {
		return
	}

	pollCtx := correlation.WithID(ctx, correlation.NewID())
	observedAt := w.clock.Now()
	published, malformed := 0, 0
	for _, line := range lines {
		if reading.IsBlank(line) {
			continue
		}
		r, bad := reading.ParseDetailed(line, observedAt)
		malformed += bad
		w.publisher.Publish(r)
		published++
	}

	if w.metrics != nil {
		w.metrics.LinesTailed.Add(float64(len(lines)))
		w.metrics.MalformedFields.Add(float64(malformed))
		w.metrics.PollDuration.Observe(w.clock.Since(start).Seconds())
	}
	if malformed > 0 {
		slog.DebugContext(pollCtx, "Watcher: defaulted malformed fields to zero", "fields", malformed)
	}
	slog.DebugContext(pollCtx, "Watcher: published readings", "lines", len(lines), "published", published)
}
