package logfile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pscheid92/imupulse/internal/adapter/metrics"
	"github.com/pscheid92/imupulse/internal/domain"
	"github.com/sony/gobreaker"
)

const (
	defaultFailureThreshold = 5
	defaultBreakerTimeout   = 30 * time.Second
)

// WriterOptions tunes the append circuit breaker. Zero values use defaults.
type WriterOptions struct {
	// FailureThreshold is the number of consecutive append failures that opens the breaker.
	FailureThreshold uint32
	// BreakerTimeout is how long the breaker stays open before a probe append is allowed.
	BreakerTimeout time.Duration
	Metrics        *metrics.PipelineMetrics
}

// Writer appends lines to a log file opened in append mode for the lifetime
// of an ingestion session.
type Writer struct {
	path    string
	file    *os.File
	mu      sync.Mutex
	breaker *gobreaker.CircuitBreaker
	metrics *metrics.PipelineMetrics
}

// OpenWriter opens (creating if needed) the log file at path for appending.
func OpenWriter(path string, opts WriterOptions) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}

	threshold := opts.FailureThreshold
	if threshold == 0 {
		threshold = defaultFailureThreshold
	}
	timeout := opts.BreakerTimeout
	if timeout <= 0 {
		timeout = defaultBreakerTimeout
	}

	w := &Writer{
		path:    path,
		file:    f,
		metrics: opts.Metrics,
	}
	w.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "log-append",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Append circuit breaker state changed",
				"breaker", name,
				"path", path,
				"from", from.String(),
				"to", to.String(),
			)
			if w.metrics != nil {
				w.metrics.AppendBreaker.Set(stateToFloat(to))
			}
		},
	})
	return w, nil
}

// Append writes line followed by a newline. Trailing line terminators already
// present on line are stripped first so every record ends in exactly one "\n".
// Failures wrap domain.ErrTransientIO.
func (w *Writer) Append(line string) error {
	record := strings.TrimRight(line, "\r\n") + "\n"

	w.mu.Lock()
	defer w.mu.Unlock()

	_, err := w.breaker.Execute(func() (interface{}, error) {
		_, err := w.file.WriteString(record)
		return nil, err
	})
	if err != nil {
		if w.metrics != nil {
			w.metrics.AppendFailures.Inc()
		}
		return fmt.Errorf("%w: append to %s: %w", domain.ErrTransientIO, w.path, err)
	}

	if w.metrics != nil {
		w.metrics.LinesAppended.Inc()
	}
	return nil
}

// Path returns the log file path.
func (w *Writer) Path() string {
	return w.path
}

// BreakerState reports the append circuit breaker state.
func (w *Writer) BreakerState() gobreaker.State {
	return w.breaker.State()
}

// Close syncs and closes the underlying file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	syncErr := w.file.Sync()
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("close log file %s: %w", w.path, err)
	}
	if syncErr != nil {
		return fmt.Errorf("sync log file %s: %w", w.path, syncErr)
	}
	return nil
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
