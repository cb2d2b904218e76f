package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/imupulse/internal/adapter/metrics"
	"github.com/pscheid92/imupulse/internal/domain"
	"github.com/pscheid92/imupulse/internal/logfile"
	"github.com/pscheid92/imupulse/internal/platform/correlation"
	"github.com/pscheid92/imupulse/internal/reading"
)

// ProducerFactory builds the line producer for a source id and rate.
type ProducerFactory interface {
	New(id string, rate int) (domain.LineProducer, error)
}

// LiveFeed is the live fan-out side the service reports on and falls back to.
type LiveFeed interface {
	domain.Publisher
	Latest() (domain.Reading, bool)
	Count() int
}

// LogAppender durably appends lines for one session.
type LogAppender interface {
	Append(line string) error
	Path() string
	Close() error
}

// StartRequest selects the producer for a new ingestion session.
type StartRequest struct {
	Source string `json:"source"`
	Rate   int    `json:"rate"`
}

// IngestionStatus is a point-in-time view of the ingestion session.
type IngestionStatus struct {
	Running        bool       `json:"running"`
	Source         string     `json:"source,omitempty"`
	Rate           int        `json:"rate,omitempty"`
	LogSource      string     `json:"logSource"`
	StartedAt      *time.Time `json:"startedAt,omitempty"`
	LinesReceived  int64      `json:"linesReceived"`
	AppendFailures int64      `json:"appendFailures"`
	Subscribers    int        `json:"subscribers"`
}

// ServiceOptions configures where ingested lines are persisted.
type ServiceOptions struct {
	DataDir   string
	LogSource string
	Writer    logfile.WriterOptions
}

// Service owns at most one ingestion session at a time.
type Service struct {
	opts      ServiceOptions
	producers ProducerFactory
	feed      LiveFeed
	query     domain.ReadingQuery
	clock     clockwork.Clock
	metrics   *metrics.PipelineMetrics

	openLog func(path string, opts logfile.WriterOptions) (LogAppender, error)

	mu      sync.Mutex
	session *session
}

type session struct {
	req       StartRequest
	startedAt time.Time
	writer    LogAppender
	cancel    context.CancelFunc
	done      chan struct{}

	linesReceived  atomic.Int64
	appendFailures atomic.Int64
}

// NewService creates the application layer service.
// m may be nil.
func NewService(opts ServiceOptions, producers ProducerFactory, feed LiveFeed, query domain.ReadingQuery, clock clockwork.Clock, m *metrics.PipelineMetrics) *Service {
	return &Service{
		opts:      opts,
		producers: producers,
		feed:      feed,
		query:     query,
		clock:     clock,
		metrics:   m,
		openLog:   openLogWriter,
	}
}

func openLogWriter(path string, opts logfile.WriterOptions) (LogAppender, error) {
	w, err := logfile.OpenWriter(path, opts)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// LogPath returns the log file ingestion appends to.
func (s *Service) LogPath() (string, error) {
	return logfile.SourcePath(s.opts.DataDir, s.opts.LogSource)
}

// StartIngestion opens the log and starts pumping lines from the requested
// producer. The session outlives ctx; it ends on StopIngestion or when the
// producer finishes.
func (s *Service) StartIngestion(ctx context.Context, req StartRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session != nil {
		return domain.ErrIngestionRunning
	}

	producer, err := s.producers.New(req.Source, req.Rate)
	if err != nil {
		return err
	}

	path, err := s.LogPath()
	if err != nil {
		return err
	}
	opts := s.opts.Writer
	opts.Metrics = s.metrics
	writer, err := s.openLog(path, opts)
	if err != nil {
		return fmt.Errorf("start ingestion: %w", err)
	}

	sessionCtx, _ := correlation.Ensure(context.WithoutCancel(ctx))
	runCtx, cancel := context.WithCancel(sessionCtx)

	sess := &session{
		req:       req,
		startedAt: s.clock.Now(),
		writer:    writer,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	s.session = sess
	if s.metrics != nil {
		s.metrics.IngestionActive.Set(1)
	}

	go s.pump(runCtx, sess, producer)

	slog.InfoContext(runCtx, "Ingestion started", "source", req.Source, "rate", req.Rate, "log", path)
	return nil
}

// StopIngestion cancels the running session and waits for its pump to finish
// or for ctx to expire.
func (s *Service) StopIngestion(ctx context.Context) error {
	s.mu.Lock()
	sess := s.session
	s.session = nil
	s.mu.Unlock()

	if sess == nil {
		return domain.ErrIngestionNotRunning
	}

	sess.cancel()
	select {
	case <-sess.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop ingestion: %w", ctx.Err())
	}
}

// Shutdown stops any running session. It is a no-op when idle.
func (s *Service) Shutdown(ctx context.Context) error {
	if err := s.StopIngestion(ctx); err != nil && !errors.Is(err, domain.ErrIngestionNotRunning) {
		return err
	}
	return nil
}

func (s *Service) pump(ctx context.Context, sess *session, producer domain.LineProducer) {
	defer close(sess.done)

	err := producer.Run(ctx, func(line string) { s.handleLine(ctx, sess, line) })
	if err != nil {
		slog.ErrorContext(ctx, "Ingestion producer failed", "source", sess.req.Source, "error", err)
	}

	if cerr := sess.writer.Close(); cerr != nil {
		slog.WarnContext(ctx, "Failed to close log writer", "path", sess.writer.Path(), "error", cerr)
	}

	s.mu.Lock()
	if s.session == sess {
		s.session = nil
	}
	idle := s.session == nil
	s.mu.Unlock()

	if idle && s.metrics != nil {
		s.metrics.IngestionActive.Set(0)
	}
	slog.InfoContext(ctx, "Ingestion stopped",
		"source", sess.req.Source,
		"lines_received", sess.linesReceived.Load(),
		"append_failures", sess.appendFailures.Load(),
	)
}

func (s *Service) handleLine(ctx context.Context, sess *session, line string) {
	if reading.IsBlank(line) {
		return
	}
	sess.linesReceived.Add(1)
	if s.metrics != nil {
		s.metrics.LinesReceived.Inc()
	}

	// The writer owns the appended and failed counters.
	err := sess.writer.Append(line)
	if err == nil {
		return
	}

	// The watcher never sees a line that missed the log, so hand it to live
	// subscribers here.
	sess.appendFailures.Add(1)
	slog.WarnContext(ctx, "Append failed, publishing reading directly", "error", err)

	r, malformed := reading.ParseDetailed(line, s.clock.Now())
	if malformed > 0 && s.metrics != nil {
		s.metrics.MalformedFields.Add(float64(malformed))
	}
	s.feed.Publish(r)
}

// Status reports the current session, if any.
func (s *Service) Status() IngestionStatus {
	s.mu.Lock()
	sess := s.session
	s.mu.Unlock()

	status := IngestionStatus{
		LogSource:   s.opts.LogSource,
		Subscribers: s.feed.Count(),
	}
	if sess == nil {
		return status
	}

	startedAt := sess.startedAt
	status.Running = true
	status.Source = sess.req.Source
	status.Rate = sess.req.Rate
	status.StartedAt = &startedAt
	status.LinesReceived = sess.linesReceived.Load()
	status.AppendFailures = sess.appendFailures.Load()
	return status
}

// Readings returns the last n readings persisted for source; an empty source
// means the ingestion log.
func (s *Service) Readings(ctx context.Context, source string, n int) ([]domain.Reading, error) {
	if source == "" {
		source = s.opts.LogSource
	}
	return s.query.Query(ctx, source, n)
}

// Latest returns the most recently published reading.
func (s *Service) Latest() (domain.Reading, bool) {
	return s.feed.Latest()
}
