package httpserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/imupulse/internal/app"
	"github.com/pscheid92/imupulse/internal/broadcast"
	"github.com/pscheid92/imupulse/internal/domain"
	"github.com/pscheid92/imupulse/internal/platform/config"
)

// --- Mock implementations ---

type mockAppService struct {
	startFn    func(ctx context.Context, req app.StartRequest) error
	stopFn     func(ctx context.Context) error
	statusFn   func() app.IngestionStatus
	readingsFn func(ctx context.Context, source string, n int) ([]domain.Reading, error)
	latestFn   func() (domain.Reading, bool)
}

func (m *mockAppService) StartIngestion(ctx context.Context, req app.StartRequest) error {
	if m.startFn != nil {
		return m.startFn(ctx, req)
	}
	return nil
}

func (m *mockAppService) StopIngestion(ctx context.Context) error {
	if m.stopFn != nil {
		return m.stopFn(ctx)
	}
	return nil
}

func (m *mockAppService) Status() app.IngestionStatus {
	if m.statusFn != nil {
		return m.statusFn()
	}
	return app.IngestionStatus{LogSource: "readings"}
}

func (m *mockAppService) Readings(ctx context.Context, source string, n int) ([]domain.Reading, error) {
	if m.readingsFn != nil {
		return m.readingsFn(ctx, source, n)
	}
	return nil, nil
}

func (m *mockAppService) Latest() (domain.Reading, bool) {
	if m.latestFn != nil {
		return m.latestFn()
	}
	return domain.Reading{}, false
}

// --- Test helpers ---

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:       "development",
		Port:         "0",
		LogSource:    "readings",
		DefaultTail:  100,
		MaxTail:      1000,
		APIRateLimit: 100,
		APIRateBurst: 100,
	}
}

func newTestServer(t *testing.T, app appService, opts ...func(*Server)) *Server {
	t.Helper()

	srv := &Server{
		echo:   echo.New(),
		config: testConfig(),
		clock:  clockwork.NewRealClock(),
		app:    app,
	}

	for _, opt := range opts {
		opt(srv)
	}
	if srv.feed == nil {
		b := broadcast.NewBroadcaster(srv.clock, broadcast.Options{})
		t.Cleanup(b.Stop)
		srv.feed = b
	}

	// Register routes so endpoints are available for testing
	srv.registerRoutes()

	return srv
}

func withHealthChecks(checks ...HealthCheck) func(*Server) {
	return func(s *Server) {
		s.healthChecks = checks
	}
}

func withFeed(feed liveFeed) func(*Server) {
	return func(s *Server) {
		s.feed = feed
	}
}

func withConfig(mutate func(*config.Config)) func(*Server) {
	return func(s *Server) {
		mutate(s.config)
	}
}

func withMetricsHandler(h http.Handler) func(*Server) {
	return func(s *Server) {
		s.metricsHandler = h
	}
}

// serve sends a request through the full middleware stack.
func serve(srv *Server, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}
