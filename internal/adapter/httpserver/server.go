package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/imupulse/internal/adapter/metrics"
	"github.com/pscheid92/imupulse/internal/app"
	"github.com/pscheid92/imupulse/internal/broadcast"
	"github.com/pscheid92/imupulse/internal/domain"
	"github.com/pscheid92/imupulse/internal/platform/config"
)

type appService interface {
	StartIngestion(ctx context.Context, req app.StartRequest) error
	StopIngestion(ctx context.Context) error
	Status() app.IngestionStatus
	Readings(ctx context.Context, source string, n int) ([]domain.Reading, error)
	Latest() (domain.Reading, bool)
}

type liveFeed interface {
	Subscribe(sink domain.Sink) (*broadcast.Subscriber, error)
	Unsubscribe(id uuid.UUID)
}

type Server struct {
	echo   *echo.Echo
	config *config.Config
	clock  clockwork.Clock

	app  appService
	feed liveFeed

	websocketHandler http.Handler
	metricsHandler   http.Handler
	httpMetrics      *metrics.HTTPMetrics

	healthChecks []HealthCheck
	startTime    time.Time
}

// Deps groups the collaborators the server routes to. Handlers and metrics
// are optional; their routes are skipped when nil.
type Deps struct {
	App              appService
	Feed             liveFeed
	WebsocketHandler http.Handler
	MetricsHandler   http.Handler
	HTTPMetrics      *metrics.HTTPMetrics
	HealthChecks     []HealthCheck
	Clock            clockwork.Clock
}

func NewServer(cfg *config.Config, deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	srv := &Server{
		echo:             e,
		config:           cfg,
		clock:            clock,
		app:              deps.App,
		feed:             deps.Feed,
		websocketHandler: deps.WebsocketHandler,
		metricsHandler:   deps.MetricsHandler,
		httpMetrics:      deps.HTTPMetrics,
		healthChecks:     deps.HealthChecks,
		startTime:        clock.Now(),
	}

	srv.registerRoutes()

	return srv
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
