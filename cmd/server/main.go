package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/imupulse/internal/adapter/httpserver"
	"github.com/pscheid92/imupulse/internal/adapter/metrics"
	"github.com/pscheid92/imupulse/internal/adapter/websocket"
	"github.com/pscheid92/imupulse/internal/app"
	"github.com/pscheid92/imupulse/internal/broadcast"
	"github.com/pscheid92/imupulse/internal/logfile"
	"github.com/pscheid92/imupulse/internal/platform/config"
	"github.com/pscheid92/imupulse/internal/platform/logging"
	"github.com/pscheid92/imupulse/internal/platform/version"
	"github.com/pscheid92/imupulse/internal/source"
)

const shutdownTimeout = 10 * time.Second

type shutdownDeps struct {
	srv         *httpserver.Server
	appSvc      *app.Service
	broadcaster *broadcast.Broadcaster
	stopWatcher func()
}

func runGracefulShutdown(deps shutdownDeps) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := deps.srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
		if err := deps.appSvc.Shutdown(shutdownCtx); err != nil {
			slog.Error("Ingestion shutdown error", "error", err)
		}
		deps.stopWatcher()
		deps.broadcaster.Stop()

		close(done)
	}()

	return done
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

// startWatcher tails the ingestion log until the returned stop func is called.
func startWatcher(logPath string, broadcaster *broadcast.Broadcaster, clock clockwork.Clock, cfg *config.Config, m *metrics.PipelineMetrics) func() {
	cursor, err := logfile.NewCursor(logPath)
	if err != nil {
		slog.Error("Failed to open log cursor", "path", logPath, "error", err)
		os.Exit(1)
	}

	watcher := app.NewWatcher(cursor, broadcaster, clock, cfg.PollInterval, m)
	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		watcher.Run(ctx)
	}()

	return func() {
		cancel()
		wg.Wait()
	}
}

// dataDirCheck reports whether new log files can be created in dir.
func dataDirCheck(dir string) httpserver.HealthCheck {
	return httpserver.HealthCheck{
		Name: "data_dir",
		Check: func(context.Context) error {
			f, err := os.CreateTemp(dir, ".health-*")
			if err != nil {
				return fmt.Errorf("data directory not writable: %w", err)
			}
			name := f.Name()
			_ = f.Close()
			return os.Remove(name)
		},
	}
}

func autoStart(appSvc *app.Service, cfg *config.Config) {
	if cfg.SerialPort == "" {
		return
	}
	req := app.StartRequest{Source: cfg.SerialPort, Rate: cfg.Baud}
	if err := appSvc.StartIngestion(context.Background(), req); err != nil {
		slog.Error("Failed to auto-start ingestion", "source", cfg.SerialPort, "baud", cfg.Baud, "error", err)
	}
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "version", version.Get().String())

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		slog.Error("Failed to create data directory", "dir", cfg.DataDir, "error", err)
		os.Exit(1)
	}
	logPath, err := logfile.SourcePath(cfg.DataDir, cfg.LogSource)
	if err != nil {
		slog.Error("Invalid LOG_SOURCE", "source", cfg.LogSource, "error", err)
		os.Exit(1)
	}

	registry := metrics.NewRegistry()
	pipelineMetrics := metrics.NewPipelineMetrics(registry)
	broadcastMetrics := metrics.NewBroadcastMetrics(registry)
	httpMetrics := metrics.NewHTTPMetrics(registry)

	broadcaster := broadcast.NewBroadcaster(clock, broadcast.Options{
		QueueSize:      cfg.SubscriberQueueSize,
		MaxSubscribers: cfg.MaxSubscribers,
		Metrics:        broadcastMetrics,
	})

	appSvc := app.NewService(
		app.ServiceOptions{
			DataDir:   cfg.DataDir,
			LogSource: cfg.LogSource,
			Writer: logfile.WriterOptions{
				FailureThreshold: cfg.AppendFailureThreshold,
				BreakerTimeout:   cfg.AppendBreakerTimeout,
			},
		},
		source.NewFactory(clock),
		broadcaster,
		logfile.NewTailQuery(cfg.DataDir, clock, pipelineMetrics),
		clock,
		pipelineMetrics,
	)

	stopWatcher := startWatcher(logPath, broadcaster, clock, cfg, pipelineMetrics)

	wsHandler := websocket.NewHandler(broadcaster, clock, websocket.NewCheckOrigin(cfg.AppURL, cfg.IsDevelopment()))

	srv := httpserver.NewServer(cfg, httpserver.Deps{
		App:              appSvc,
		Feed:             broadcaster,
		WebsocketHandler: wsHandler,
		MetricsHandler:   metrics.Handler(registry),
		HTTPMetrics:      httpMetrics,
		HealthChecks:     []httpserver.HealthCheck{dataDirCheck(cfg.DataDir)},
		Clock:            clock,
	})

	autoStart(appSvc, cfg)

	done := runGracefulShutdown(shutdownDeps{
		srv:         srv,
		appSvc:      appSvc,
		broadcaster: broadcaster,
		stopWatcher: stopWatcher,
	})

	slog.Info("Server starting", "port", cfg.Port, "log", logPath)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
