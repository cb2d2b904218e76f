package httpserver

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/imupulse/internal/app"
	apperrors "github.com/pscheid92/imupulse/internal/platform/errors"
)

func (s *Server) registerIngestionRoutes() {
	limiter := newRateLimiter(s.config.APIRateLimit, s.config.APIRateBurst)

	g := s.echo.Group("/api/ingestion")
	g.POST("/start", s.handleStartIngestion, limiter)
	g.POST("/stop", s.handleStopIngestion, limiter)
	g.GET("/status", s.handleIngestionStatus)
}

func (s *Server) handleStartIngestion(c echo.Context) error {
	var req app.StartRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body").WithCause(err)
	}

	req.Source = strings.TrimSpace(req.Source)
	if req.Source == "" {
		return apperrors.ValidationError("source is required")
	}
	if req.Rate <= 0 {
		return apperrors.ValidationError("rate must be a positive integer").WithField("rate", req.Rate)
	}

	if err := s.app.StartIngestion(c.Request().Context(), req); err != nil {
		return err
	}

	if err := c.JSON(http.StatusOK, map[string]string{"status": "started"}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleStopIngestion(c echo.Context) error {
	if err := s.app.StopIngestion(c.Request().Context()); err != nil {
		return err
	}

	if err := c.JSON(http.StatusOK, map[string]string{"status": "stopped"}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleIngestionStatus(c echo.Context) error {
	if err := c.JSON(http.StatusOK, s.app.Status()); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
