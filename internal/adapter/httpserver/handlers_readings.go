package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/imupulse/internal/domain"
	apperrors "github.com/pscheid92/imupulse/internal/platform/errors"
)

type readingsResponse struct {
	Source   string           `json:"source"`
	Readings []domain.Reading `json:"readings"`
	Count    int              `json:"count"`
	Error    string           `json:"error,omitempty"`
}

func (s *Server) registerReadingRoutes() {
	s.echo.GET("/api/readings", s.handleReadings)
	s.echo.GET("/api/readings/latest", s.handleLatestReading)
}

// handleReadings serves the last n persisted readings. n defaults to
// DEFAULT_TAIL, is capped at MAX_TAIL, and n <= 0 returns the whole log.
func (s *Server) handleReadings(c echo.Context) error {
	n, err := s.parseTail(c.QueryParam("n"))
	if err != nil {
		return err
	}

	source := c.QueryParam("source")
	if source == "" {
		source = s.config.LogSource
	}

	readings, err := s.app.Readings(c.Request().Context(), source, n)
	if errors.Is(err, domain.ErrSourceUnavailable) {
		resp := readingsResponse{Source: source, Readings: []domain.Reading{}, Error: "source not found"}
		if err := c.JSON(http.StatusNotFound, resp); err != nil {
			return fmt.Errorf("failed to send JSON response: %w", err)
		}
		return nil
	}
	if err != nil {
		return err
	}

	if readings == nil {
		readings = []domain.Reading{}
	}
	resp := readingsResponse{Source: source, Readings: readings, Count: len(readings)}
	if err := c.JSON(http.StatusOK, resp); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) parseTail(raw string) (int, error) {
	if raw == "" {
		return s.config.DefaultTail, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.ValidationError("n must be an integer").WithField("n", raw)
	}
	if n > s.config.MaxTail {
		return s.config.MaxTail, nil
	}
	return n, nil
}

func (s *Server) handleLatestReading(c echo.Context) error {
	r, ok := s.app.Latest()
	if !ok {
		return c.NoContent(http.StatusNoContent)
	}
	if err := c.JSON(http.StatusOK, r); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
