package httpserver

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/imupulse/internal/domain"
	"github.com/pscheid92/imupulse/internal/platform/correlation"
	apperrors "github.com/pscheid92/imupulse/internal/platform/errors"
	"github.com/pscheid92/imupulse/internal/source"
)

const correlationHeader = "X-Correlation-ID"

// correlationMiddleware tags the request context with the caller's
// X-Correlation-ID, or a fresh one, and echoes it back.
func correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Request().Header.Get(correlationHeader)
		if id == "" || len(id) > 64 {
			id = correlation.NewID()
		}
		ctx := correlation.WithID(c.Request().Context(), id)
		c.SetRequest(c.Request().WithContext(ctx))
		c.Response().Header().Set(correlationHeader, id)
		return next(c)
	}
}

func ErrorHandlingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			var structuredErr *apperrors.Error
			if !errors.As(err, &structuredErr) {
				// Echo's own errors (unknown route, rate limiter) keep their status.
				var httpErr *echo.HTTPError
				if errors.As(err, &httpErr) {
					return err
				}
				structuredErr = apperrors.AsStructuredError(fromDomain(err))
			}
			logError(c, structuredErr)

			if err := c.JSON(structuredErr.HTTPStatus(), structuredErr.ToResponse()); err != nil {
				return fmt.Errorf("failed to write error response: %w", err)
			}
			return nil
		}
	}
}

// fromDomain maps pipeline sentinels onto structured errors. Unknown errors
// pass through unchanged.
func fromDomain(err error) error {
	switch {
	case errors.Is(err, domain.ErrIngestionRunning):
		return apperrors.ConflictError("ingestion already running").WithCause(err)
	case errors.Is(err, domain.ErrIngestionNotRunning):
		return apperrors.ConflictError("ingestion not running").WithCause(err)
	case errors.Is(err, domain.ErrUnknownSource):
		return apperrors.ValidationError("invalid source").WithCause(err)
	case errors.Is(err, source.ErrInvalidRate):
		return apperrors.ValidationError("invalid rate").WithCause(err)
	case errors.Is(err, domain.ErrSourceUnavailable):
		return apperrors.NotFoundError("source not found").WithCause(err)
	case errors.Is(err, domain.ErrTooManySubscribers):
		return apperrors.UnavailableError("too many subscribers", err)
	case errors.Is(err, domain.ErrTransientIO):
		return apperrors.InternalError("log file unavailable", err)
	default:
		return err
	}
}

func logError(c echo.Context, err *apperrors.Error) {
	ctx := c.Request().Context()
	attrs := []any{
		"error_type", err.Type,
		"message", err.Message,
		"path", c.Request().URL.Path,
		"method", c.Request().Method,
		"status", err.HTTPStatus(),
	}

	for k, v := range err.Context {
		attrs = append(attrs, k, v)
	}

	switch err.Type {
	case apperrors.TypeValidation:
		slog.InfoContext(ctx, "Validation error", attrs...)
	case apperrors.TypeNotFound:
		slog.InfoContext(ctx, "Not found", attrs...)
	case apperrors.TypeConflict:
		slog.WarnContext(ctx, "Conflict", attrs...)
	case apperrors.TypeUnavailable:
		slog.WarnContext(ctx, "Unavailable", attrs...)
	default:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "Internal error", attrs...)
	}
}
