package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/imupulse/internal/domain"
	apperrors "github.com/pscheid92/imupulse/internal/platform/errors"
	"github.com/pscheid92/imupulse/internal/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runMiddleware(t *testing.T, handlerErr error) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/test", nil), rec)

	err := ErrorHandlingMiddleware()(func(echo.Context) error { return handlerErr })(c)
	require.NoError(t, err)
	return rec
}

func TestMiddlewareWithStructuredError(t *testing.T) {
	rec := runMiddleware(t, apperrors.ValidationError("invalid input").WithField("field", "rate"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp apperrors.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "invalid input", resp.Error)
	assert.Equal(t, apperrors.TypeValidation, resp.Type)
	assert.Equal(t, "rate", resp.Context["field"])
}

func TestMiddlewareWithStandardError(t *testing.T) {
	rec := runMiddleware(t, errors.New("standard error"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp apperrors.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "internal server error", resp.Error)
	assert.Equal(t, apperrors.TypeInternal, resp.Type)
}

func TestMiddlewareMapsDomainErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   apperrors.ErrorType
	}{
		{"running", domain.ErrIngestionRunning, http.StatusConflict, apperrors.TypeConflict},
		{"not running", domain.ErrIngestionNotRunning, http.StatusConflict, apperrors.TypeConflict},
		{"unknown source", fmt.Errorf("%w: x", domain.ErrUnknownSource), http.StatusBadRequest, apperrors.TypeValidation},
		{"invalid rate", fmt.Errorf("%w: got 0", source.ErrInvalidRate), http.StatusBadRequest, apperrors.TypeValidation},
		{"source unavailable", domain.ErrSourceUnavailable, http.StatusNotFound, apperrors.TypeNotFound},
		{"too many subscribers", domain.ErrTooManySubscribers, http.StatusServiceUnavailable, apperrors.TypeUnavailable},
		{"transient io", fmt.Errorf("%w: read: EIO", domain.ErrTransientIO), http.StatusInternalServerError, apperrors.TypeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := runMiddleware(t, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			var resp apperrors.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantType, resp.Type)
		})
	}
}

func TestMiddlewarePassesThroughEchoHTTPError(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/test", nil), httptest.NewRecorder())

	httpErr := echo.NewHTTPError(http.StatusMethodNotAllowed, "nope")
	err := ErrorHandlingMiddleware()(func(echo.Context) error { return httpErr })(c)

	assert.Same(t, httpErr, err)
}

func TestMiddlewareWithNoError(t *testing.T) {
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/test", nil), rec)

	err := ErrorHandlingMiddleware()(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})(c)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCorrelationMiddleware(t *testing.T) {
	srv := newTestServer(t, &mockAppService{})

	t.Run("generates id", func(t *testing.T) {
		rec := serve(srv, http.MethodGet, "/health/live", "")
		assert.Len(t, rec.Header().Get(correlationHeader), 8)
	})

	t.Run("propagates caller id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
		req.Header.Set(correlationHeader, "client-abc")
		rec := httptest.NewRecorder()
		srv.echo.ServeHTTP(rec, req)
		assert.Equal(t, "client-abc", rec.Header().Get(correlationHeader))
	})
}
