package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationError(t *testing.T) {
	err := ValidationError("invalid input")

	assert.Equal(t, TypeValidation, err.Type)
	assert.Equal(t, "invalid input", err.Message)
	assert.Nil(t, err.Cause)
	assert.NotNil(t, err.Context)
	assert.Equal(t, http.StatusBadRequest, err.HTTPStatus())
	assert.Contains(t, err.Error(), "validation")
	assert.Contains(t, err.Error(), "invalid input")
}

func TestNotFoundError(t *testing.T) {
	err := NotFoundError("source not found")

	assert.Equal(t, TypeNotFound, err.Type)
	assert.Nil(t, err.Cause)
	assert.Equal(t, http.StatusNotFound, err.HTTPStatus())
	assert.Contains(t, err.Error(), "not_found")
}

func TestConflictError(t *testing.T) {
	err := ConflictError("ingestion already running")

	assert.Equal(t, TypeConflict, err.Type)
	assert.Equal(t, http.StatusConflict, err.HTTPStatus())
	assert.Contains(t, err.Error(), "ingestion already running")
}

func TestUnavailableError(t *testing.T) {
	cause := errors.New("limit 2")
	err := UnavailableError("too many subscribers", cause)

	assert.Equal(t, TypeUnavailable, err.Type)
	assert.Equal(t, cause, err.Cause)
	assert.Equal(t, http.StatusServiceUnavailable, err.HTTPStatus())
	assert.Contains(t, err.Error(), "limit 2")
}

func TestRateLimitedError(t *testing.T) {
	err := RateLimitedError("rate limit exceeded")

	assert.Equal(t, TypeRateLimited, err.Type)
	assert.Equal(t, http.StatusTooManyRequests, err.HTTPStatus())
}

func TestInternalError(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := InternalError("log file unavailable", cause)

	assert.Equal(t, TypeInternal, err.Type)
	assert.Equal(t, cause, err.Cause)
	assert.Equal(t, http.StatusInternalServerError, err.HTTPStatus())
	assert.Contains(t, err.Error(), "internal")
	assert.Contains(t, err.Error(), "disk full")
}

func TestInternalErrorWithoutCause(t *testing.T) {
	err := InternalError("something went wrong", nil)

	assert.Nil(t, err.Cause)
	assert.NotContains(t, err.Error(), "<nil>")
}

func TestUnknownTypeIsInternalStatus(t *testing.T) {
	err := &Error{Type: "bogus", Message: "x"}
	assert.Equal(t, http.StatusInternalServerError, err.HTTPStatus())
}

func TestWithCause_Unwraps(t *testing.T) {
	sentinel := errors.New("ingestion running")
	err := ConflictError("ingestion already running").WithCause(fmt.Errorf("start: %w", sentinel))

	assert.ErrorIs(t, err, sentinel)
}

func TestWithField(t *testing.T) {
	err := ValidationError("n must be an integer").
		WithField("n", "abc").
		WithField("max", 10000)

	assert.Equal(t, "abc", err.Context["n"])
	assert.Equal(t, 10000, err.Context["max"])
}

func TestWithField_NilContext(t *testing.T) {
	err := &Error{Type: TypeValidation, Message: "bad"}
	err = err.WithField("rate", 0)
	assert.Equal(t, 0, err.Context["rate"])
}

func TestToResponse_OmitsCause(t *testing.T) {
	err := InternalError("log file unavailable", errors.New("/secret/path: permission denied")).
		WithField("source", "readings")

	body, mErr := json.Marshal(err.ToResponse())
	require.NoError(t, mErr)

	assert.JSONEq(t, `{"error":"log file unavailable","type":"internal","context":{"source":"readings"}}`, string(body))
}

func TestToResponse_EmptyContextOmitted(t *testing.T) {
	body, err := json.Marshal(ValidationError("source is required").ToResponse())
	require.NoError(t, err)

	assert.JSONEq(t, `{"error":"source is required","type":"validation"}`, string(body))
}

func TestAsStructuredError(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		assert.Nil(t, AsStructuredError(nil))
	})

	t.Run("already structured", func(t *testing.T) {
		orig := NotFoundError("source not found")
		assert.Same(t, orig, AsStructuredError(orig))
	})

	t.Run("wrapped structured", func(t *testing.T) {
		orig := ValidationError("invalid rate")
		got := AsStructuredError(fmt.Errorf("handler: %w", orig))
		assert.Same(t, orig, got)
	})

	t.Run("plain error", func(t *testing.T) {
		plain := errors.New("boom")
		got := AsStructuredError(plain)
		require.NotNil(t, got)
		assert.Equal(t, TypeInternal, got.Type)
		assert.Equal(t, "internal server error", got.Message)
		assert.ErrorIs(t, got, plain)
	})
}
