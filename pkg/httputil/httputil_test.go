package httputil

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/cswank/store/pkg/errors"
	"github.com/cswank/store/pkg/logger"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) *ErrorResponse {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotNil(t, resp.Error)
	return resp.Error
}

func TestWriteData(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteData(rec, http.StatusCreated, map[string]int{"item_count": 2})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"data":{"item_count":2}}`, rec.Body.String())
}

func TestWriteError_AppError(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req = req.WithContext(logger.WithCorrelationID(req.Context(), "req-1"))

	WriteError(rec, req, apperrors.NotFound("cart item", "shirt-red"), logger.Discard())

	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "NOT_FOUND", body.Code)
	assert.Equal(t, "req-1", body.RequestID)
}

func TestWriteError_ProviderCauseHidden(t *testing.T) {
	var logs bytes.Buffer
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/checkout", nil)

	err := apperrors.ProviderFailed("checkout could not be started", errors.New("secret token rejected"))
	WriteError(rec, req, err, logger.NewWithWriter("cart", "info", &logs))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "PROVIDER_ERROR", body.Code)
	assert.NotContains(t, rec.Body.String(), "secret token")
	assert.Contains(t, logs.String(), "secret token", "the cause is logged")
}

func TestWriteError_Sentinels(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("load: %w", apperrors.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{fmt.Errorf("save: %w", apperrors.ErrConflict), http.StatusConflict, "CONFLICT"},
		{fmt.Errorf("x: %w", apperrors.ErrInvalidInput), http.StatusBadRequest, "INVALID_INPUT"},
		{fmt.Errorf("redis: %w", apperrors.ErrServiceUnavail), http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
		{errors.New("kaboom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tt.err, logger.Discard())

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeError(t, rec).Code)
		})
	}
}

func TestWriteError_InternalNotEchoed(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("dial tcp 10.0.0.1"), logger.Discard())
	assert.NotContains(t, rec.Body.String(), "10.0.0.1")

	body := decodeError(t, rec)
	assert.Equal(t, apperrors.Internal(nil).Code, body.Code)
	assert.Equal(t, "an internal error occurred", body.Message)
}

type quantityRequest struct {
	Quantity int `json:"quantity" validate:"gte=0"`
}

func TestDecode_Valid(t *testing.T) {
	req := httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(`{"quantity":3}`))

	var dst quantityRequest
	require.NoError(t, Decode(req, &dst))
	assert.Equal(t, 3, dst.Quantity)
}

func TestDecode_Malformed(t *testing.T) {
	req := httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(`{"quantity":`))

	var dst quantityRequest
	err := Decode(req, &dst)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestDecode_ValidationFieldsWritten(t *testing.T) {
	req := httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(`{"quantity":-2}`))

	var dst quantityRequest
	err := Decode(req, &dst)
	require.Error(t, err)

	rec := httptest.NewRecorder()
	WriteError(rec, req.WithContext(context.Background()), err, logger.Discard())

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "VALIDATION_ERROR", body.Code)
	assert.Contains(t, body.Fields, "quantity")
}
