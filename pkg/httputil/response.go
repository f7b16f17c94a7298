package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/cswank/store/pkg/errors"
	"github.com/cswank/store/pkg/logger"
	"github.com/cswank/store/pkg/validator"
)

// Response is the JSON envelope for every API answer.
type Response struct {
	Data  any            `json:"data,omitempty"`
	Error *ErrorResponse `json:"error,omitempty"`
}

// ErrorResponse is the error half of the envelope.
type ErrorResponse struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteData wraps v in the envelope's data field.
func WriteData(w http.ResponseWriter, status int, v any) {
	WriteJSON(w, status, Response{Data: v})
}

// WriteError maps err to a status and writes the error envelope. Validation
// errors keep their per-field messages. 5xx causes are logged, never echoed.
func WriteError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	l := logger.FromContext(r.Context())
	if l == slog.Default() && fallback != nil {
		l = fallback
	}
	requestID := logger.CorrelationIDFromContext(r.Context())

	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		WriteJSON(w, http.StatusBadRequest, Response{Error: &ErrorResponse{
			Code:      "VALIDATION_ERROR",
			Message:   "request validation failed",
			Fields:    valErr.Fields(),
			RequestID: requestID,
		}})
		return
	}

	body := &ErrorResponse{RequestID: requestID}
	var appErr *apperrors.AppError
	status := apperrors.HTTPStatus(err)

	switch {
	case errors.As(err, &appErr):
		body.Code, body.Message = appErr.Code, appErr.Message
	case status == http.StatusNotFound:
		body.Code, body.Message = "NOT_FOUND", "resource not found"
	case status == http.StatusBadRequest:
		body.Code, body.Message = "INVALID_INPUT", err.Error()
	case status == http.StatusConflict:
		body.Code, body.Message = "CONFLICT", "the cart changed, retry"
	case status == http.StatusServiceUnavailable:
		body.Code, body.Message = "SERVICE_UNAVAILABLE", "a dependency is unavailable"
	default:
		internal := apperrors.Internal(err)
		body.Code, body.Message = internal.Code, internal.Message
	}

	if status >= 500 {
		l.ErrorContext(r.Context(), "request failed",
			slog.String("error", err.Error()),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
		)
	}

	WriteJSON(w, status, Response{Error: body})
}

// Decode reads a JSON body into dst and validates it. Malformed JSON comes
// back as an InvalidInput AppError.
func Decode(r *http.Request, dst any) error {
	if err := validator.DecodeAndValidate(r, dst); err != nil {
		var valErr *validator.ValidationError
		if errors.As(err, &valErr) {
			return err
		}
		return apperrors.InvalidInput("malformed request body")
	}
	return nil
}
