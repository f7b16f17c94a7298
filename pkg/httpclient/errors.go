package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/cswank/store/pkg/errors"
)

// errorEnvelope matches the {"error":{"code","message"}} body written by
// pkg/httputil and the {"errors": "..."} body most commerce APIs return.
type errorEnvelope struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Errors json.RawMessage `json:"errors"`
}

// ParseResponseError drains and closes a non-2xx response and turns it into
// an error carrying the upstream's status semantics.
func ParseResponseError(resp *http.Response, upstream string) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s returned status %d (read body: %w)", upstream, resp.StatusCode, err)
	}

	message := string(body)
	code := http.StatusText(resp.StatusCode)

	var env errorEnvelope
	if json.Unmarshal(body, &env) == nil {
		switch {
		case env.Error != nil:
			code, message = env.Error.Code, env.Error.Message
		case len(env.Errors) > 0:
			message = string(env.Errors)
		}
	}

	return statusError(resp.StatusCode, code, message, upstream)
}

func statusError(status int, code, message, upstream string) error {
	qualified := fmt.Sprintf("%s: %s", upstream, message)

	switch {
	case status == http.StatusNotFound:
		return apperrors.NotFound(upstream+" resource", message)
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return apperrors.InvalidInput(qualified)
	case status == http.StatusConflict:
		return apperrors.Conflict(qualified)
	case status == http.StatusServiceUnavailable:
		return apperrors.ServiceUnavailable(qualified)
	case status >= 500:
		return &ServerError{Status: status, Body: message}
	default:
		return &apperrors.AppError{
			Code:    code,
			Message: qualified,
			Status:  status,
		}
	}
}

// IsClientError reports whether status is a 4xx.
func IsClientError(status int) bool {
	return status >= 400 && status < 500
}
