package httpclient

import (
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/utafrali/catalogue-search/pkg/errors"
)

// maxErrorBody caps how much of an error response body is kept.
const maxErrorBody = 1 << 20

// StatusError is a non-2xx response from a downstream service.
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Service, e.StatusCode, e.Body)
}

// Unwrap maps the status onto the matching application sentinel, so callers
// can test with errors.Is.
func (e *StatusError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusNotFound:
		return apperrors.ErrNotFound
	case e.StatusCode == http.StatusConflict:
		return apperrors.ErrConflict
	case e.StatusCode == http.StatusServiceUnavailable:
		return apperrors.ErrServiceUnavail
	case e.StatusCode >= 500:
		return apperrors.ErrUpstream
	default:
		return nil
	}
}

// IsClientError returns true if the HTTP status code is a 4xx client error.
func IsClientError(status int) bool {
	return status >= 400 && status < 500
}

// CheckResponse returns nil for a 2xx response. Otherwise it consumes and
// closes the body and returns a *StatusError.
func CheckResponse(resp *http.Response, service string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %w)", service, resp.StatusCode, err)
	}
	return &StatusError{Service: service, StatusCode: resp.StatusCode, Body: string(body)}
}
