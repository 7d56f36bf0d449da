package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
)

var (
	// ErrUnexpectedContentType is returned when a response body is not JSON.
	ErrUnexpectedContentType = errors.New("unexpected content type")
	// ErrMalformedResponse is returned when a JSON response body cannot be
	// decoded.
	ErrMalformedResponse = errors.New("malformed response")
)

// APIError is a non-success response, either an HTTP error status or an
// error envelope ({"status":"error","code":...,"message":...}).
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error %d: %s", e.Status, e.Code)
	}
	return fmt.Sprintf("api error %d: %s: %s", e.Status, e.Code, e.Message)
}

// IsUnauthorized reports whether err is an authentication failure.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status == http.StatusUnauthorized || apiErr.Code == "UNAUTHORIZED"
}

// IsNetworkError reports whether err came from talking to the server: a
// transport failure, a timeout, a non-success response or a body that is
// not the expected JSON.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	var netErr net.Error
	var urlErr *url.Error
	return errors.As(err, &apiErr) ||
		errors.As(err, &netErr) ||
		errors.As(err, &urlErr) ||
		errors.Is(err, ErrUnexpectedContentType) ||
		errors.Is(err, ErrMalformedResponse) ||
		errors.Is(err, context.DeadlineExceeded)
}
