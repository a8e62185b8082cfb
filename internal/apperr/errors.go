// Package apperr holds the error values shared across layers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalid       = errors.New("invalid input")
	ErrForbidden     = errors.New("forbidden")

	// ErrFetchBusy is returned when a fetch is requested while another one
	// has not yet delivered its terminal event.
	ErrFetchBusy = errors.New("fetch already in progress")
	// ErrNoSource is returned when overlay data is requested for a container
	// without a configured data source.
	ErrNoSource = errors.New("no overlay source configured")

	ErrRateLimited = errors.New("rate limited")
	ErrUnavailable = errors.New("service unavailable")
)

// APIError is a non-success HTTP response from a remote service.
type APIError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s: HTTP %d: %s", e.Endpoint, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s: HTTP %d", e.Endpoint, e.StatusCode)
}

// Is maps status classes onto the sentinel errors.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrRateLimited:
		return e.StatusCode == http.StatusTooManyRequests
	case ErrUnavailable:
		return e.StatusCode >= 500
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}
