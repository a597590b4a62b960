package client

import (
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrAuthRequired is returned when an authenticated request is made
	// before a token has been cached. This is a caller bug: log in first.
	ErrAuthRequired = errors.New("no authorization token cached, log in first")

	// ErrRetriesExhausted is returned when all 502 retry attempts are
	// exhausted.
	ErrRetriesExhausted = errors.New("retry attempts exhausted")
)

// APIError represents a non-2xx API response with its status and body.
type APIError struct {
	StatusCode int
	Body       []byte
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if len(e.Body) > 0 {
		return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("API error (status %d)", e.StatusCode)
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, statusCode int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == statusCode
}
