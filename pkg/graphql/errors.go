package graphql

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotConfigured is returned by a client built without active credentials
var ErrNotConfigured = errors.New("graphql: no server configured")

// Error is a GraphQL protocol-level error returned in the "errors" array
type Error struct {
	Message    string
	Code       string // extensions.code, e.g. FORBIDDEN, UNAUTHENTICATED
	Path       []string
	StatusCode int
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("graphql: %s (%s)", e.Message, e.Code)
	}
	return "graphql: " + e.Message
}

// HTTPError is a non-2xx response without a GraphQL error body
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}

// IsAuthError reports whether err means the API key was rejected
func IsAuthError(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == 401 || httpErr.StatusCode == 403
	}
	var gqlErr *Error
	if errors.As(err, &gqlErr) {
		if gqlErr.StatusCode == 401 || gqlErr.StatusCode == 403 {
			return true
		}
		switch strings.ToUpper(gqlErr.Code) {
		case "FORBIDDEN", "UNAUTHENTICATED", "UNAUTHORIZED":
			return true
		}
	}
	return false
}

// retryableFromCache reports whether a failed network read may be answered
// from the cache. Protocol and auth errors are not.
func retryableFromCache(err error) bool {
	if errors.Is(err, ErrNotConfigured) {
		return false
	}
	var gqlErr *Error
	if errors.As(err, &gqlErr) {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= 500
	}
	return true
}
