package auth

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"
	"syscall"

	"github.com/unraidmate/console/pkg/graphql"
)

// ErrorKind classifies why a login or validation failed
type ErrorKind string

const (
	KindValidation        ErrorKind = "validation"
	KindTimeout           ErrorKind = "timeout"
	KindConnectionRefused ErrorKind = "connection_refused"
	KindCORS              ErrorKind = "cors"
	KindAuthRejected      ErrorKind = "auth_rejected"
	KindNetwork           ErrorKind = "network"
	KindStorage           ErrorKind = "storage"
	KindUnknown           ErrorKind = "unknown"
)

var kindMessages = map[ErrorKind]string{
	KindValidation:        "Please fill in all fields.",
	KindTimeout:           "Connection timed out. Check the server address and that the server is reachable.",
	KindConnectionRefused: "Connection refused. Check that the Unraid API is running and the port is correct.",
	KindCORS:              "The server blocked the request (CORS). Add this client's origin to the Unraid API allowed origins.",
	KindAuthRejected:      "The API key was rejected. Check that the key is valid and has the required permissions.",
	KindNetwork:           "Network error. Check your connection and the server address.",
	KindStorage:           "Could not save credentials on this device.",
	KindUnknown:           "Connection failed.",
}

// Error is a classified failure. Kind is decided where the underlying
// error is caught.
type Error struct {
	Kind   ErrorKind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	return e.Message()
}

func (e *Error) Unwrap() error { return e.Err }

// Message is the human-readable text shown to the user
func (e *Error) Message() string {
	msg := kindMessages[e.Kind]
	if msg == "" {
		msg = kindMessages[KindUnknown]
	}
	if e.Detail != "" {
		return msg + " (" + e.Detail + ")"
	}
	return msg
}

// KindOf returns the kind of err, KindUnknown when it is not an *Error
func KindOf(err error) ErrorKind {
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr.Kind
	}
	return KindUnknown
}

func newValidationError(detail string) *Error {
	return &Error{Kind: KindValidation, Detail: detail}
}

// ClassifyError builds an *Error from a low-level client error using its type
// first and its text only as a last resort.
func ClassifyError(err error) *Error {
	if err == nil {
		return nil
	}
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr
	}

	detail := err.Error()
	kind := func() ErrorKind {
		if errors.Is(err, context.DeadlineExceeded) {
			return KindTimeout
		}
		if errors.Is(err, graphql.ErrNotConfigured) {
			return KindValidation
		}
		if errors.Is(err, syscall.ECONNREFUSED) {
			return KindConnectionRefused
		}

		var httpErr *graphql.HTTPError
		var gqlErr *graphql.Error
		switch {
		case errors.As(err, &httpErr):
			if mentionsCORS(httpErr.Body) {
				return KindCORS
			}
			if graphql.IsAuthError(err) {
				return KindAuthRejected
			}
			return KindNetwork
		case errors.As(err, &gqlErr):
			if mentionsCORS(gqlErr.Message) {
				return KindCORS
			}
			if graphql.IsAuthError(err) {
				return KindAuthRejected
			}
			return KindUnknown
		}

		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return KindTimeout
		}
		var dnsErr *net.DNSError
		var opErr *net.OpError
		var urlErr *url.Error
		if errors.As(err, &dnsErr) || errors.As(err, &opErr) {
			return KindNetwork
		}
		if kind := Classify(detail); kind != KindUnknown {
			return kind
		}
		if errors.As(err, &urlErr) {
			return KindNetwork
		}
		return KindUnknown
	}()

	return &Error{Kind: kind, Detail: detail, Err: err}
}

// Classify maps an error message to a kind by substring. It is the fallback
// for errors that reach us only as text.
func Classify(message string) ErrorKind {
	m := strings.ToLower(message)
	switch {
	case m == "":
		return KindUnknown
	case strings.Contains(m, "timeout") || strings.Contains(m, "timed out") || strings.Contains(m, "deadline exceeded"):
		return KindTimeout
	case strings.Contains(m, "connection refused") || strings.Contains(m, "econnrefused"):
		return KindConnectionRefused
	case mentionsCORS(m):
		return KindCORS
	case strings.Contains(m, "unauthorized") || strings.Contains(m, "forbidden") ||
		strings.Contains(m, "unauthenticated") || strings.Contains(m, "permission") ||
		strings.Contains(m, "invalid api key") || strings.Contains(m, "401") || strings.Contains(m, "403"):
		return KindAuthRejected
	case strings.Contains(m, "network") || strings.Contains(m, "no such host") ||
		strings.Contains(m, "unreachable") || strings.Contains(m, "connection reset") ||
		strings.Contains(m, "unsupported protocol scheme") || strings.Contains(m, "eof"):
		return KindNetwork
	default:
		return KindUnknown
	}
}

func mentionsCORS(s string) bool {
	m := strings.ToLower(s)
	return strings.Contains(m, "cors") || strings.Contains(m, "cross-origin") || strings.Contains(m, "origin not allowed")
}
