package client

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies a failure for metrics and caller branching.
type ErrorKind string

const (
	// KindConfig covers local configuration problems detected before any
	// network call (missing token, malformed base URL).
	KindConfig ErrorKind = "config"

	// KindAuth covers 401 and 403 responses.
	KindAuth ErrorKind = "auth"

	// KindNotFound covers 404 responses.
	KindNotFound ErrorKind = "not_found"

	// KindAPI covers every other non-2xx response.
	KindAPI ErrorKind = "api"

	// KindTransport covers network-level failures with no HTTP response.
	KindTransport ErrorKind = "transport"
)

// ConfigError reports invalid client configuration. It is always raised
// before the first request is built, never from a response.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("gitlab config error: %s", e.Reason)
}

// AuthError reports a 401 or 403 response. The server does not reliably
// distinguish unauthenticated from unauthorized, so neither do we.
type AuthError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("gitlab auth error (%s %s, status %d): %s",
		e.Method, e.Path, e.StatusCode, truncate(e.Body, 200))
}

// NotFoundError reports a 404 response.
type NotFoundError struct {
	Method string
	Path   string
	Body   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("gitlab resource not found (%s %s): %s",
		e.Method, e.Path, truncate(e.Body, 200))
}

// APIError is the catch-all for non-2xx responses that are neither auth nor
// not-found failures, and for 2xx responses whose body cannot be decoded.
// Body holds the raw response bytes untouched; error bodies are not
// guaranteed to be JSON, so diagnosis needs the original content.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string

	// Message carries local context such as a decode-failure note, or a
	// server message extracted by a facade method. Optional.
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("gitlab api error %d (%s %s): %s",
			e.StatusCode, e.Method, e.Path, e.Message)
	}
	return fmt.Sprintf("gitlab api error %d (%s %s): %s",
		e.StatusCode, e.Method, e.Path, truncate(e.Body, 200))
}

// TransportError reports a network-level failure (DNS, connection refused,
// timeout). No response was received and no retry was attempted.
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("gitlab transport error (%s %s): %v", e.Method, e.Path, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// classifyStatus maps a non-2xx response to its typed failure. The mapping is
// status-code based only, never body-content based.
func classifyStatus(method, path string, status int, body []byte) error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &AuthError{Method: method, Path: path, StatusCode: status, Body: string(body)}
	case http.StatusNotFound:
		return &NotFoundError{Method: method, Path: path, Body: string(body)}
	default:
		return &APIError{Method: method, Path: path, StatusCode: status, Body: string(body)}
	}
}

// KindOf returns the taxonomy kind of err, or "" for errors this client did
// not produce.
func KindOf(err error) ErrorKind {
	var (
		cfg  *ConfigError
		auth *AuthError
		nf   *NotFoundError
		api  *APIError
		tr   *TransportError
	)
	switch {
	case errors.As(err, &cfg):
		return KindConfig
	case errors.As(err, &auth):
		return KindAuth
	case errors.As(err, &nf):
		return KindNotFound
	case errors.As(err, &api):
		return KindAPI
	case errors.As(err, &tr):
		return KindTransport
	default:
		return ""
	}
}

// IsNotFound reports whether err is a NotFoundError. Facade lookups use it
// where a missing resource is an expected answer rather than a failure.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
