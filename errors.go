package searchrouter

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors.
var (
	ErrNoBackends         = errors.New("searchrouter: at least one backend is required")
	ErrDuplicateBackend   = errors.New("searchrouter: duplicate backend name")
	ErrUnknownStrategy    = errors.New("searchrouter: unknown strategy")
	ErrNotDurable         = errors.New("searchrouter: quota change not persisted")
	ErrSnapshotNotFound   = errors.New("searchrouter: quota snapshot not found")
	ErrRateLimited        = errors.New("searchrouter: rate limited by backend")
	ErrAuthFailed         = errors.New("searchrouter: authentication failed")
	ErrInvalidRequest     = errors.New("searchrouter: invalid request")
	ErrBackendUnavailable = errors.New("searchrouter: backend unavailable")
	ErrNotConfigured      = errors.New("searchrouter: backend not configured")
)

// BackendError wraps an error with backend context.
type BackendError struct {
	Err        error
	Backend    string
	StatusCode int
}

func (e *BackendError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("searchrouter: backend=%s status=%d: %v", e.Backend, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("searchrouter: backend=%s: %v", e.Backend, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// StatusError maps a non-2xx HTTP status code from a backend to a BackendError.
// It returns nil for 2xx codes.
func StatusError(backend string, code int, body string) error {
	if code >= 200 && code < 300 {
		return nil
	}

	var base error
	switch {
	case code == http.StatusTooManyRequests:
		base = ErrRateLimited
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		base = ErrAuthFailed
	case code == http.StatusBadRequest || code == http.StatusUnprocessableEntity:
		base = ErrInvalidRequest
	default:
		base = ErrBackendUnavailable
	}

	if body != "" {
		base = fmt.Errorf("%w: %s", base, body)
	}
	return &BackendError{Err: base, Backend: backend, StatusCode: code}
}

// IsRetryable returns true if the error is transient. The dispatcher never
// retries; adapters may use this to drive their own retry policy.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrBackendUnavailable)
}
