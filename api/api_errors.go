package api

import (
	"fmt"

	ierrors "github.com/nuvocrm/go-session-client/internal/errors"
)

// Error is a failed backend operation carrying the human-readable message
// the UI displays directly. It wraps one of the shared sentinels so callers
// can branch on the error class with errors.Is.
type Error struct {
	Status  int
	Message string
	kind    error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("request failed with status %d", e.Status)
}

func (e *Error) Unwrap() error { return e.kind }

// newError classifies a failed response by status and expiry signal.
func newError(status int, message string, tokenExpired bool) *Error {
	kind := ierrors.ErrInternal
	switch status {
	case 401:
		if tokenExpired {
			kind = ierrors.ErrSessionExpired
		} else {
			kind = ierrors.ErrInvalidCredentials
		}
	case 423:
		kind = ierrors.ErrAccountLocked
	case 429:
		kind = ierrors.ErrRateLimited
	case 404:
		kind = ierrors.ErrNotFound
	}
	return &Error{Status: status, Message: message, kind: kind}
}
