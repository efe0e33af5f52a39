package errors

import (
	"errors"
	"fmt"
)

// Common error types for the CRM session client
var (
	// Credential errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account locked")
	ErrRateLimited        = errors.New("too many attempts")
	ErrLoginInProgress    = errors.New("login already in progress")

	// Token errors
	ErrSessionExpired      = errors.New("session expired")
	ErrNoSession           = errors.New("no stored session")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")

	// Storage-consistency errors (handled internally, never user-facing)
	ErrCredentialMismatch = errors.New("stored credentials do not match token identity")

	// General errors
	ErrNotFound    = errors.New("not found")
	ErrInternal    = errors.New("internal error")
	ErrUnsupported = errors.New("unsupported operation")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
