package auth

import "errors"

var (
	LoginInProgressErr   = errors.New("login already in progress")
	NoRefreshTokenErr    = errors.New("no refresh token available")
	MissingDependencyErr = errors.New("missing dependency")
	MissingUserErr       = errors.New("login response missing user")
)
