// Package session holds the in-memory session state machine. State only
// changes through dispatched actions, so every transition is explicit and
// auditable; consumers read snapshots or subscribe to changes.
package session

import (
	"time"

	"github.com/nuvocrm/go-session-client/users"
)

// ExpiredMessage is the user-facing error set when the session ends
// involuntarily.
const ExpiredMessage = "Session expired. Please login again."

// Session is the current authentication state. The zero value is an
// unauthenticated session that has not finished bootstrapping.
type Session struct {
	User         *users.User
	AccessToken  string
	RefreshToken string
	TokenExpiry  time.Time

	IsAuthenticated bool
	IsLoading       bool
	IsBootstrapping bool

	// Error is the last user-facing error message, cleared on the next
	// action. Empty when the last transition succeeded or was silent.
	Error string
}

// ActionType enumerates the discrete session transitions.
type ActionType int

const (
	LoginStart ActionType = iota
	LoginSuccess
	LoginFailure
	TokenExpired
	TokenRefreshed
	Logout
	CheckAuthSuccess
	CheckAuthFailure
	UpdateUser
)

func (t ActionType) String() string {
	switch t {
	case LoginStart:
		return "LOGIN_START"
	case LoginSuccess:
		return "LOGIN_SUCCESS"
	case LoginFailure:
		return "LOGIN_FAILURE"
	case TokenExpired:
		return "TOKEN_EXPIRED"
	case TokenRefreshed:
		return "TOKEN_REFRESHED"
	case Logout:
		return "LOGOUT"
	case CheckAuthSuccess:
		return "CHECK_AUTH_SUCCESS"
	case CheckAuthFailure:
		return "CHECK_AUTH_FAILURE"
	case UpdateUser:
		return "UPDATE_USER"
	}
	return "UNKNOWN"
}

// Action carries a transition and its payload. Unused payload fields are
// ignored by the reducer.
type Action struct {
	Type         ActionType
	User         *users.User
	AccessToken  string
	RefreshToken string
	TokenExpiry  time.Time
	Message      string
}
