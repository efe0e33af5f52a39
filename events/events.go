// Package events is the in-process signal channel between the session
// components: token expiry detected by the transport, pre-expiry warnings
// from the scheduler, and server-driven forced-termination signals.
package events

import "time"

// TokenExpired signals that the access token was rejected or timed out.
// The session manager reacts by clearing credentials and demoting the
// session to unauthenticated.
type TokenExpired struct {
	Reason string
}

// SessionExpiring is the pre-expiry warning emitted by the refresh
// scheduler so the UI can prompt the user before an involuntary logout.
type SessionExpiring struct {
	ExpiresAt time.Time
	Remaining time.Duration
}

// AccountDeactivated is pushed when the backend reports the current
// account was deactivated. The session is terminated unconditionally.
type AccountDeactivated struct {
	Message string
}

// RoleDeactivated is pushed when a role is deactivated server-side.
// Only sessions whose user id appears in UserIDs are affected.
type RoleDeactivated struct {
	UserIDs   []string
	RoleName  string
	Timestamp time.Time
}

// NoticeLevel classifies user-facing notices.
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeWarning NoticeLevel = "warning"
)

// Notice is an informational message for the user (a toast in UI terms).
// Forced terminations and expiry warnings surface here, never as errors.
type Notice struct {
	Level   NoticeLevel
	Message string
}
