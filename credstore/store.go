// Package credstore persists session credentials across client restarts.
// It is the client-side analogue of browser localStorage: a small key-value
// record holding the token pair, its expiry, and the owning user.
package credstore

import (
	"time"

	"github.com/nuvocrm/go-session-client/users"
)

// Storage keys. These form the persisted-state schema; readers must
// tolerate any subset being absent.
const (
	KeyAuthToken    = "authToken"
	KeyRefreshToken = "refreshToken"
	KeyTokenExpiry  = "tokenExpiry"
	KeyUserID       = "userId"
	KeyUser         = "user"
)

// Record is the full persisted credential set. Zero-value fields mean the
// corresponding key is absent in storage.
type Record struct {
	AccessToken  string
	RefreshToken string
	TokenExpiry  time.Time
	UserID       string
	User         *users.User
}

// HasToken reports whether an access token is present.
func (r Record) HasToken() bool { return r.AccessToken != "" }

// Expired reports whether the record's expiry has passed relative to now.
// A zero expiry counts as expired.
func (r Record) Expired(now time.Time) bool {
	return r.TokenExpiry.IsZero() || !r.TokenExpiry.After(now)
}

// Store is a durable credential store. Implementations must treat malformed
// stored values (bad JSON in the user slot, unparsable expiry) as absent
// rather than failing the read, and Clear/ClearAccess must be idempotent.
type Store interface {
	// Save writes the full record. All keys are written before Save returns;
	// subsequent reads see the new values.
	Save(rec Record) error

	// SaveAccess updates only the access token and its expiry, as happens
	// on a token refresh. Other keys are untouched.
	SaveAccess(token string, expiry time.Time) error

	// Read returns whatever subset of the record is present.
	Read() (Record, error)

	// ClearAccess removes the access token and expiry keys only.
	ClearAccess() error

	// Clear removes all keys. Safe to call when already empty.
	Clear() error
}
