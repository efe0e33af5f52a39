package credstore

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/nuvocrm/go-session-client/users"
)

var _ Store = (*Memory)(nil)

// Memory is an in-memory credential store. It backs tests and short-lived
// processes that do not need credentials to survive a restart.
type Memory struct {
	mu   sync.RWMutex
	keys map[string]string
}

// NewMemory creates an empty in-memory credential store.
func NewMemory() *Memory {
	return &Memory{keys: make(map[string]string)}
}

func (m *Memory) Save(rec Record) error {
	userJSON := ""
	if rec.User != nil {
		b, err := json.Marshal(rec.User)
		if err != nil {
			return err
		}
		userJSON = string(b)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.keys[KeyAuthToken] = rec.AccessToken
	m.keys[KeyRefreshToken] = rec.RefreshToken
	m.keys[KeyUserID] = rec.UserID
	if rec.TokenExpiry.IsZero() {
		delete(m.keys, KeyTokenExpiry)
	} else {
		m.keys[KeyTokenExpiry] = rec.TokenExpiry.Format(time.RFC3339Nano)
	}
	if userJSON == "" {
		delete(m.keys, KeyUser)
	} else {
		m.keys[KeyUser] = userJSON
	}
	return nil
}

func (m *Memory) SaveAccess(token string, expiry time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.keys[KeyAuthToken] = token
	m.keys[KeyTokenExpiry] = expiry.Format(time.RFC3339Nano)
	return nil
}

func (m *Memory) Read() (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return decodeRecord(func(key string) string { return m.keys[key] }), nil
}

func (m *Memory) ClearAccess() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.keys, KeyAuthToken)
	delete(m.keys, KeyTokenExpiry)
	return nil
}

func (m *Memory) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.keys = make(map[string]string)
	return nil
}

// decodeRecord assembles a Record from raw key values. Malformed values
// decode to absent fields, never errors: stale or corrupted storage means
// "no valid session", not a fault.
func decodeRecord(get func(key string) string) Record {
	rec := Record{
		AccessToken:  get(KeyAuthToken),
		RefreshToken: get(KeyRefreshToken),
		UserID:       get(KeyUserID),
	}
	if raw := get(KeyTokenExpiry); raw != "" {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			rec.TokenExpiry = t
		}
	}
	if raw := get(KeyUser); raw != "" {
		var u users.User
		if err := json.Unmarshal([]byte(raw), &u); err == nil {
			rec.User = &u
		}
	}
	return rec
}
