package credstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var _ Store = (*File)(nil)

// File persists credentials as one file per key under a directory,
// typically the user config dir. Files are created 0600, the directory
// 0700. Missing or unreadable files read as absent keys.
type File struct {
	dir string
}

// NewFile creates a file-backed credential store rooted at dir.
func NewFile(dir string) *File {
	return &File{dir: dir}
}

func (f *File) Save(rec Record) error {
	if err := os.MkdirAll(f.dir, 0o700); err != nil {
		return fmt.Errorf("credstore: create dir: %w", err)
	}

	values := map[string]string{
		KeyAuthToken:    rec.AccessToken,
		KeyRefreshToken: rec.RefreshToken,
		KeyUserID:       rec.UserID,
	}
	if !rec.TokenExpiry.IsZero() {
		values[KeyTokenExpiry] = rec.TokenExpiry.Format(time.RFC3339Nano)
	}
	if rec.User != nil {
		b, err := json.Marshal(rec.User)
		if err != nil {
			return fmt.Errorf("credstore: encode user: %w", err)
		}
		values[KeyUser] = string(b)
	}

	for _, key := range []string{KeyAuthToken, KeyRefreshToken, KeyTokenExpiry, KeyUserID, KeyUser} {
		v, ok := values[key]
		if !ok {
			_ = os.Remove(f.path(key))
			continue
		}
		if err := os.WriteFile(f.path(key), []byte(v), 0o600); err != nil {
			return fmt.Errorf("credstore: write %s: %w", key, err)
		}
	}
	return nil
}

func (f *File) SaveAccess(token string, expiry time.Time) error {
	if err := os.MkdirAll(f.dir, 0o700); err != nil {
		return fmt.Errorf("credstore: create dir: %w", err)
	}
	if err := os.WriteFile(f.path(KeyAuthToken), []byte(token), 0o600); err != nil {
		return fmt.Errorf("credstore: write %s: %w", KeyAuthToken, err)
	}
	if err := os.WriteFile(f.path(KeyTokenExpiry), []byte(expiry.Format(time.RFC3339Nano)), 0o600); err != nil {
		return fmt.Errorf("credstore: write %s: %w", KeyTokenExpiry, err)
	}
	return nil
}

func (f *File) Read() (Record, error) {
	return decodeRecord(func(key string) string {
		b, err := os.ReadFile(f.path(key))
		if err != nil {
			return ""
		}
		return strings.TrimSpace(string(b))
	}), nil
}

func (f *File) ClearAccess() error {
	for _, key := range []string{KeyAuthToken, KeyTokenExpiry} {
		if err := os.Remove(f.path(key)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("credstore: remove %s: %w", key, err)
		}
	}
	return nil
}

func (f *File) Clear() error {
	for _, key := range []string{KeyAuthToken, KeyRefreshToken, KeyTokenExpiry, KeyUserID, KeyUser} {
		if err := os.Remove(f.path(key)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("credstore: remove %s: %w", key, err)
		}
	}
	return nil
}

func (f *File) path(key string) string {
	return filepath.Join(f.dir, key)
}
