package config

import (
	"os"
	"path/filepath"
)

type StoreConfig interface {
	GetStoreDir() string
	GetRedisAddr() string
	GetRedisPrefix() string
}

type Store struct{}

var _ StoreConfig = Store{}

// GetStoreDir returns the directory used by the file credential store.
// Defaults to an app-scoped directory under the user config dir.
func (Store) GetStoreDir() string {
	if v := GetEnv("SESSION_STORE_DIR", ""); v != "" {
		return v
	}
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "crm-session")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "crm-session")
}

// GetRedisAddr returns the Redis address for the Redis credential store.
// Empty means the Redis backend is not configured.
func (Store) GetRedisAddr() string {
	return GetEnv("SESSION_REDIS_ADDR", "")
}

func (Store) GetRedisPrefix() string {
	return GetEnv("SESSION_REDIS_PREFIX", "crmsession")
}
