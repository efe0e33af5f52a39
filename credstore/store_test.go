package credstore_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/nuvocrm/go-session-client/credstore"
	"github.com/nuvocrm/go-session-client/users"
)

func testRecord() credstore.Record {
	return credstore.Record{
		AccessToken:  "access-token-1",
		RefreshToken: "refresh-token-1",
		TokenExpiry:  time.Now().Add(time.Hour).UTC().Truncate(time.Millisecond),
		UserID:       "user-1",
		User: &users.User{
			ID:    "user-1",
			Email: "john.doe@example.com",
			Roles: []users.Role{{Name: "sales", Permissions: []users.Permission{{Key: "leads.view"}}}},
		},
	}
}

// storeFactories builds each backend fresh for the shared contract tests.
func storeFactories(t *testing.T) map[string]func(t *testing.T) credstore.Store {
	t.Helper()

	return map[string]func(t *testing.T) credstore.Store{
		"memory": func(t *testing.T) credstore.Store {
			return credstore.NewMemory()
		},
		"file": func(t *testing.T) credstore.Store {
			return credstore.NewFile(t.TempDir())
		},
		"redis": func(t *testing.T) credstore.Store {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = client.Close() })
			return credstore.NewRedis(client, "test")
		},
	}
}

func TestStoreRoundTrip(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			want := testRecord()

			require.NoError(t, store.Save(want))

			got, err := store.Read()
			require.NoError(t, err)
			require.Equal(t, want.AccessToken, got.AccessToken)
			require.Equal(t, want.RefreshToken, got.RefreshToken)
			require.Equal(t, want.UserID, got.UserID)
			require.True(t, want.TokenExpiry.Equal(got.TokenExpiry))
			require.NotNil(t, got.User)
			require.Equal(t, want.User.Email, got.User.Email)
			require.Equal(t, want.User.Roles, got.User.Roles)
		})
	}
}

func TestStoreSaveAccessKeepsOtherKeys(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			require.NoError(t, store.Save(testRecord()))

			newExpiry := time.Now().Add(2 * time.Hour).UTC().Truncate(time.Millisecond)
			require.NoError(t, store.SaveAccess("access-token-2", newExpiry))

			got, err := store.Read()
			require.NoError(t, err)
			require.Equal(t, "access-token-2", got.AccessToken)
			require.True(t, newExpiry.Equal(got.TokenExpiry))
			require.Equal(t, "refresh-token-1", got.RefreshToken)
			require.Equal(t, "user-1", got.UserID)
			require.NotNil(t, got.User)
		})
	}
}

func TestStoreClearAccess(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			require.NoError(t, store.Save(testRecord()))
			require.NoError(t, store.ClearAccess())

			got, err := store.Read()
			require.NoError(t, err)
			require.Empty(t, got.AccessToken)
			require.True(t, got.TokenExpiry.IsZero())
			require.Equal(t, "refresh-token-1", got.RefreshToken)
			require.Equal(t, "user-1", got.UserID)
		})
	}
}

func TestStoreClearIsIdempotent(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			require.NoError(t, store.Save(testRecord()))

			require.NoError(t, store.Clear())
			require.NoError(t, store.Clear())

			got, err := store.Read()
			require.NoError(t, err)
			require.Empty(t, got.AccessToken)
			require.Empty(t, got.RefreshToken)
			require.Empty(t, got.UserID)
			require.Nil(t, got.User)
		})
	}
}

func TestStoreReadEmpty(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			got, err := newStore(t).Read()
			require.NoError(t, err)
			require.False(t, got.HasToken())
			require.Nil(t, got.User)
		})
	}
}

func TestFileStoreMalformedUserReadsAsAbsent(t *testing.T) {
	dir := t.TempDir()
	store := credstore.NewFile(dir)
	require.NoError(t, store.Save(testRecord()))

	// Corrupt the user slot; the read must degrade to "no user", not fail.
	require.NoError(t, os.WriteFile(filepath.Join(dir, credstore.KeyUser), []byte("{not json"), 0o600))

	got, err := store.Read()
	require.NoError(t, err)
	require.Nil(t, got.User)
	require.Equal(t, "access-token-1", got.AccessToken)
}

func TestFileStoreMalformedExpiryReadsAsAbsent(t *testing.T) {
	dir := t.TempDir()
	store := credstore.NewFile(dir)
	require.NoError(t, store.Save(testRecord()))

	require.NoError(t, os.WriteFile(filepath.Join(dir, credstore.KeyTokenExpiry), []byte("yesterday"), 0o600))

	got, err := store.Read()
	require.NoError(t, err)
	require.True(t, got.TokenExpiry.IsZero())
}

func TestRecordExpired(t *testing.T) {
	now := time.Now()

	require.True(t, credstore.Record{}.Expired(now))
	require.True(t, credstore.Record{TokenExpiry: now.Add(-time.Minute)}.Expired(now))
	require.False(t, credstore.Record{TokenExpiry: now.Add(time.Minute)}.Expired(now))
}
