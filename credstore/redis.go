package credstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

var _ Store = (*Redis)(nil)

const redisOpTimeout = 5 * time.Second

// Redis keeps the credential record in a Redis hash. It serves headless
// deployments where several workers share one CRM session (service
// accounts, schedulers) and a local file would not be visible to all of
// them.
type Redis struct {
	client redis.UniversalClient
	key    string
}

// NewRedis creates a Redis-backed credential store. prefix scopes the hash
// key so multiple sessions can share one Redis instance.
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = "crmsession"
	}
	return &Redis{client: client, key: prefix + ":credentials"}
}

func (r *Redis) Save(rec Record) error {
	fields := map[string]interface{}{
		KeyAuthToken:    rec.AccessToken,
		KeyRefreshToken: rec.RefreshToken,
		KeyUserID:       rec.UserID,
	}
	if !rec.TokenExpiry.IsZero() {
		fields[KeyTokenExpiry] = rec.TokenExpiry.Format(time.RFC3339Nano)
	}
	if rec.User != nil {
		b, err := json.Marshal(rec.User)
		if err != nil {
			return err
		}
		fields[KeyUser] = string(b)
	}

	ctx, cancel := r.opCtx()
	defer cancel()

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.key)
		pipe.HSet(ctx, r.key, fields)
		return nil
	})
	return err
}

func (r *Redis) SaveAccess(token string, expiry time.Time) error {
	ctx, cancel := r.opCtx()
	defer cancel()

	return r.client.HSet(ctx, r.key, map[string]interface{}{
		KeyAuthToken:   token,
		KeyTokenExpiry: expiry.Format(time.RFC3339Nano),
	}).Err()
}

func (r *Redis) Read() (Record, error) {
	ctx, cancel := r.opCtx()
	defer cancel()

	fields, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return Record{}, err
	}
	return decodeRecord(func(key string) string { return fields[key] }), nil
}

func (r *Redis) ClearAccess() error {
	ctx, cancel := r.opCtx()
	defer cancel()

	return r.client.HDel(ctx, r.key, KeyAuthToken, KeyTokenExpiry).Err()
}

func (r *Redis) Clear() error {
	ctx, cancel := r.opCtx()
	defer cancel()

	return r.client.Del(ctx, r.key).Err()
}

func (r *Redis) opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), redisOpTimeout)
}
