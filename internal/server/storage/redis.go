package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the game record as one JSON value under a single key and
// admin sessions as expiring keys. Writes use WATCH/MULTI so a concurrent
// writer aborts the transaction.
type RedisStore struct {
	rdb    *redis.Client
	key    string
	prefix string
}

// NewRedisStore connects to rawURL (redis:// or rediss://). A non-empty
// token replaces the password from the URL.
func NewRedisStore(ctx context.Context, rawURL, token, key, prefix string) (*RedisStore, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, fmt.Errorf("redis URL required")
	}
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if token != "" {
		opts.Password = token
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisStore{rdb: rdb, key: key, prefix: prefix}, nil
}

func (r *RedisStore) Load(ctx context.Context) (Record, error) {
	return r.get(ctx, r.rdb)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (r *RedisStore) get(ctx context.Context, c getter) (Record, error) {
	raw, err := c.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("redis get: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, fmt.Errorf("corrupt game record: %w", err)
	}
	return cloneRecord(rec), nil
}

func (r *RedisStore) Save(ctx context.Context, rec Record, expectedVersion int64) (Record, error) {
	var saved Record

	err := r.rdb.Watch(ctx, func(tx *redis.Tx) error {
		var current int64
		stored, err := r.get(ctx, tx)
		switch {
		case errors.Is(err, ErrNotFound):
		case err != nil:
			return err
		default:
			current = stored.Version
		}
		if current != expectedVersion {
			return ErrVersionConflict
		}

		saved = cloneRecord(rec)
		saved.Version = expectedVersion + 1
		saved.UpdatedAt = time.Now().UTC()
		raw, err := json.Marshal(saved)
		if err != nil {
			return fmt.Errorf("failed to encode game record: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, r.key, raw, 0)
			return nil
		})
		return err
	}, r.key)

	if errors.Is(err, redis.TxFailedErr) {
		return Record{}, ErrVersionConflict
	}
	if err != nil {
		return Record{}, err
	}
	return saved, nil
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *RedisStore) Close() error {
	return r.rdb.Close()
}

func (r *RedisStore) sessionKey(id string) string {
	return r.prefix + "session:" + id
}

// CreateSession stores s with a TTL matching its expiry
func (r *RedisStore) CreateSession(ctx context.Context, s Session) error {
	ttl := time.Until(s.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session already expired")
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if err := r.rdb.Set(ctx, r.sessionKey(s.ID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}
	return nil
}

func (r *RedisStore) GetSession(ctx context.Context, id string) (Session, error) {
	raw, err := r.rdb.Get(ctx, r.sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("redis get session: %w", err)
	}

	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return Session{}, fmt.Errorf("corrupt session: %w", err)
	}
	if !time.Now().Before(s.ExpiresAt) {
		return Session{}, ErrNotFound
	}
	return s, nil
}

func (r *RedisStore) DeleteSession(ctx context.Context, id string) error {
	return r.rdb.Del(ctx, r.sessionKey(id)).Err()
}

// DeleteExpiredSessions is a no-op; session keys expire on their own
func (r *RedisStore) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	return 0, nil
}
