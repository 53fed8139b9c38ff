package session

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisActivityStore persists activity markers in Redis so the idle clock
// survives server restarts and is shared across instances.
type RedisActivityStore struct {
	Rdb    *redis.Client
	Prefix string
}

func NewRedisActivityStore(rdb *redis.Client) *RedisActivityStore {
	return &RedisActivityStore{Rdb: rdb, Prefix: "session:activity:"}
}

func (s *RedisActivityStore) LastActivity(ctx context.Context, key string) (time.Time, bool, error) {
	v, err := s.Rdb.Get(ctx, s.Prefix+key).Int64()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.UnixMilli(v), true, nil
}

// Touch writes the marker with its expiry anchored at the activity time,
// not at the write time. A restored marker from before a restart keeps its
// original idle horizon instead of gaining a fresh full TTL.
func (s *RedisActivityStore) Touch(ctx context.Context, key string, at time.Time, ttl time.Duration) error {
	remaining := markerTTL(at, ttl, time.Now())
	if remaining <= 0 {
		return s.Rdb.Del(ctx, s.Prefix+key).Err()
	}
	return s.Rdb.Set(ctx, s.Prefix+key, at.UnixMilli(), remaining).Err()
}

// markerTTL is the time left until at+ttl as seen from now.
func markerTTL(at time.Time, ttl time.Duration, now time.Time) time.Duration {
	return at.Add(ttl).Sub(now)
}

func (s *RedisActivityStore) Clear(ctx context.Context, key string) error {
	return s.Rdb.Del(ctx, s.Prefix+key).Err()
}
