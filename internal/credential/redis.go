package credential

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the three keys under prefix ("<prefix>:access", ...).
// Writes go through MULTI/EXEC so the keys change together.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration // 0 = no expiry
}

func NewRedisStore(rdb *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (r *RedisStore) key(name string) string { return r.prefix + ":" + name }

func (r *RedisStore) Load(ctx context.Context) (Blob, error) {
	names := []string{KeyAccess, KeyRefresh, KeyUser}
	keys := make([]string, len(names))
	for i, n := range names {
		keys[i] = r.key(n)
	}
	res, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return Blob{}, fmt.Errorf("redis mget credentials: %w", err)
	}
	vals := make(map[string]string, len(names))
	for i, v := range res {
		if s, ok := v.(string); ok {
			vals[names[i]] = s
		}
	}
	return fromValues(vals)
}

func (r *RedisStore) Save(ctx context.Context, b Blob) error {
	vals, err := toValues(b)
	if err != nil {
		return err
	}
	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, v := range vals {
			pipe.Set(ctx, r.key(k), v, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save credentials: %w", err)
	}
	return nil
}

func (r *RedisStore) Clear(ctx context.Context) error {
	if err := r.rdb.Del(ctx, r.key(KeyAccess), r.key(KeyRefresh), r.key(KeyUser)).Err(); err != nil {
		return fmt.Errorf("redis clear credentials: %w", err)
	}
	return nil
}
