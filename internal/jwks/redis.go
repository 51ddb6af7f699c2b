package jwks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const redisKeyPrefix = "jwks:"

// RedisClient is the subset of the go-redis client used by RedisStore.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// NewRedisClient creates a client from a redis:// or rediss:// URL.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	return redis.NewClient(opts), nil
}

// RedisStore shares fetched key sets between service replicas. Redis is an
// optimization only: if it cannot be read or written, the key set is fetched
// from the wrapped source as if the store was empty.
type RedisStore struct {
	client RedisClient
	key    string
	ttl    time.Duration
	source Source
}

var (
	_ Source      = (*RedisStore)(nil)
	_ Invalidator = (*RedisStore)(nil)
)

func NewRedisStore(client RedisClient, key string, ttl time.Duration, source Source) *RedisStore {
	return &RedisStore{
		client: client,
		key:    redisKeyPrefix + key,
		ttl:    ttl,
		source: source,
	}
}

func (s *RedisStore) KeySet(ctx context.Context) (KeySet, error) {
	log := zerolog.Ctx(ctx)

	data, err := s.client.Get(ctx, s.key).Bytes()
	switch {
	case err == nil:
		ks, perr := Parse(data)
		if perr == nil {
			return ks, nil
		}
		log.Warn().Err(perr).Str("key", s.key).Msg("shared key set unreadable, fetching")
	case errors.Is(err, redis.Nil):
		// not shared yet
	default:
		log.Warn().Err(err).Str("key", s.key).Msg("shared key set store unavailable, fetching")
	}

	ks, err := s.source.KeySet(ctx)
	if err != nil {
		return KeySet{}, err
	}

	encoded, err := json.Marshal(ks)
	if err == nil {
		err = s.client.Set(ctx, s.key, encoded, s.ttl).Err()
	}
	if err != nil {
		log.Warn().Err(err).Str("key", s.key).Msg("key set could not be shared")
	}

	return ks, nil
}

func (s *RedisStore) Invalidate(ctx context.Context) bool {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("key", s.key).Msg("shared key set could not be removed")
		return false
	}

	return true
}
