package correlation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "teamsbot:correlation:"
	// redisMarkerField keeps a hash non-empty when Put carries no fields.
	redisMarkerField = "_createdAt"
)

// setIfAbsentScript returns -1 when the record is missing, otherwise the HSETNX result.
var setIfAbsentScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -1
end
return redis.call('HSETNX', KEYS[1], ARGV[1], ARGV[2])
`)

// RedisStore is a Store backed by Redis hashes with key expiry.
type RedisStore struct {
	client *redis.Client
}

// OpenRedis connects to the Redis server at url (redis://host:port/db).
func OpenRedis(ctx context.Context, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisStore(client), nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func redisKey(messageID string) string { return redisKeyPrefix + messageID }

func (s *RedisStore) Put(ctx context.Context, messageID string, fields map[string]string) error {
	key := redisKey(messageID)
	values := []any{redisMarkerField, strconv.FormatInt(time.Now().UnixMilli(), 10)}
	for k, v := range fields {
		if v != "" {
			values = append(values, k, v)
		}
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, values...)
		pipe.Expire(ctx, key, TTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis put: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, messageID string) (*Record, error) {
	key := redisKey(messageID)
	var (
		all *redis.MapStringStringCmd
		ttl *redis.DurationCmd
	)
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		all = pipe.HGetAll(ctx, key)
		ttl = pipe.PTTL(ctx, key)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	values := all.Val()
	if len(values) == 0 {
		return nil, ErrNotFound
	}
	rec := &Record{MessageID: messageID, Fields: make(map[string]string, len(values))}
	for k, v := range values {
		if k == redisMarkerField {
			continue
		}
		rec.Fields[k] = v
	}
	if d := ttl.Val(); d > 0 {
		rec.ExpiresAt = time.Now().Add(d)
	}
	return rec, nil
}

func (s *RedisStore) SetFieldIfAbsent(ctx context.Context, messageID, field, value string) (bool, error) {
	n, err := setIfAbsentScript.Run(ctx, s.client, []string{redisKey(messageID)}, field, value).Int()
	if err != nil {
		return false, fmt.Errorf("redis set field: %w", err)
	}
	switch n {
	case -1:
		return false, ErrNotFound
	case 1:
		return true, nil
	default:
		return false, nil
	}
}

func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
