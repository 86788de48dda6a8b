package storage

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps credentials in redis under a shared namespace. Useful when
// several portal tools on one host should share a single session.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "medihub:session"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, s.prefix+":"+key).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	return s.client.Set(ctx, s.prefix+":"+key, value, 0).Err()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+":"+key).Err()
}

func (s *RedisStore) Clear(ctx context.Context) error {
	keys := []string{
		KeyAccessToken, KeyRefreshToken, KeyRefreshTokenExpiration,
		KeyUserRole, KeyUserSeq, KeyIsLogined, KeyUserInfo,
	}
	pipe := s.client.Pipeline()
	for _, k := range keys {
		pipe.Del(ctx, s.prefix+":"+k)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Close() error { return s.client.Close() }
