package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps revisions in a single hash so several bridge processes can share them
type RedisStore struct {
	rdb       redis.UniversalClient
	keyPrefix string
}

func NewRedisStore(rdb redis.UniversalClient, keyPrefix string) *RedisStore {
	return &RedisStore{rdb: rdb, keyPrefix: keyPrefix}
}

func (s *RedisStore) key(parts ...string) string {
	prefix := s.keyPrefix
	if prefix == "" {
		prefix = "gerrit-bridge"
	}
	return fmt.Sprintf("%s:%s", prefix, strings.Join(parts, ":"))
}

func (s *RedisStore) Get(ctx context.Context, changeID string) (string, bool, error) {
	rev, err := s.rdb.HGet(ctx, s.key("revisions"), changeID).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read revision for %s: %w", changeID, err)
	}
	return rev, true, nil
}

func (s *RedisStore) Set(ctx context.Context, changeID, revision string) error {
	if err := s.rdb.HSet(ctx, s.key("revisions"), changeID, revision).Err(); err != nil {
		return fmt.Errorf("failed to store revision for %s: %w", changeID, err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
