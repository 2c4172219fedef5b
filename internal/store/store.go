// Package store remembers, per change, the last revision handed to the CI server.
// Entries are only ever added or overwritten, never deleted.
package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Backend names accepted by New
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// RevisionStore maps a change id to the last revision built for it
type RevisionStore interface {
	Get(ctx context.Context, changeID string) (revision string, ok bool, err error)
	Set(ctx context.Context, changeID, revision string) error
	Close() error
}

// Options selects and configures a backend
type Options struct {
	Backend   string
	Path      string
	RedisAddr string
	RedisDB   int
	KeyPrefix string
}

// New opens the configured backend
func New(ctx context.Context, opts Options) (RevisionStore, error) {
	switch opts.Backend {
	case BackendMemory, "":
		return NewMemoryStore(), nil
	case BackendFile:
		return OpenFileStore(opts.Path)
	case BackendSQLite:
		return OpenSQLiteStore(opts.Path)
	case BackendRedis:
		client := redis.NewClient(&redis.Options{Addr: opts.RedisAddr, DB: opts.RedisDB})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.RedisAddr, err)
		}
		return NewRedisStore(client, opts.KeyPrefix), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}
}
