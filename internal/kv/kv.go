// Package kv is the key-value substrate visitor key sets are persisted in. It plays
// the role browser local storage plays for a client-side storefront.
package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store loads and saves opaque values by key. Load returns nil, nil for absent keys.
type Store interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, value []byte) error
}

// ErrEmptyKey is returned when a blank key is used.
var ErrEmptyKey = errors.New("kv: empty key")

// Driver names accepted by Open.
const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverRedis  = "redis"
)

// Options selects and configures a backend for Open.
type Options struct {
	Driver string
	// Dir is the root directory of the file driver.
	Dir string
	// TTL expires redis keys; zero keeps them forever.
	TTL time.Duration
	// Redis is the shared client used by the redis driver.
	Redis *redis.Client
}

// Open constructs the backend named by opts.Driver.
func Open(opts Options) (Store, error) {
	switch opts.Driver {
	case "", DriverMemory:
		return NewMemoryStore(), nil
	case DriverFile:
		return NewFileStore(opts.Dir)
	case DriverRedis:
		if opts.Redis == nil {
			return nil, errors.New("kv: redis driver requires a client")
		}
		return NewRedisStore(opts.Redis, opts.TTL), nil
	default:
		return nil, fmt.Errorf("kv: unknown driver %q", opts.Driver)
	}
}
