package sessionstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tonimelisma/irdrive/internal/session"
)

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Options selects and configures a backing.
type Options struct {
	Backend    string
	SQLitePath string
	RedisURL   string
}

// Backend is a session.Store that holds resources until closed.
type Backend interface {
	session.Store
	Close() error
}

type memoryBackend struct {
	*session.MemoryStore
}

func (memoryBackend) Close() error { return nil }

// Open constructs the backing named by opts.Backend. An empty name selects
// the in-memory store.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch opts.Backend {
	case "", BackendMemory:
		logger.Debug("using in-memory session store")
		return memoryBackend{session.NewMemoryStore()}, nil

	case BackendSQLite:
		if opts.SQLitePath == "" {
			return nil, fmt.Errorf("sessionstore: sqlite backend requires a database path")
		}

		return NewSQLiteStore(ctx, opts.SQLitePath, logger)

	case BackendRedis:
		if opts.RedisURL == "" {
			return nil, fmt.Errorf("sessionstore: redis backend requires a connection url")
		}

		client, err := ConnectRedis(ctx, opts.RedisURL)
		if err != nil {
			return nil, err
		}

		logger.Info("redis session store connected", slog.String("addr", client.Options().Addr))

		return NewRedisStore(client), nil

	default:
		return nil, fmt.Errorf("sessionstore: unknown backend %q", opts.Backend)
	}
}
