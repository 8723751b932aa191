package sessionstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tonimelisma/irdrive/internal/session"
)

// Key prefixes for records in Redis.
const (
	redisSessionPrefix = "irdrive:session:"
	redisFlowPrefix    = "irdrive:flow:"
)

// minFlowTTL keeps a flow about to expire from being stored without a TTL.
const minFlowTTL = time.Second

// Domain errors for the Redis backing.
var (
	ErrFailedToParseRedisURL = errors.New("sessionstore: failed to parse redis connection url")
	ErrRedisNotReady         = errors.New("sessionstore: redis did not respond to ping")
)

// RedisStore is a session.Store backed by Redis, so several instances can
// share sessions and the flow index. Expiry is enforced by key TTLs, which
// leaves nothing for Reap to do.
type RedisStore struct {
	client  redis.UniversalClient
	nowFunc func() time.Time
}

// NewRedisStore wraps an existing client. The caller owns the client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, nowFunc: time.Now}
}

// ConnectRedis parses a redis:// URL, connects and pings the server.
func ConnectRedis(ctx context.Context, connURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(connURL)
	if err != nil {
		return nil, errors.Join(ErrFailedToParseRedisURL, err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Join(ErrRedisNotReady, err)
	}

	return client, nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) GetSession(ctx context.Context, id string) (*session.Session, error) {
	data, err := s.client.Get(ctx, redisSessionPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, session.ErrSessionNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("sessionstore: reading session: %w", err)
	}

	return decodeSession(data)
}

func (s *RedisStore) PutSession(ctx context.Context, sess *session.Session) error {
	if sess == nil || sess.ID == "" {
		return errors.New("sessionstore: session ID is required")
	}

	key := redisSessionPrefix + sess.ID

	var ttl time.Duration
	if !sess.ExpiresAt.IsZero() {
		ttl = sess.ExpiresAt.Sub(s.nowFunc())
		if ttl <= 0 {
			return s.DeleteSession(ctx, sess.ID)
		}
	}

	data, err := encodeSession(sess)
	if err != nil {
		return err
	}

	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("sessionstore: writing session: %w", err)
	}

	return nil
}

func (s *RedisStore) DeleteSession(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, redisSessionPrefix+id).Err(); err != nil {
		return fmt.Errorf("sessionstore: deleting session: %w", err)
	}

	return nil
}

func (s *RedisStore) PutFlow(ctx context.Context, f *session.Flow) error {
	if f == nil || f.State == "" {
		return errors.New("sessionstore: flow state is required")
	}

	data, err := encodeFlow(f)
	if err != nil {
		return err
	}

	ttl := max(f.ExpiresAt.Sub(s.nowFunc()), minFlowTTL)

	ok, err := s.client.SetNX(ctx, redisFlowPrefix+f.State, data, ttl).Result()
	if err != nil {
		return fmt.Errorf("sessionstore: writing flow: %w", err)
	}

	if !ok {
		return session.ErrStateCollision
	}

	return nil
}

func (s *RedisStore) TakeFlow(ctx context.Context, state string, now time.Time) (*session.Flow, error) {
	data, err := s.client.GetDel(ctx, redisFlowPrefix+state).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, session.ErrFlowNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("sessionstore: taking flow: %w", err)
	}

	f, err := decodeFlow(data)
	if err != nil {
		return nil, err
	}

	if f.Expired(now) {
		return nil, session.ErrFlowExpired
	}

	return f, nil
}

func (s *RedisStore) DeleteFlow(ctx context.Context, state string) error {
	if err := s.client.Del(ctx, redisFlowPrefix+state).Err(); err != nil {
		return fmt.Errorf("sessionstore: deleting flow: %w", err)
	}

	return nil
}

// Reap is a no-op: Redis expires keys on its own.
func (s *RedisStore) Reap(_ context.Context, _ time.Time) (int, error) {
	return 0, nil
}
