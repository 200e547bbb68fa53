package session

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/example/facesaas-client/internal/logging"
)

// RedisStore persists the token in Redis, for clients that share a session
// across hosts.
type RedisStore struct {
	client         *redis.Client
	key            string
	ttl            time.Duration
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewRedisStore constructs a Redis-backed store. namespace prefixes the
// fixed token key; ttl of zero keeps the key until it is deleted.
func NewRedisStore(client *redis.Client, namespace string, ttl time.Duration, logger *zap.Logger) *RedisStore {
	key := TokenKey
	if namespace != "" {
		key = namespace + ":" + TokenKey
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{
		client:         client,
		key:            key,
		ttl:            ttl,
		logger:         logger.Named("redis_session_store"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

func (r *RedisStore) Load(ctx context.Context) (string, error) {
	var token string
	err := r.withRetry(ctx, "session.redis.get", func() error {
		value, err := r.client.Get(ctx, r.key).Result()
		if errors.Is(err, redis.Nil) {
			token = ""
			return nil
		}
		if err != nil {
			return err
		}
		token = value
		return nil
	})
	return token, err
}

func (r *RedisStore) Save(ctx context.Context, token string) error {
	return r.withRetry(ctx, "session.redis.set", func() error {
		return r.client.Set(ctx, r.key, token, r.ttl).Err()
	})
}

func (r *RedisStore) Delete(ctx context.Context) error {
	return r.withRetry(ctx, "session.redis.del", func() error {
		return r.client.Del(ctx, r.key).Err()
	})
}

func (r *RedisStore) withRetry(ctx context.Context, operation string, fn func() error) error {
	backoff := r.initialBackoff
	opLogger := logging.WithOperation(r.logger, operation, "")
	var err error
	for attempt := 0; attempt < r.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, "", ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= r.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("redis operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if !isTransientError(err) || attempt == r.retryAttempts-1 {
			opLogger.Error("redis operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, "", err)
		}
		opLogger.Warn("transient redis error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, "", err)
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var temporary interface{ Temporary() bool }
	return errors.As(err, &temporary) && temporary.Temporary()
}
