package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"
)

const keyPrefix = "intake:lock:customer:"

// releaseScript deletes the key only while it still holds our token.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`

var errHeld = errors.New("lock held")

type redisClient interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

// Redis locks ids across processes with one SET NX PX key per customer.
// Keys expire after ttl so a crashed holder cannot block forever. Keys are
// not refreshed while held; config requires ttl to exceed the acquire wait and
// a scope's transaction is expected to finish well inside ttl.
type Redis struct {
	client redisClient
	ttl    time.Duration
	wait   time.Duration
	logger *slog.Logger
}

func NewRedis(client redisClient, ttl, wait time.Duration, logger *slog.Logger) *Redis {
	return &Redis{
		client: client,
		ttl:    ttl,
		wait:   wait,
		logger: logger.With("component", "lock"),
	}
}

// NewRedisClient connects and pings the server.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return client, nil
}

func lockKey(id int64) string {
	return keyPrefix + strconv.FormatInt(id, 10)
}

func (r *Redis) backoff() retry.Backoff {
	b := retry.NewExponential(10 * time.Millisecond)
	b = retry.WithJitterPercent(20, b)
	b = retry.WithCappedDuration(250*time.Millisecond, b)
	return retry.WithMaxDuration(r.wait, b)
}

func (r *Redis) Lock(ctx context.Context, ids []int64) (func(), error) {
	ids = sortedUnique(ids)
	token := uuid.NewString()
	var held []string

	unlock := func() {
		// Release even if the request context is already cancelled.
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		for i := len(held) - 1; i >= 0; i-- {
			if err := r.client.Eval(ctx, releaseScript, []string{held[i]}, token).Err(); err != nil {
				r.logger.Warn("release lock", "key", held[i], "error", err)
			}
		}
	}

	for _, id := range ids {
		key := lockKey(id)
		err := retry.Do(ctx, r.backoff(), func(ctx context.Context) error {
			ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
			if err != nil {
				return retry.RetryableError(err)
			}
			if !ok {
				return retry.RetryableError(errHeld)
			}
			return nil
		})
		if err != nil {
			unlock()
			if errors.Is(err, errHeld) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return nil, fmt.Errorf("%w: customer %d", ErrTimeout, id)
			}
			return nil, fmt.Errorf("acquire lock for customer %d: %w", id, err)
		}
		held = append(held, key)
	}
	return unlock, nil
}
