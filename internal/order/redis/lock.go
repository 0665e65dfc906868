package redis

import (
	"context"
	"fmt"
	"time"

	"ms-pettag/internal/logger"

	"github.com/go-redis/redis/v8"
)

const confirmLockPrefix = "order_confirm_lock:"

// releaseScript deletes the key only while it still holds the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Redis struct {
	Client *redis.Client
	TTL    time.Duration
	Logger *logger.Logger
}

func NewRedis(client *redis.Client, ttl time.Duration, log *logger.Logger) *Redis {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Redis{Client: client, TTL: ttl, Logger: log}
}

func confirmKey(orderID string) string {
	return confirmLockPrefix + orderID
}

// LockOrder tries to take the confirmation lock for orderID. token identifies the holder.
func (r *Redis) LockOrder(ctx context.Context, orderID, token string) (bool, error) {
	ok, err := r.Client.SetNX(ctx, confirmKey(orderID), token, r.TTL).Result()
	if err != nil {
		return false, fmt.Errorf("lock order %s: %w", orderID, err)
	}
	if ok {
		r.Logger.Debug("REDIS", fmt.Sprintf("confirmation lock taken for order %s (ttl %s)", orderID, r.TTL))
	}
	return ok, nil
}

// UnlockOrder releases the lock if token still owns it. An expired lock is not an error.
func (r *Redis) UnlockOrder(ctx context.Context, orderID, token string) error {
	n, err := releaseScript.Run(ctx, r.Client, []string{confirmKey(orderID)}, token).Int()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("unlock order %s: %w", orderID, err)
	}
	if n == 0 {
		r.Logger.Warn("REDIS", fmt.Sprintf("confirmation lock for order %s was not held by %s", orderID, token))
	}
	return nil
}
