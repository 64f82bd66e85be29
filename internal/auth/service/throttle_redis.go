package service

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisThrottleCountPrefix = "authn:throttle:count:"
	redisThrottleLockPrefix  = "authn:throttle:lock:"
)

// RedisThrottle is a LoginThrottle backed by Redis so multiple instances
// share failure counts and lockouts. Counter keys expire on their own, which
// doubles as the sweep.
type RedisThrottle struct {
	client redis.UniversalClient
}

func NewRedisThrottle(client redis.UniversalClient) *RedisThrottle {
	return &RedisThrottle{client: client}
}

func (t *RedisThrottle) Status(ctx context.Context, identity, origin string) (ThrottleStatus, error) {
	ttl, err := t.client.PTTL(ctx, redisThrottleLockPrefix+throttleKey(identity, origin)).Result()
	if err != nil {
		return ThrottleStatus{}, fmt.Errorf("throttle status: %w", err)
	}
	if ttl <= 0 {
		return ThrottleStatus{}, nil
	}
	remaining := int(ttl.Round(time.Second) / time.Second)
	if remaining < 1 {
		remaining = 1
	}
	return ThrottleStatus{Locked: true, RemainingSeconds: remaining}, nil
}

func (t *RedisThrottle) RecordFailure(ctx context.Context, identity, origin string) error {
	key := throttleKey(identity, origin)

	locked, err := t.client.Exists(ctx, redisThrottleLockPrefix+key).Result()
	if err != nil {
		return fmt.Errorf("throttle record: %w", err)
	}
	if locked > 0 {
		return nil
	}

	countKey := redisThrottleCountPrefix + key
	failures, err := t.client.Incr(ctx, countKey).Result()
	if err != nil {
		return fmt.Errorf("throttle record: %w", err)
	}
	// Refresh the record TTL on every failure so an active attacker does
	// not have the counter reset out from under the lockout schedule.
	if err := t.client.Expire(ctx, countKey, throttleRecordTTL).Err(); err != nil {
		return fmt.Errorf("throttle record: %w", err)
	}

	if d := lockDurationFor(int(failures)); d > 0 {
		if err := t.client.Set(ctx, redisThrottleLockPrefix+key, failures, d).Err(); err != nil {
			return fmt.Errorf("throttle lock: %w", err)
		}
	}
	return nil
}

func (t *RedisThrottle) ClearOnSuccess(ctx context.Context, identity, origin string) error {
	key := throttleKey(identity, origin)
	if err := t.client.Del(ctx, redisThrottleCountPrefix+key, redisThrottleLockPrefix+key).Err(); err != nil {
		return fmt.Errorf("throttle clear: %w", err)
	}
	return nil
}

// Sweep is a no-op for Redis; key expiry handles stale records.
func (t *RedisThrottle) Sweep(context.Context) error { return nil }
