package service

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Escalating lockouts applied after a failed login attempt. Thresholds are
// checked most severe first against the post-increment failure count.
const (
	lockThresholdLong   = 15
	lockThresholdMedium = 10
	lockThresholdShort  = 5

	lockDurationLong   = 15 * time.Minute
	lockDurationMedium = 5 * time.Minute
	lockDurationShort  = 1 * time.Minute

	// Failure records untouched for this long are dropped by Sweep.
	throttleRecordTTL = time.Hour
)

// ThrottleStatus is the answer to "may this (identity, origin) pair attempt
// a login right now".
type ThrottleStatus struct {
	Locked           bool
	RemainingSeconds int
}

// LoginThrottle tracks failed login attempts per (identity, origin) pair and
// escalates lockouts. Implementations must not change the failure count for
// attempts made while the pair is locked.
type LoginThrottle interface {
	// Status reports whether the pair is currently locked out.
	Status(ctx context.Context, identity, origin string) (ThrottleStatus, error)

	// RecordFailure increments the failure count and engages a lockout when
	// a threshold is crossed. It is a no-op while the pair is locked.
	RecordFailure(ctx context.Context, identity, origin string) error

	// ClearOnSuccess resets the failure count after a successful login.
	ClearOnSuccess(ctx context.Context, identity, origin string) error

	// Sweep drops stale records. Called periodically by housekeeping.
	Sweep(ctx context.Context) error
}

// BackoffDelay returns the client-side retry delay suggested after the n-th
// consecutive failure: 1s doubling per failure, capped at 30s.
func BackoffDelay(failures int) time.Duration {
	if failures < 1 {
		return 0
	}
	delay := time.Second << (failures - 1)
	if failures > 6 || delay > 30*time.Second {
		return 30 * time.Second
	}
	return delay
}

func lockDurationFor(failures int) time.Duration {
	switch {
	case failures >= lockThresholdLong:
		return lockDurationLong
	case failures >= lockThresholdMedium:
		return lockDurationMedium
	case failures >= lockThresholdShort:
		return lockDurationShort
	default:
		return 0
	}
}

func throttleKey(identity, origin string) string {
	return strings.ToLower(strings.TrimSpace(identity)) + "|" + origin
}

type throttleRecord struct {
	failures  int
	lastSeen  time.Time
	lockUntil time.Time
}

// MemoryThrottle is the in-process LoginThrottle. It is sufficient for a
// single instance; deployments running several replicas behind a load
// balancer should use RedisThrottle so lockouts are shared.
type MemoryThrottle struct {
	mu      sync.Mutex
	records map[string]*throttleRecord

	// now is swappable for tests.
	now func() time.Time
}

func NewMemoryThrottle() *MemoryThrottle {
	return &MemoryThrottle{
		records: make(map[string]*throttleRecord),
		now:     time.Now,
	}
}

func (t *MemoryThrottle) Status(_ context.Context, identity, origin string) (ThrottleStatus, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[throttleKey(identity, origin)]
	if !ok {
		return ThrottleStatus{}, nil
	}
	now := t.now()
	if rec.lockUntil.After(now) {
		remaining := int(rec.lockUntil.Sub(now).Round(time.Second) / time.Second)
		if remaining < 1 {
			remaining = 1
		}
		return ThrottleStatus{Locked: true, RemainingSeconds: remaining}, nil
	}
	return ThrottleStatus{}, nil
}

func (t *MemoryThrottle) RecordFailure(_ context.Context, identity, origin string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := throttleKey(identity, origin)
	now := t.now()
	rec, ok := t.records[key]
	if !ok {
		rec = &throttleRecord{}
		t.records[key] = rec
	}
	if rec.lockUntil.After(now) {
		// Locked attempts never reach credential checking and must not
		// extend or reset the lockout.
		return nil
	}
	rec.failures++
	rec.lastSeen = now
	if d := lockDurationFor(rec.failures); d > 0 {
		rec.lockUntil = now.Add(d)
	}
	return nil
}

func (t *MemoryThrottle) ClearOnSuccess(_ context.Context, identity, origin string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.records, throttleKey(identity, origin))
	return nil
}

func (t *MemoryThrottle) Sweep(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-throttleRecordTTL)
	for key, rec := range t.records {
		if rec.lastSeen.Before(cutoff) && !rec.lockUntil.After(t.now()) {
			delete(t.records, key)
		}
	}
	return nil
}
