package boxdrive

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DistributedLock provides Redis-based distributed locking for coordinating
// operations across multiple processes/servers.
//
// Keysmith only serializes goroutines within one process (see keysmith.go).
// When a GitLabStore is deployed behind more than one frontage replica,
// DistributedLock wraps its bucket-scoped critical sections with a Redis
// SETNX-based cross-process mutex so two replicas never race to commit to
// the same bucket directory.
type DistributedLock struct {
	redis      *redis.Client
	keyPrefix  string
	defaultTTL time.Duration
	ownsClient bool // If true, Close() will close the Redis client
}

// NewDistributedLock creates a new distributed lock manager using Redis
func NewDistributedLock(redis *redis.Client, keyPrefix string) *DistributedLock {
	return &DistributedLock{
		redis:      redis,
		keyPrefix:  keyPrefix,
		defaultTTL: 30 * time.Second,
		ownsClient: false,
	}
}

// NewDistributedLockWithOwnedClient creates a lock manager that owns the Redis client
func NewDistributedLockWithOwnedClient(redis *redis.Client, keyPrefix string) *DistributedLock {
	return &DistributedLock{
		redis:      redis,
		keyPrefix:  keyPrefix,
		defaultTTL: 30 * time.Second,
		ownsClient: true,
	}
}

// Lock acquires a distributed lock for the given key.
// Returns a release function that MUST be called to release the lock.
//
// Example:
//
//	release, err := lock.Lock(ctx, "photos", 5*time.Second)
//	if err != nil {
//	    return err
//	}
//	defer release()
//
//	// Critical section - only one replica can commit to this bucket at a time
func (l *DistributedLock) Lock(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if ttl == 0 {
		ttl = l.defaultTTL
	}

	lockKey := fmt.Sprintf("%s:lock:%s", l.keyPrefix, key)
	lockValue := fmt.Sprintf("%d", time.Now().UnixNano())

	// Try to acquire lock with SET NX (only set if not exists)
	success, err := l.redis.SetNX(ctx, lockKey, lockValue, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}

	if !success {
		return nil, WithContext(ErrLockHeld, map[string]interface{}{
			"key": key,
			"ttl": ttl,
		})
	}

	// Return a release function
	release := func() {
		// Use a background context for cleanup (don't fail if parent context canceled)
		cleanupCtx := context.Background()

		// Only delete if we still own the lock (check value matches)
		script := `
			if redis.call("get", KEYS[1]) == ARGV[1] then
				return redis.call("del", KEYS[1])
			else
				return 0
			end
		`
		_, _ = l.redis.Eval(cleanupCtx, script, []string{lockKey}, lockValue).Result() //nolint:errcheck // Cleanup operation, safe to ignore
	}

	return release, nil
}

// TryLockWithRetry attempts to acquire a lock with exponential backoff retry.
// Useful for handling temporary contention between replicas.
func (l *DistributedLock) TryLockWithRetry(ctx context.Context, key string, ttl time.Duration, maxRetries int) (func(), error) {
	config := DefaultRetryConfig()
	config.MaxRetries = maxRetries

	var lastErr error
	for i := 0; i < config.MaxRetries; i++ {
		release, err := l.Lock(ctx, key, ttl)
		if err == nil {
			return release, nil
		}

		lastErr = err

		// Check if context canceled
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		// Wait with exponential backoff
		if i < config.MaxRetries-1 {
			backoff := config.InitialBackoff * time.Duration(int64(1)<<uint(i))
			jitter := time.Duration(float64(backoff) * config.JitterPercent)
			time.Sleep(backoff + jitter)
		}
	}

	return nil, fmt.Errorf("failed to acquire lock after %d retries: %w", config.MaxRetries, lastErr)
}

// WithBucketLock runs fn with a distributed lock held on bucket, in addition
// to whatever in-process Keysmith lock the caller already holds. This is how
// a GitLabStore serializes tree-read-modify-commit sequences across replicas:
// Keysmith keeps two goroutines in the same process from racing, DistributedLock
// keeps two replicas from racing.
//
// Metrics: records lock acquisition, contention, and hold duration via metrics.
func WithBucketLock(ctx context.Context, lock *DistributedLock, metrics Metrics, bucket string, ttl time.Duration, fn func(ctx context.Context) error) error {
	if lock == nil {
		return fmt.Errorf("distributed lock is required for WithBucketLock")
	}
	if metrics == nil {
		metrics = &NoOpMetrics{}
	}
	if ttl == 0 {
		ttl = 10 * time.Second
	}

	lockStart := time.Now()

	release, err := lock.TryLockWithRetry(ctx, bucket, ttl, 3)

	lockWaitTime := time.Since(lockStart)
	metrics.Timing(MetricLockWaitTime, lockWaitTime, "bucket", bucket)

	if err != nil {
		metrics.Increment(MetricLockFailed, "bucket", bucket)
		metrics.Increment(MetricLockTimeout, "bucket", bucket)
		return fmt.Errorf("failed to acquire bucket lock for %s: %w", bucket, err)
	}

	metrics.Increment(MetricLockAcquired, "bucket", bucket)

	if lockWaitTime > 5*time.Millisecond {
		metrics.Increment(MetricLockContention, "bucket", bucket)
	}

	defer release()

	executionStart := time.Now()
	fnErr := fn(ctx)
	metrics.Timing(MetricLockDuration, time.Since(executionStart), "bucket", bucket)

	return fnErr
}

// Close releases resources held by the distributed lock
func (dl *DistributedLock) Close() error {
	if dl.ownsClient && dl.redis != nil {
		return dl.redis.Close()
	}
	return nil
}
