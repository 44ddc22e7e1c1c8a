package service

import (
	"context"
	"sync"
	"time"
)

// Locker is the mutual-exclusion port used to serialize returns on the
// same sale. Production uses the redis client (SetNX with TTL); tests and
// single-process deployments use LocalLocker.
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key string) error
}

const (
	lockRetryInterval = 25 * time.Millisecond
	lockRetryBudget   = 40
)

// acquireWithRetry polls the locker briefly before giving up with
// ErrLockNotAcquired.
func acquireWithRetry(ctx context.Context, locker Locker, key string, ttl time.Duration) error {
	for i := 0; i < lockRetryBudget; i++ {
		ok, err := locker.AcquireLock(ctx, key, ttl)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}
	return ErrLockNotAcquired
}

// LocalLocker is an in-process Locker. The TTL is ignored: locks live until
// released, which is correct for a single process because a crashed process
// takes its map with it.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewLocalLocker builds an in-process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: map[string]bool{}}
}

func (l *LocalLocker) AcquireLock(_ context.Context, key string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	return true, nil
}

func (l *LocalLocker) ReleaseLock(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}
