package lock

import (
	"context"
	"sync"
	"time"
)

// Locker provides cluster-wide mutual exclusion for scheduled jobs.
// Params: lock name and TTL guarding against holder crashes.
// Returns: non-blocking try-acquire semantics; the TTL expires abandoned
// locks without operator intervention.
type Locker interface {
	TryAcquire(ctx context.Context, name string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, name string) error
	Close() error
}

// MemoryLocker keeps locks in process memory for single-instance mode.
// Params: expiry map keyed by lock name and injected clock.
// Returns: locker implementation without external dependencies.
type MemoryLocker struct {
	mu    sync.Mutex
	now   func() time.Time
	locks map[string]time.Time
}

// NewMemoryLocker creates an in-memory locker.
// Params: now function (defaults to time.Now when nil).
// Returns: initialized locker.
func NewMemoryLocker(now func() time.Time) *MemoryLocker {
	if now == nil {
		now = time.Now
	}
	return &MemoryLocker{now: now, locks: make(map[string]time.Time)}
}

// TryAcquire takes the lock unless an unexpired holder exists.
// Params: context, lock name, and TTL.
// Returns: true when acquired.
func (l *MemoryLocker) TryAcquire(_ context.Context, name string, ttl time.Duration) (bool, error) {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	if expiresAt, held := l.locks[name]; held && now.Before(expiresAt) {
		return false, nil
	}
	l.locks[name] = now.Add(ttl)
	return true, nil
}

// Release drops the lock.
// Params: context and lock name.
// Returns: nil (in-memory delete).
func (l *MemoryLocker) Release(_ context.Context, name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.locks, name)
	return nil
}

// Close releases locker resources.
// Params: none.
// Returns: nil.
func (l *MemoryLocker) Close() error {
	return nil
}
