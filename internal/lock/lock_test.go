package lock

import (
	"context"
	"testing"
	"time"
)

func TestMemoryLockerMutualExclusion(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	locker := NewMemoryLocker(func() time.Time { return now })

	acquired, err := locker.TryAcquire(context.Background(), "job", time.Minute)
	if err != nil || !acquired {
		t.Fatalf("expected first acquire to succeed, got %v %v", acquired, err)
	}
	acquired, err = locker.TryAcquire(context.Background(), "job", time.Minute)
	if err != nil || acquired {
		t.Fatalf("expected held lock to refuse, got %v %v", acquired, err)
	}

	if err := locker.Release(context.Background(), "job"); err != nil {
		t.Fatalf("release: %v", err)
	}
	acquired, err = locker.TryAcquire(context.Background(), "job", time.Minute)
	if err != nil || !acquired {
		t.Fatalf("expected acquire after release, got %v %v", acquired, err)
	}
}

func TestMemoryLockerTTLExpiry(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	locker := NewMemoryLocker(func() time.Time { return now })

	if acquired, _ := locker.TryAcquire(context.Background(), "job", time.Minute); !acquired {
		t.Fatalf("expected initial acquire")
	}

	now = now.Add(61 * time.Second)
	acquired, err := locker.TryAcquire(context.Background(), "job", time.Minute)
	if err != nil || !acquired {
		t.Fatalf("expected expired lock to be reacquired, got %v %v", acquired, err)
	}
}

func TestMemoryLockerIndependentNames(t *testing.T) {
	t.Parallel()

	locker := NewMemoryLocker(nil)
	if acquired, _ := locker.TryAcquire(context.Background(), "a", time.Minute); !acquired {
		t.Fatalf("expected lock a")
	}
	if acquired, _ := locker.TryAcquire(context.Background(), "b", time.Minute); !acquired {
		t.Fatalf("expected lock b to be independent")
	}
}
