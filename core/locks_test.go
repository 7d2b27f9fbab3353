package core

import (
	"context"
	"testing"
	"time"
)

func TestMemoryProfileLocker_SecondAcquireTimesOut(t *testing.T) {
	locker := NewMemoryProfileLocker()

	handle, err := locker.Acquire(context.Background(), "refresh:mtd-vat", time.Second)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	if _, err := locker.Acquire(context.Background(), "refresh:mtd-vat", 50*time.Millisecond); err == nil {
		t.Fatalf("expected second acquire to time out while the lock is held")
	}

	if err := handle.Unlock(context.Background()); err != nil {
		t.Fatalf("unlock: %v", err)
	}

	handle, err = locker.Acquire(context.Background(), "refresh:mtd-vat", time.Second)
	if err != nil {
		t.Fatalf("acquire after unlock: %v", err)
	}
	_ = handle.Unlock(context.Background())
}

func TestMemoryProfileLocker_AcquireBlocksUntilRelease(t *testing.T) {
	locker := NewMemoryProfileLocker()

	handle, err := locker.Acquire(context.Background(), "submit:mtd-vat:2026:1", time.Second)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	acquired := make(chan error, 1)
	go func() {
		second, err := locker.Acquire(context.Background(), "submit:mtd-vat:2026:1", 2*time.Second)
		if err == nil {
			_ = second.Unlock(context.Background())
		}
		acquired <- err
	}()

	time.Sleep(50 * time.Millisecond)
	if err := handle.Unlock(context.Background()); err != nil {
		t.Fatalf("unlock: %v", err)
	}

	if err := <-acquired; err != nil {
		t.Fatalf("expected blocked caller to acquire after release, got %v", err)
	}
}

func TestMemoryProfileLocker_AcquireHonorsContext(t *testing.T) {
	locker := NewMemoryProfileLocker()

	handle, err := locker.Acquire(context.Background(), "refresh:mtd-vat", time.Second)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	defer handle.Unlock(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := locker.Acquire(ctx, "refresh:mtd-vat", time.Minute); err == nil {
		t.Fatalf("expected cancelled context to abort the acquire")
	}
}

func TestLockKeys(t *testing.T) {
	if got := refreshLockKey(" mtd-vat "); got != "refresh:mtd-vat" {
		t.Fatalf("refresh lock key = %q", got)
	}
	if got := submissionLockKey("mtd-vat", 2026, 1); got != "submit:mtd-vat:2026:1" {
		t.Fatalf("submission lock key = %q", got)
	}
}

func TestMemoryLockHandle_UnlockIsIdempotent(t *testing.T) {
	locker := NewMemoryProfileLocker()

	handle, err := locker.Acquire(context.Background(), "refresh:mtd-vat", time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := handle.Unlock(context.Background()); err != nil {
		t.Fatalf("first unlock: %v", err)
	}
	if err := handle.Unlock(context.Background()); err != nil {
		t.Fatalf("second unlock: %v", err)
	}

	// The key must be reusable after the double unlock.
	handle, err = locker.Acquire(context.Background(), "refresh:mtd-vat", time.Second)
	if err != nil {
		t.Fatalf("reacquire: %v", err)
	}
	_ = handle.Unlock(context.Background())
}
