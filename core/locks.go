package core

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

const defaultLockWait = 30 * time.Second

func refreshLockKey(profileKey string) string {
	return "refresh:" + strings.TrimSpace(profileKey)
}

func submissionLockKey(profileKey string, year, period int) string {
	return "submit:" + strings.TrimSpace(profileKey) + ":" + strconv.Itoa(year) + ":" + strconv.Itoa(period)
}

// MemoryProfileLocker serializes work per key inside one process. Acquire
// blocks until the key is free, the wait budget elapses, or ctx is done;
// a caller that waited out a refresh must re-read state rather than assume
// it still holds fresh facts.
type MemoryProfileLocker struct {
	mu   sync.Mutex
	sems map[string]chan struct{}
}

func NewMemoryProfileLocker() *MemoryProfileLocker {
	return &MemoryProfileLocker{
		sems: make(map[string]chan struct{}),
	}
}

func (l *MemoryProfileLocker) Acquire(ctx context.Context, key string, wait time.Duration) (LockHandle, error) {
	if l == nil {
		return nil, fmt.Errorf("core: profile locker is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("core: lock key is required for acquisition")
	}
	if wait <= 0 {
		wait = defaultLockWait
	}
	if ctx == nil {
		ctx = context.Background()
	}

	sem := l.semaphore(key)
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case sem <- struct{}{}:
		return &memoryLockHandle{sem: sem}, nil
	case <-timer.C:
		return nil, fmt.Errorf("core: lock already held for key %q", key)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *MemoryProfileLocker) semaphore(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	sem, ok := l.sems[key]
	if !ok {
		sem = make(chan struct{}, 1)
		l.sems[key] = sem
	}
	return sem
}

type memoryLockHandle struct {
	sem  chan struct{}
	once sync.Once
}

func (h *memoryLockHandle) Unlock(_ context.Context) error {
	if h == nil || h.sem == nil {
		return nil
	}
	h.once.Do(func() {
		<-h.sem
	})
	return nil
}

var _ ProfileLocker = (*MemoryProfileLocker)(nil)
