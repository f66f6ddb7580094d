package lock

import (
	"context"
	"sync"
	"time"

	ierr "github.com/mspfin/billing-engine/internal/errors"
)

// MemoryLocker is a process-local Locker for local mode and tests. ttl is ignored.
type MemoryLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{slots: make(map[string]chan struct{})}
}

func (l *MemoryLocker) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[key] = ch
	}
	return ch
}

func (l *MemoryLocker) WithLock(ctx context.Context, key string, _ time.Duration, fn func(context.Context) error) error {
	if fn == nil {
		return ierr.NewError("lock callback not provided").Mark(ierr.ErrSystem)
	}
	ch := l.slot(key)
	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return ierr.WithError(ctx.Err()).
			WithHintf("Timed out waiting for lock %s", key).
			Mark(ierr.ErrVersionConflict)
	}
	defer func() { <-ch }()
	return fn(ctx)
}
