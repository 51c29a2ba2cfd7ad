package lib

import (
	"context"
	"errors"
	"time"
)

var ErrTimeout = errors.New("lock timeout")

// Mutex is a channel-based mutex that supports timeout and context cancellation.
// Unlock of an unlocked mutex is a no-op.
type Mutex struct {
	ch chan struct{}
}

func NewMutex() Mutex {
	return Mutex{
		ch: make(chan struct{}, 1),
	}
}

func (m Mutex) Lock() {
	m.ch <- struct{}{}
}

func (m Mutex) Unlock() {
	select {
	case <-m.ch:
	default:
	}
}

func (m Mutex) TryLock() bool {
	select {
	case m.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

func (m Mutex) LockTimeout(timeout time.Duration) error {
	if m.TryLock() {
		return nil
	}

	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case m.ch <- struct{}{}:
		return nil
	case <-t.C:
		return ErrTimeout
	}
}

func (m Mutex) LockCtx(ctx context.Context) error {
	if m.TryLock() {
		return nil
	}

	select {
	case m.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
