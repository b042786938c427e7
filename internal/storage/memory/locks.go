package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/congo-pay/wallet_ledger/internal/apperr"
	"github.com/congo-pay/wallet_ledger/internal/storage"
)

// lockTable hands out exclusive row locks. Each key owns a one-slot channel:
// sending acquires, receiving releases. A slot lives only while some unit holds
// or waits for it.
type lockTable struct {
	mu      sync.Mutex
	slots   map[string]*slot
	timeout time.Duration
}

type slot struct {
	ch   chan struct{}
	refs int
}

func newLockTable(timeout time.Duration) *lockTable {
	return &lockTable{slots: make(map[string]*slot), timeout: timeout}
}

// ref returns the slot for key and counts the caller as a user of it.
func (t *lockTable) ref(key string) *slot {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		t.slots[key] = s
	}
	s.refs++
	return s
}

func (t *lockTable) unref(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.slots[key]
	if !ok {
		return
	}
	if s.refs--; s.refs == 0 {
		delete(t.slots, key)
	}
}

func (t *lockTable) acquire(ctx context.Context, key string, mode storage.LockMode) error {
	s := t.ref(key)
	if err := t.wait(ctx, key, s.ch, mode); err != nil {
		t.unref(key)
		return err
	}
	return nil
}

func (t *lockTable) wait(ctx context.Context, key string, ch chan struct{}, mode storage.LockMode) error {
	if mode == storage.LockNoWait {
		select {
		case ch <- struct{}{}:
			return nil
		default:
			return fmt.Errorf("lock %s: %w", key, apperr.ErrResourceBusy)
		}
	}

	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	select {
	case ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("lock %s: %w", key, apperr.ErrResourceBusy)
		}
		return ctx.Err()
	}
}

// release frees a lock taken by acquire.
func (t *lockTable) release(key string) {
	t.mu.Lock()
	s := t.slots[key]
	t.mu.Unlock()
	<-s.ch
	t.unref(key)
}

// size reports how many keys currently have a slot.
func (t *lockTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.slots)
}
