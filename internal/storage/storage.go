// Package storage holds the contracts shared by the persistence backends: the
// atomic unit, row lock modes and paginated reads.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNoUnit is returned when a locking read or write that must run inside an
// atomic unit is called outside of one.
var ErrNoUnit = errors.New("operation requires an atomic unit")

// LockMode selects how a row lock is acquired.
type LockMode int

const (
	// LockWait blocks until the row lock is free.
	LockWait LockMode = iota
	// LockNoWait fails immediately with apperr.ErrResourceBusy when the row is locked.
	LockNoWait
)

func (m LockMode) String() string {
	if m == LockNoWait {
		return "nowait"
	}
	return "wait"
}

// ParseLockMode maps the configuration strings "wait" and "nowait".
func ParseLockMode(v string) (LockMode, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "wait", "blocking":
		return LockWait, nil
	case "nowait", "no_wait", "fail_fast":
		return LockNoWait, nil
	default:
		return LockWait, fmt.Errorf("unknown lock mode %q", v)
	}
}

// Transactor runs a function inside one atomic unit. The unit travels in the
// context handed to fn; every store call made with that context joins it. Any
// error returned by fn aborts the unit and discards all of its writes. Row
// locks taken inside the unit are released when it ends.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}
