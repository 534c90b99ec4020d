// Package world models the process group the driver runs in. The driver
// only needs its rank, the group size, and the shutdown barrier.
package world

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrBarrierCrossed is returned when a participant reaches the shutdown
// barrier a second time.
var ErrBarrierCrossed = errors.New("world: barrier already crossed")

// Group is the cooperating process group.
type Group interface {
	Rank() int
	Size() int

	// Barrier blocks until every participant has reached it. Each
	// participant reaches it exactly once, at shutdown.
	Barrier(ctx context.Context) error
}

// Local is a group containing only the calling process.
type Local struct {
	mu      sync.Mutex
	crossed bool
}

var _ Group = (*Local)(nil)

// NewLocal returns a single-process group.
func NewLocal() *Local {
	return &Local{}
}

func (l *Local) Rank() int { return 0 }

func (l *Local) Size() int { return 1 }

// Barrier returns immediately for a single participant.
func (l *Local) Barrier(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("barrier: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.crossed {
		return ErrBarrierCrossed
	}
	l.crossed = true
	return nil
}

// Crossed reports whether the barrier has been reached.
func (l *Local) Crossed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.crossed
}
