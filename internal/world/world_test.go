package world

import (
	"context"
	"errors"
	"testing"
)

func TestLocalGroup(t *testing.T) {
	g := NewLocal()
	if g.Rank() != 0 {
		t.Errorf("Rank = %d, want 0", g.Rank())
	}
	if g.Size() != 1 {
		t.Errorf("Size = %d, want 1", g.Size())
	}
	if g.Crossed() {
		t.Error("barrier crossed before Barrier was called")
	}
}

func TestLocalBarrierOnce(t *testing.T) {
	g := NewLocal()
	if err := g.Barrier(context.Background()); err != nil {
		t.Fatalf("Barrier: %v", err)
	}
	if !g.Crossed() {
		t.Error("Crossed = false after Barrier")
	}
	if err := g.Barrier(context.Background()); !errors.Is(err, ErrBarrierCrossed) {
		t.Errorf("second Barrier error = %v, want ErrBarrierCrossed", err)
	}
}

func TestLocalBarrierCancelled(t *testing.T) {
	g := NewLocal()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := g.Barrier(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Barrier error = %v, want context.Canceled", err)
	}
	if g.Crossed() {
		t.Error("cancelled Barrier marked the group crossed")
	}
}
