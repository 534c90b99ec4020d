package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/seantiz/electric/internal/mdi"
)

// fakeEngine answers <NAME with a fixed name and records whether it was closed.
type fakeEngine struct {
	name    string
	pending mdi.Command
	closed  bool
}

func (f *fakeEngine) SendCommand(cmd mdi.Command) error {
	if f.closed {
		return mdi.ErrTransport
	}
	f.pending = cmd
	return nil
}

func (f *fakeEngine) Send(mdi.Payload) error { return nil }

func (f *fakeEngine) Recv(dt mdi.Datatype, count int) (mdi.Payload, error) {
	if f.pending != mdi.CmdName {
		return mdi.Payload{}, mdi.ErrProtocol
	}
	f.pending = ""
	return mdi.Chars(f.name, count)
}

func (f *fakeEngine) Close() error {
	f.closed = true
	return nil
}

func acceptFrom(engines ...*fakeEngine) AcceptFunc {
	i := 0
	return func(ctx context.Context) (mdi.Channel, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if i >= len(engines) {
			return nil, io.EOF
		}
		e := engines[i]
		i++
		return e, nil
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestResolveSingleEngine(t *testing.T) {
	reg := NewRegistry(discardLogger(), RoleNoEwald)
	e := &fakeEngine{name: "NO_EWALD"}

	b, err := reg.Resolve(context.Background(), acceptFrom(e), 1)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	defer b.Close()

	ch, ok := b.Get(RoleNoEwald)
	if !ok || ch != e {
		t.Fatalf("Get(NO_EWALD) = %v, %v", ch, ok)
	}
	if b.Len() != 1 {
		t.Errorf("Len = %d, want 1", b.Len())
	}
	if _, ok := b.ByName()["NO_EWALD"]; !ok {
		t.Error("ByName missing NO_EWALD")
	}
}

func TestResolveAnyOrder(t *testing.T) {
	orders := [][]string{
		{"EWALD", "NOEWALD"},
		{"NOEWALD", "EWALD"},
	}

	for _, names := range orders {
		reg := NewRegistry(discardLogger(), RoleEwald, RoleNonEwald)
		var engines []*fakeEngine
		for _, n := range names {
			engines = append(engines, &fakeEngine{name: n})
		}

		b, err := reg.Resolve(context.Background(), acceptFrom(engines...), 2)
		if err != nil {
			t.Fatalf("Resolve(%v): %v", names, err)
		}

		if b.Len() != 2 {
			t.Errorf("Len = %d, want 2", b.Len())
		}
		roles := b.Roles()
		if roles[0].String() != names[0] || roles[1].String() != names[1] {
			t.Errorf("Roles = %v, want binding order %v", roles, names)
		}
		b.Close()
	}
}

func TestResolveSubsetOfRoles(t *testing.T) {
	reg := NewRegistry(discardLogger(), RoleEwald, RoleNonEwald)
	b, err := reg.Resolve(context.Background(), acceptFrom(&fakeEngine{name: "EWALD"}), 1)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	defer b.Close()

	if _, ok := b.Get(RoleNonEwald); ok {
		t.Error("NOEWALD bound without a connection")
	}
}

func TestResolveUnrecognized(t *testing.T) {
	tests := []struct {
		name  string
		roles []Role
		reply string
	}{
		{"unknown name", []Role{RoleNoEwald}, "QM_ENGINE"},
		{"known name outside scenario", []Role{RoleNoEwald}, "EWALD"},
		{"empty name", []Role{RoleEwald}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistry(discardLogger(), tt.roles...)
			e := &fakeEngine{name: tt.reply}

			_, err := reg.Resolve(context.Background(), acceptFrom(e), 1)
			if !errors.Is(err, ErrUnrecognizedEngine) {
				t.Fatalf("Resolve error = %v, want ErrUnrecognizedEngine", err)
			}
			if !e.closed {
				t.Error("rejected engine was not closed")
			}
		})
	}
}

func TestResolveUnrecognizedAfterBound(t *testing.T) {
	reg := NewRegistry(discardLogger(), RoleEwald, RoleNonEwald)
	first := &fakeEngine{name: "EWALD"}
	second := &fakeEngine{name: "QM_ENGINE"}

	b, err := reg.Resolve(context.Background(), acceptFrom(first, second), 2)
	if !errors.Is(err, ErrUnrecognizedEngine) {
		t.Fatalf("Resolve error = %v, want ErrUnrecognizedEngine", err)
	}
	if b != nil {
		t.Error("Resolve returned bindings after a rejected engine")
	}
	if !first.closed || !second.closed {
		t.Errorf("closed = %v/%v, want both closed", first.closed, second.closed)
	}
}

func TestResolveDuplicate(t *testing.T) {
	reg := NewRegistry(discardLogger(), RoleEwald, RoleNonEwald)
	first := &fakeEngine{name: "EWALD"}
	second := &fakeEngine{name: "EWALD"}

	_, err := reg.Resolve(context.Background(), acceptFrom(first, second), 2)
	if !errors.Is(err, ErrDuplicateEngine) {
		t.Fatalf("Resolve error = %v, want ErrDuplicateEngine", err)
	}
	if !first.closed || !second.closed {
		t.Errorf("closed = %v/%v, want both closed", first.closed, second.closed)
	}
}

func TestResolveAcceptFailureClosesBound(t *testing.T) {
	reg := NewRegistry(discardLogger(), RoleEwald, RoleNonEwald)
	first := &fakeEngine{name: "NOEWALD"}

	_, err := reg.Resolve(context.Background(), acceptFrom(first), 2)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("Resolve error = %v, want io.EOF in chain", err)
	}
	if !first.closed {
		t.Error("bound engine not closed after accept failure")
	}
}

func TestResolveContextCancelled(t *testing.T) {
	reg := NewRegistry(discardLogger(), RoleNoEwald)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := reg.Resolve(ctx, acceptFrom(&fakeEngine{name: "NO_EWALD"}), 1)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Resolve error = %v, want context.Canceled", err)
	}
}

func TestResolveExpectedCount(t *testing.T) {
	reg := NewRegistry(discardLogger(), RoleNoEwald)
	if _, err := reg.Resolve(context.Background(), acceptFrom(), 0); err == nil {
		t.Fatal("Resolve with zero expected engines succeeded")
	}
}

func TestBindingsCloseIdempotent(t *testing.T) {
	reg := NewRegistry(discardLogger(), RoleNoEwald)
	b, err := reg.Resolve(context.Background(), acceptFrom(&fakeEngine{name: "NO_EWALD"}), 1)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if b.Len() != 0 {
		t.Errorf("Len after Close = %d, want 0", b.Len())
	}
}

func TestAllowedSorted(t *testing.T) {
	reg := NewRegistry(discardLogger(), RoleNonEwald, RoleEwald)
	got := reg.Allowed()
	if len(got) != 2 || got[0] != RoleEwald || got[1] != RoleNonEwald {
		t.Errorf("Allowed = %v", got)
	}
}
