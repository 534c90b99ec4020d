package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/seantiz/electric/internal/mdi"
)

var (
	// ErrUnrecognizedEngine is returned when an engine reports a name
	// outside the expected role set.
	ErrUnrecognizedEngine = errors.New("engine: unrecognized engine name")

	// ErrDuplicateEngine is returned when a second engine reports a role
	// that is already bound.
	ErrDuplicateEngine = errors.New("engine: duplicate engine")
)

// AcceptFunc blocks until the next engine connects.
type AcceptFunc func(ctx context.Context) (mdi.Channel, error)

// Bindings maps each bound role to its channel, remembering binding order.
type Bindings struct {
	order    []Role
	channels map[Role]mdi.Channel
}

func newBindings() *Bindings {
	return &Bindings{channels: make(map[Role]mdi.Channel)}
}

func (b *Bindings) bind(r Role, ch mdi.Channel) {
	b.order = append(b.order, r)
	b.channels[r] = ch
}

// Get returns the channel bound to r.
func (b *Bindings) Get(r Role) (mdi.Channel, bool) {
	ch, ok := b.channels[r]
	return ch, ok
}

// Roles returns the bound roles in the order they were bound.
func (b *Bindings) Roles() []Role {
	return append([]Role(nil), b.order...)
}

// Len returns the number of bound roles.
func (b *Bindings) Len() int {
	return len(b.order)
}

// ByName returns the bindings keyed by the name each engine reported.
func (b *Bindings) ByName() map[string]mdi.Channel {
	m := make(map[string]mdi.Channel, len(b.channels))
	for r, ch := range b.channels {
		m[r.String()] = ch
	}
	return m
}

// Close closes every bound channel. Calling Close again is a no-op.
func (b *Bindings) Close() error {
	var errs []error
	for _, r := range b.order {
		if err := b.channels[r].Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", r, err))
		}
		delete(b.channels, r)
	}
	boundEngines.Sub(float64(len(b.order)))
	b.order = nil
	return errors.Join(errs...)
}

// Registry accepts engine connections and binds each to one of a fixed set
// of roles.
type Registry struct {
	roles  map[Role]bool
	logger *slog.Logger
}

// NewRegistry creates a registry that accepts engines of the given roles.
func NewRegistry(logger *slog.Logger, roles ...Role) *Registry {
	allowed := make(map[Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return &Registry{roles: allowed, logger: logger}
}

// Allowed returns the accepted roles, sorted.
func (r *Registry) Allowed() []Role {
	roles := make([]Role, 0, len(r.roles))
	for role := range r.roles {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}

// Resolve accepts expected connections, asks each for its name and binds it
// to the matching role. It is all-or-nothing: on any failure every accepted
// channel is closed and no bindings are returned.
func (r *Registry) Resolve(ctx context.Context, accept AcceptFunc, expected int) (*Bindings, error) {
	if expected < 1 {
		return nil, fmt.Errorf("resolve engines: expected count %d must be positive", expected)
	}

	b := newBindings()
	for i := range expected {
		ch, err := accept(ctx)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("accept engine %d of %d: %w", i+1, expected, err)
		}

		role, name, err := r.identify(ch, b)
		if err != nil {
			ch.Close()
			b.Close()
			r.logger.Error("engine rejected", "engine", name, "index", i, "error", err)
			return nil, err
		}

		r.logger.Info("engine resolved",
			"engine", name,
			"role", role.String(),
			"index", i,
		)
		b.bind(role, ch)
		boundEngines.Inc()
	}

	return b, nil
}

// identify sends <NAME on ch and classifies the reply against the allowed
// roles and the roles already in b.
func (r *Registry) identify(ch mdi.Channel, b *Bindings) (Role, string, error) {
	if err := ch.SendCommand(mdi.CmdName); err != nil {
		return 0, "", fmt.Errorf("query engine name: %w", err)
	}
	p, err := ch.Recv(mdi.Char, mdi.MaxNameLength)
	if err != nil {
		return 0, "", fmt.Errorf("receive engine name: %w", err)
	}

	name := p.Text()
	role, ok := ParseRole(name)
	if !ok || !r.roles[role] {
		return 0, name, fmt.Errorf("%w: %q (expected one of %v)", ErrUnrecognizedEngine, name, r.Allowed())
	}
	if _, bound := b.Get(role); bound {
		return 0, name, fmt.Errorf("%w: %s is already bound", ErrDuplicateEngine, name)
	}
	return role, name, nil
}
