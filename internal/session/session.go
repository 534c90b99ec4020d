package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/seantiz/electric/internal/engine"
	"github.com/seantiz/electric/internal/mdi"
	"github.com/seantiz/electric/internal/scenario"
)

// ErrRoleUnbound is returned when a scenario's active role has no engine.
var ErrRoleUnbound = errors.New("session: role not bound")

// Exchange describes one completed command and its payload transfer.
type Exchange struct {
	Role     engine.Role
	Command  mdi.Command
	Step     int
	Elements int
	Duration time.Duration
}

// Option configures a Session.
type Option func(*Session)

// WithExchangeHook registers fn to be called after every completed exchange,
// including EXIT. fn runs on the session goroutine.
func WithExchangeHook(fn func(Exchange)) Option {
	return func(s *Session) {
		s.hook = fn
	}
}

// Session drives scenarios over a set of bound engines.
type Session struct {
	bindings *engine.Bindings
	logger   *slog.Logger
	hook     func(Exchange)

	counts  mdi.Counts
	states  map[engine.Role]State
	used    map[engine.Role]bool
	buffers map[mdi.Command]mdi.Payload
}

// New creates a session that owns b.
func New(b *engine.Bindings, logger *slog.Logger, opts ...Option) *Session {
	s := &Session{
		bindings: b,
		logger:   logger,
		states:   make(map[engine.Role]State),
		used:     make(map[engine.Role]bool),
		buffers:  make(map[mdi.Command]mdi.Payload),
	}
	for _, r := range b.Roles() {
		s.states[r] = StateBound
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the lifecycle state of role's engine.
func (s *Session) State(r engine.Role) State {
	return s.states[r]
}

// Participants returns the roles that have been commanded, in binding order.
func (s *Session) Participants() []engine.Role {
	var roles []engine.Role
	for _, r := range s.bindings.Roles() {
		if s.used[r] {
			roles = append(roles, r)
		}
	}
	return roles
}

// Counts returns the session counts fixed so far.
func (s *Session) Counts() mdi.Counts {
	return s.counts
}

// Run executes sc against its active engine. Any error aborts the run; the
// caller then closes the bindings without EXIT.
func (s *Session) Run(ctx context.Context, sc *scenario.Scenario) (*Result, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	role := sc.Active
	ch, ok := s.bindings.Get(role)
	if !ok {
		return nil, fmt.Errorf("%w: scenario %s needs %s", ErrRoleUnbound, sc.Name, role)
	}
	s.used[role] = true

	res := &Result{Scenario: sc.Name}
	s.logger.Info("scenario started",
		"scenario", sc.Name,
		"role", role.String(),
		"steps", sc.Steps,
	)

	for _, st := range sc.Prologue {
		if err := s.exchange(ctx, role, ch, st, NoStep, res); err != nil {
			return nil, err
		}
	}

	for i := range sc.Steps {
		for _, st := range sc.Loop {
			if err := s.exchange(ctx, role, ch, st, i, res); err != nil {
				return nil, fmt.Errorf("step %d: %w", i, err)
			}
		}
		stepsTotal.WithLabelValues(sc.Name).Inc()
	}

	for _, sum := range sc.Summary {
		p, ok := s.buffers[sum.Command]
		if !ok {
			s.logger.Warn("summary buffer never filled", "scenario", sc.Name, "command", string(sum.Command))
			continue
		}
		res.Records = append(res.Records, Record{
			Step:    NoStep,
			Command: sum.Command,
			Format:  sum.Report,
			Payload: p,
		})
	}

	res.Counts = s.counts
	s.logger.Info("scenario completed",
		"scenario", sc.Name,
		"role", role.String(),
		"records", len(res.Records),
	)
	return res, nil
}

// exchange issues one step on ch.
func (s *Session) exchange(ctx context.Context, role engine.Role, ch mdi.Channel, st scenario.Step, step int, res *Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	spec, err := mdi.Lookup(st.Command)
	if err != nil {
		return err
	}
	if !role.Supports(st.Command) {
		return fmt.Errorf("%w: %s does not answer %s", mdi.ErrProtocol, role, st.Command)
	}
	if s.states[role] == StateTerminated {
		return fmt.Errorf("%w: %s after EXIT on %s", mdi.ErrTransport, st.Command, role)
	}

	start := time.Now()
	var elements int

	switch spec.Direction {
	case mdi.Request:
		n, err := spec.Shape.Len(s.counts)
		if err != nil {
			return fmt.Errorf("%s: %w", st.Command, err)
		}
		if err := ch.SendCommand(st.Command); err != nil {
			return err
		}
		p, err := ch.Recv(spec.Shape.Type, n)
		if err != nil {
			return fmt.Errorf("%s: %w", st.Command, err)
		}
		if err := s.bind(spec.Binds, p, st.Command); err != nil {
			return err
		}
		s.buffers[st.Command] = p
		elements = n
		if st.Report != scenario.FormatNone {
			res.Records = append(res.Records, Record{
				Step:    step,
				Command: st.Command,
				Format:  st.Report,
				Payload: p,
			})
		}

	case mdi.Push:
		n, err := spec.Shape.Len(s.counts)
		if err != nil {
			return fmt.Errorf("%s: %w", st.Command, err)
		}
		if st.Push == nil {
			return fmt.Errorf("%w: %s has no payload", mdi.ErrProtocol, st.Command)
		}
		p := *st.Push
		if err := p.Check(spec.Shape.Type, n); err != nil {
			return fmt.Errorf("%s: %w", st.Command, err)
		}
		if err := ch.SendCommand(st.Command); err != nil {
			return err
		}
		if err := ch.Send(p); err != nil {
			return fmt.Errorf("%s: %w", st.Command, err)
		}
		if err := s.bind(spec.Binds, p, st.Command); err != nil {
			return err
		}
		elements = n

	case mdi.Action:
		next, err := s.advance(role, st.Command)
		if err != nil {
			return err
		}
		if err := ch.SendCommand(st.Command); err != nil {
			return err
		}
		s.states[role] = next

	default:
		return fmt.Errorf("%w: %s cannot be issued as a scenario step", mdi.ErrProtocol, st.Command)
	}

	s.record(role, st.Command, step, elements, start)
	return nil
}

// advance returns the state role moves to when cmd is issued.
func (s *Session) advance(role engine.Role, cmd mdi.Command) (State, error) {
	cur := s.states[role]
	var next State
	switch cmd {
	case mdi.CmdInitMD:
		next = StateInitialized
	case mdi.CmdForces:
		next = StateStepping
	default:
		return cur, nil
	}
	if !ValidTransition(cur, next) {
		return cur, fmt.Errorf("%w: %s while %s is %s", mdi.ErrProtocol, cmd, role, cur)
	}
	return next, nil
}

// bind fixes a session count from the single integer in p. A count that
// changes after it is known is reported but never resizes buffers.
func (s *Session) bind(e mdi.Extent, p mdi.Payload, cmd mdi.Command) error {
	if e == mdi.ExtentNone {
		return nil
	}
	v, err := p.Int(0)
	if err != nil {
		return fmt.Errorf("%s: %w", cmd, err)
	}
	if v < 0 {
		return fmt.Errorf("%w: %s returned negative count %d", mdi.ErrProtocol, cmd, v)
	}
	if prev, ok := s.counts.Of(e); ok {
		if prev != v {
			s.logger.Warn("count changed after it was fixed",
				"command", string(cmd),
				"count", e.String(),
				"fixed", prev,
				"reported", v,
			)
		}
		return nil
	}
	s.counts.Set(e, v)
	return nil
}

func (s *Session) record(role engine.Role, cmd mdi.Command, step, elements int, start time.Time) {
	d := time.Since(start)
	exchangeDuration.WithLabelValues(string(cmd)).Observe(d.Seconds())
	s.logger.Debug("exchange",
		"role", role.String(),
		"command", string(cmd),
		"step", step,
		"elements", elements,
	)
	if s.hook != nil {
		s.hook(Exchange{
			Role:     role,
			Command:  cmd,
			Step:     step,
			Elements: elements,
			Duration: d,
		})
	}
}

// Terminate sends EXIT to every engine that took part, in binding order,
// then closes all bindings. Engines that were bound but never commanded
// are closed without EXIT.
func (s *Session) Terminate() error {
	var errs []error
	for _, r := range s.Participants() {
		if s.states[r] == StateTerminated {
			continue
		}
		ch, _ := s.bindings.Get(r)
		start := time.Now()
		if err := ch.SendCommand(mdi.CmdExit); err != nil {
			errs = append(errs, fmt.Errorf("exit %s: %w", r, err))
			continue
		}
		s.states[r] = StateTerminated
		s.record(r, mdi.CmdExit, NoStep, 0, start)
		s.logger.Info("engine terminated", "role", r.String())
	}
	if err := s.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Close releases every binding without sending EXIT.
func (s *Session) Close() error {
	return s.bindings.Close()
}
