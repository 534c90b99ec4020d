// Package scenario describes driver runs as data: an ordered list of
// command steps, an optional stepping loop, and the values to report.
package scenario

import (
	"errors"
	"fmt"
	"sort"

	"github.com/seantiz/electric/internal/engine"
	"github.com/seantiz/electric/internal/mdi"
)

// ErrUnknownScenario is returned by Builtin for a name it does not know.
var ErrUnknownScenario = errors.New("scenario: unknown scenario")

// Format says how a received payload is reported.
type Format int

const (
	FormatNone      Format = iota // not reported
	FormatValue                   // a single integer
	FormatVectors                 // consecutive (x, y, z) triples
	FormatMonopoles               // the first of every PoleWidth parameters
)

func (f Format) String() string {
	switch f {
	case FormatNone:
		return "none"
	case FormatValue:
		return "value"
	case FormatVectors:
		return "vectors"
	case FormatMonopoles:
		return "monopoles"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// Step is one command issued to the active engine. Push carries the payload
// for push verbs and is nil otherwise.
type Step struct {
	Command mdi.Command
	Push    *mdi.Payload
	Report  Format
}

// Summary names a buffer reported once after the loop finishes. Only the
// values from the final iteration survive.
type Summary struct {
	Command mdi.Command
	Report  Format
}

// Scenario is a complete driver run.
type Scenario struct {
	Name string

	// Roles is the set of engine roles accepted at startup. Engines is how
	// many connections are expected; it never exceeds len(Roles).
	Roles   []engine.Role
	Engines int

	// Active is the role every step is issued to.
	Active engine.Role

	Prologue []Step
	Steps    int
	Loop     []Step
	Summary  []Summary
}

// Validate checks the descriptor against the command and role tables.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return errors.New("scenario has no name")
	}
	if len(s.Roles) == 0 {
		return fmt.Errorf("scenario %s accepts no roles", s.Name)
	}
	if s.Engines < 1 || s.Engines > len(s.Roles) {
		return fmt.Errorf("scenario %s expects %d engines, must be 1..%d", s.Name, s.Engines, len(s.Roles))
	}
	if s.Steps < 0 {
		return fmt.Errorf("scenario %s has negative step count %d", s.Name, s.Steps)
	}

	active := false
	for _, r := range s.Roles {
		if !r.Valid() {
			return fmt.Errorf("scenario %s accepts unknown %s", s.Name, r)
		}
		if r == s.Active {
			active = true
		}
	}
	if !active {
		return fmt.Errorf("scenario %s: active role %s is not accepted", s.Name, s.Active)
	}

	steps := append(append([]Step(nil), s.Prologue...), s.Loop...)
	for _, st := range steps {
		if err := s.checkCommand(st.Command); err != nil {
			return err
		}
		spec, _ := mdi.Lookup(st.Command)
		switch spec.Direction {
		case mdi.Push:
			if st.Push == nil {
				return fmt.Errorf("scenario %s: %s needs a payload", s.Name, st.Command)
			}
			if st.Push.Type != spec.Shape.Type {
				return fmt.Errorf("scenario %s: %s payload is %s, want %s", s.Name, st.Command, st.Push.Type, spec.Shape.Type)
			}
		case mdi.Terminate:
			return fmt.Errorf("scenario %s: %s is issued by the session, not a step", s.Name, st.Command)
		default:
			if st.Push != nil {
				return fmt.Errorf("scenario %s: %s takes no payload", s.Name, st.Command)
			}
		}
	}
	for _, sum := range s.Summary {
		if err := s.checkCommand(sum.Command); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scenario) checkCommand(cmd mdi.Command) error {
	if _, err := mdi.Lookup(cmd); err != nil {
		return fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	if !s.Active.Supports(cmd) {
		return fmt.Errorf("scenario %s: %s does not answer %s", s.Name, s.Active, cmd)
	}
	return nil
}

// Params are the tunable parts of the built-in scenarios. A negative Steps
// keeps the scenario default.
type Params struct {
	Steps   int
	Probes  []int32
	Engines int
}

// Built-in scenario names.
const (
	NameField     = "field"
	NameMD        = "md"
	NameMDCounts  = "md-counts"
	DefaultSteps  = 100
	DefaultCounts = 500
)

// DefaultProbes is the probe list used when none is configured.
var DefaultProbes = []int32{1, 2}

var builtins = map[string]func(Params) *Scenario{
	NameField: func(p Params) *Scenario {
		return FieldAnalysis(p.Probes)
	},
	NameMD: func(p Params) *Scenario {
		return Dynamics(stepsOr(p.Steps, DefaultSteps))
	},
	NameMDCounts: func(p Params) *Scenario {
		return DynamicsCounts(stepsOr(p.Steps, DefaultCounts))
	},
}

func stepsOr(n, def int) int {
	if n < 0 {
		return def
	}
	return n
}

// Names lists the built-in scenarios.
func Names() []string {
	names := make([]string, 0, len(builtins))
	for n := range builtins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Builtin builds and validates a named built-in scenario.
func Builtin(name string, p Params) (*Scenario, error) {
	build, ok := builtins[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %v)", ErrUnknownScenario, name, Names())
	}
	s := build(p)
	if p.Engines > 0 {
		s.Engines = p.Engines
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// FieldAnalysis queries the counts, pushes the probe list and reports the
// field at every multipole center.
func FieldAnalysis(probes []int32) *Scenario {
	if probes == nil {
		probes = DefaultProbes
	}
	nprobes := mdi.Ints(int32(len(probes)))
	list := mdi.Ints(append([]int32(nil), probes...)...)

	return &Scenario{
		Name:    NameField,
		Roles:   []engine.Role{engine.RoleNoEwald},
		Engines: 1,
		Active:  engine.RoleNoEwald,
		Prologue: []Step{
			{Command: mdi.CmdNAtoms, Report: FormatValue},
			{Command: mdi.CmdNPoles, Report: FormatValue},
			{Command: mdi.CmdNProbes, Push: &nprobes},
			{Command: mdi.CmdProbes, Push: &list},
			{Command: mdi.CmdField, Report: FormatVectors},
		},
	}
}

// Dynamics steps the Ewald engine, pulling coordinates, charges and poles
// each step, and reports the monopoles from the last one. A NOEWALD engine
// may connect but is never commanded.
func Dynamics(steps int) *Scenario {
	return &Scenario{
		Name:    NameMD,
		Roles:   []engine.Role{engine.RoleEwald, engine.RoleNonEwald},
		Engines: 1,
		Active:  engine.RoleEwald,
		Prologue: []Step{
			{Command: mdi.CmdNAtoms, Report: FormatValue},
			{Command: mdi.CmdNPoles, Report: FormatValue},
			{Command: mdi.CmdInitMD},
		},
		Steps: steps,
		Loop: []Step{
			{Command: mdi.CmdForces},
			{Command: mdi.CmdCoords},
			{Command: mdi.CmdCharges},
			{Command: mdi.CmdPoles},
		},
		Summary: []Summary{
			{Command: mdi.CmdPoles, Report: FormatMonopoles},
		},
	}
}

// DynamicsCounts steps the Ewald engine and re-queries the atom count
// after every step.
func DynamicsCounts(steps int) *Scenario {
	return &Scenario{
		Name:    NameMDCounts,
		Roles:   []engine.Role{engine.RoleEwald, engine.RoleNonEwald},
		Engines: 1,
		Active:  engine.RoleEwald,
		Prologue: []Step{
			{Command: mdi.CmdNAtoms, Report: FormatValue},
			{Command: mdi.CmdInitMD},
		},
		Steps: steps,
		Loop: []Step{
			{Command: mdi.CmdForces},
			{Command: mdi.CmdNAtoms, Report: FormatValue},
		},
	}
}
