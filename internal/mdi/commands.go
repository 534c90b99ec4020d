package mdi

import (
	"fmt"
	"sort"
)

// Protocol limits.
const (
	// MaxNameLength is the fixed width of the <NAME reply.
	MaxNameLength = 256

	// MaxCommandLength bounds the length of a command verb.
	MaxCommandLength = 256
)

// Command is an ASCII protocol verb. The first character encodes direction:
// '<' requests a value, '>' pushes one, '@' asks for an action.
type Command string

// Command vocabulary.
const (
	CmdName    Command = "<NAME"
	CmdNAtoms  Command = "<NATOMS"
	CmdNPoles  Command = "<NPOLES"
	CmdNProbes Command = ">NPROBES"
	CmdProbes  Command = ">PROBES"
	CmdField   Command = "<FIELD"
	CmdInitMD  Command = "@INIT_MD"
	CmdForces  Command = "@FORCES"
	CmdCoords  Command = "<COORDS"
	CmdCharges Command = "<CHARGES"
	CmdPoles   Command = "<POLES"
	CmdExit    Command = "EXIT"
)

// PoleWidth is the number of multipole parameters per center; the first is
// the monopole.
const PoleWidth = 13

// Direction says which peer produces the payload that follows a command.
type Direction int

const (
	Request   Direction = iota + 1 // engine replies with a payload
	Push                           // driver sends a payload
	Action                         // no payload
	Terminate                      // no payload, handle is finished
)

func (d Direction) String() string {
	switch d {
	case Request:
		return "request"
	case Push:
		return "push"
	case Action:
		return "action"
	case Terminate:
		return "terminate"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// Extent names the session count a payload length scales with.
type Extent int

const (
	ExtentNone Extent = iota
	ExtentOne
	ExtentName
	ExtentAtoms
	ExtentPoles
	ExtentProbes
)

func (e Extent) String() string {
	switch e {
	case ExtentNone:
		return "none"
	case ExtentOne:
		return "one"
	case ExtentName:
		return "name"
	case ExtentAtoms:
		return "natoms"
	case ExtentPoles:
		return "npoles"
	case ExtentProbes:
		return "nprobes"
	default:
		return fmt.Sprintf("extent(%d)", int(e))
	}
}

// Shape is the element type and length rule of a command's payload.
type Shape struct {
	Type   Datatype
	Extent Extent
	Width  int // elements per unit of Extent
}

// Len resolves the element count of the shape against the session counts.
func (s Shape) Len(c Counts) (int, error) {
	switch s.Extent {
	case ExtentNone:
		return 0, nil
	case ExtentOne:
		return s.Width, nil
	case ExtentName:
		return MaxNameLength, nil
	}
	n, ok := c.Of(s.Extent)
	if !ok {
		return 0, fmt.Errorf("%w: %s is not known yet", ErrProtocol, s.Extent)
	}
	return s.Width * n, nil
}

// Spec is one row of the command table.
type Spec struct {
	Command   Command
	Direction Direction
	Shape     Shape

	// Binds is the session count fixed by this command's single integer
	// payload, or ExtentNone.
	Binds Extent
}

var commandTable = map[Command]Spec{
	CmdName:    {Command: CmdName, Direction: Request, Shape: Shape{Type: Char, Extent: ExtentName, Width: 1}},
	CmdNAtoms:  {Command: CmdNAtoms, Direction: Request, Shape: Shape{Type: Int, Extent: ExtentOne, Width: 1}, Binds: ExtentAtoms},
	CmdNPoles:  {Command: CmdNPoles, Direction: Request, Shape: Shape{Type: Int, Extent: ExtentOne, Width: 1}, Binds: ExtentPoles},
	CmdNProbes: {Command: CmdNProbes, Direction: Push, Shape: Shape{Type: Int, Extent: ExtentOne, Width: 1}, Binds: ExtentProbes},
	CmdProbes:  {Command: CmdProbes, Direction: Push, Shape: Shape{Type: Int, Extent: ExtentProbes, Width: 1}},
	CmdField:   {Command: CmdField, Direction: Request, Shape: Shape{Type: Double, Extent: ExtentPoles, Width: 3}},
	CmdInitMD:  {Command: CmdInitMD, Direction: Action},
	CmdForces:  {Command: CmdForces, Direction: Action},
	CmdCoords:  {Command: CmdCoords, Direction: Request, Shape: Shape{Type: Double, Extent: ExtentAtoms, Width: 3}},
	CmdCharges: {Command: CmdCharges, Direction: Request, Shape: Shape{Type: Double, Extent: ExtentAtoms, Width: 1}},
	CmdPoles:   {Command: CmdPoles, Direction: Request, Shape: Shape{Type: Double, Extent: ExtentPoles, Width: PoleWidth}},
	CmdExit:    {Command: CmdExit, Direction: Terminate},
}

// Lookup returns the table entry for cmd.
func Lookup(cmd Command) (Spec, error) {
	spec, ok := commandTable[cmd]
	if !ok {
		return Spec{}, fmt.Errorf("%w: unknown command %q", ErrProtocol, cmd)
	}
	return spec, nil
}

// Commands lists the vocabulary in lexical order.
func Commands() []Command {
	cmds := make([]Command, 0, len(commandTable))
	for cmd := range commandTable {
		cmds = append(cmds, cmd)
	}
	sort.Slice(cmds, func(i, j int) bool { return cmds[i] < cmds[j] })
	return cmds
}

// Counts holds the session-wide sizes that payload shapes scale with.
// A count is unknown until Set.
type Counts struct {
	NAtoms  int
	NPoles  int
	NProbes int

	known uint8
}

// Of returns the count for e and whether it has been set.
func (c Counts) Of(e Extent) (int, bool) {
	if c.known&(1<<e) == 0 {
		return 0, false
	}
	switch e {
	case ExtentAtoms:
		return c.NAtoms, true
	case ExtentPoles:
		return c.NPoles, true
	case ExtentProbes:
		return c.NProbes, true
	}
	return 0, false
}

// Set records n as the count for e.
func (c *Counts) Set(e Extent, n int) {
	switch e {
	case ExtentAtoms:
		c.NAtoms = n
	case ExtentPoles:
		c.NPoles = n
	case ExtentProbes:
		c.NProbes = n
	default:
		return
	}
	c.known |= 1 << e
}
