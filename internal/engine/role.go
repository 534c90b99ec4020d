package engine

import (
	"fmt"
	"slices"

	"github.com/seantiz/electric/internal/mdi"
)

// Role is the logical identity an engine reports in reply to <NAME.
type Role int

const (
	RoleNoEwald  Role = iota + 1 // field-analysis engine without Ewald summation
	RoleEwald                    // MD engine with Ewald summation
	RoleNonEwald                 // MD engine without Ewald summation
)

// roleEntry is one row of the registration table.
type roleEntry struct {
	name     string
	commands []mdi.Command
}

var fieldCommands = []mdi.Command{
	mdi.CmdName, mdi.CmdNAtoms, mdi.CmdNPoles,
	mdi.CmdNProbes, mdi.CmdProbes, mdi.CmdField,
	mdi.CmdExit,
}

var dynamicsCommands = []mdi.Command{
	mdi.CmdName, mdi.CmdNAtoms, mdi.CmdNPoles,
	mdi.CmdInitMD, mdi.CmdForces,
	mdi.CmdCoords, mdi.CmdCharges, mdi.CmdPoles,
	mdi.CmdExit,
}

// roleTable maps each role to the name it reports and the commands it answers.
var roleTable = map[Role]roleEntry{
	RoleNoEwald:  {name: "NO_EWALD", commands: fieldCommands},
	RoleEwald:    {name: "EWALD", commands: dynamicsCommands},
	RoleNonEwald: {name: "NOEWALD", commands: dynamicsCommands},
}

// ParseRole maps a reported engine name to its role.
func ParseRole(name string) (Role, bool) {
	for r, e := range roleTable {
		if e.name == name {
			return r, true
		}
	}
	return 0, false
}

// Roles lists every known role in declaration order.
func Roles() []Role {
	return []Role{RoleNoEwald, RoleEwald, RoleNonEwald}
}

// String returns the name engines of this role report.
func (r Role) String() string {
	if e, ok := roleTable[r]; ok {
		return e.name
	}
	return fmt.Sprintf("role(%d)", int(r))
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := roleTable[r]
	return ok
}

// Supports reports whether engines of this role answer cmd.
func (r Role) Supports(cmd mdi.Command) bool {
	e, ok := roleTable[r]
	if !ok {
		return false
	}
	return slices.Contains(e.commands, cmd)
}
