package mdi

import (
	"bytes"
	"fmt"
	"strings"
)

// Datatype is the primitive element type of a payload.
type Datatype int

const (
	Int    Datatype = iota + 1 // 32-bit signed integer
	Double                     // 64-bit float
	Char                       // single byte
)

var datatypeNames = map[Datatype]string{
	Int:    "MDI_INT",
	Double: "MDI_DOUBLE",
	Char:   "MDI_CHAR",
}

func (d Datatype) String() string {
	if name, ok := datatypeNames[d]; ok {
		return name
	}
	return fmt.Sprintf("datatype(%d)", int(d))
}

// MarshalText encodes the datatype by name on the wire.
func (d Datatype) MarshalText() ([]byte, error) {
	name, ok := datatypeNames[d]
	if !ok {
		return nil, fmt.Errorf("unknown datatype %d", int(d))
	}
	return []byte(name), nil
}

// UnmarshalText decodes a datatype name.
func (d *Datatype) UnmarshalText(text []byte) error {
	for dt, name := range datatypeNames {
		if name == string(text) {
			*d = dt
			return nil
		}
	}
	return fmt.Errorf("unknown datatype %q", text)
}

// Payload is a typed, fixed-length array exchanged after a command. Only the
// slice matching Type is populated.
type Payload struct {
	Type    Datatype
	Ints    []int32
	Doubles []float64
	Chars   []byte
}

// Ints builds an integer payload.
func Ints(v ...int32) Payload {
	return Payload{Type: Int, Ints: v}
}

// Doubles builds a floating-point payload.
func Doubles(v ...float64) Payload {
	return Payload{Type: Double, Doubles: v}
}

// Chars builds a character payload of exactly width bytes, NUL-padded.
func Chars(s string, width int) (Payload, error) {
	if len(s) > width {
		return Payload{}, fmt.Errorf("%w: %q exceeds %d characters", ErrProtocol, s, width)
	}
	buf := make([]byte, width)
	copy(buf, s)
	return Payload{Type: Char, Chars: buf}, nil
}

// Len returns the element count.
func (p Payload) Len() int {
	switch p.Type {
	case Int:
		return len(p.Ints)
	case Double:
		return len(p.Doubles)
	case Char:
		return len(p.Chars)
	default:
		return 0
	}
}

// Text returns a character payload as a string, cut at the first NUL and
// trimmed of trailing blanks.
func (p Payload) Text() string {
	b := p.Chars
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return strings.TrimRight(string(b), " ")
}

// Int returns element i of an integer payload.
func (p Payload) Int(i int) (int, error) {
	if p.Type != Int || i < 0 || i >= len(p.Ints) {
		return 0, fmt.Errorf("%w: no integer at index %d of %s payload of %d elements", ErrProtocol, i, p.Type, p.Len())
	}
	return int(p.Ints[i]), nil
}

// Check verifies that p has the given type and element count.
func (p Payload) Check(dt Datatype, count int) error {
	if p.Type != dt {
		return fmt.Errorf("%w: payload type %s, want %s", ErrProtocol, p.Type, dt)
	}
	if n := p.Len(); n != count {
		return fmt.Errorf("%w: payload has %d %s elements, want %d", ErrProtocol, n, dt, count)
	}
	return nil
}
