package mdi

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
)

// MaxFrameSize is the maximum allowed frame payload (64 MiB).
const MaxFrameSize = 64 << 20

// Frame kinds.
const (
	FrameCommand = "command"
	FrameData    = "data"
)

// Frame is the envelope for everything sent between driver and engine.
// A command frame carries only Command; a data frame carries Type, Count and
// the matching value slice. Doubles travel as IEEE 754 bit patterns so that
// NaN, the infinities and negative zero survive the JSON envelope.
type Frame struct {
	Kind    string   `json:"kind"`
	Command Command  `json:"command,omitempty"`
	Type    Datatype `json:"type,omitempty"`
	Count   int      `json:"count,omitempty"`
	Ints    []int32  `json:"ints,omitempty"`
	Doubles []uint64 `json:"doubles,omitempty"`
	Chars   []byte   `json:"chars,omitempty"`
}

// commandFrame wraps a verb.
func commandFrame(cmd Command) *Frame {
	return &Frame{Kind: FrameCommand, Command: cmd}
}

// dataFrame wraps a payload, declaring its element count.
func dataFrame(p Payload) *Frame {
	return &Frame{
		Kind:    FrameData,
		Type:    p.Type,
		Count:   p.Len(),
		Ints:    p.Ints,
		Doubles: doubleBits(p.Doubles),
		Chars:   p.Chars,
	}
}

func doubleBits(v []float64) []uint64 {
	if v == nil {
		return nil
	}
	bits := make([]uint64, len(v))
	for i, x := range v {
		bits[i] = math.Float64bits(x)
	}
	return bits
}

func bitsDouble(bits []uint64) []float64 {
	if bits == nil {
		return nil
	}
	v := make([]float64, len(bits))
	for i, b := range bits {
		v[i] = math.Float64frombits(b)
	}
	return v
}

// payload unwraps a data frame, rejecting frames whose declared count does
// not match the values carried.
func (f *Frame) payload() (Payload, error) {
	p := Payload{Type: f.Type, Ints: f.Ints, Doubles: bitsDouble(f.Doubles), Chars: f.Chars}
	if n := p.Len(); n != f.Count {
		return Payload{}, fmt.Errorf("%w: frame declares %d elements, carries %d", ErrProtocol, f.Count, n)
	}
	return p, nil
}

// WriteFrame writes a length-prefixed JSON frame to w.
// The frame format is: 4-byte big-endian length prefix followed by the JSON payload.
// A frame that cannot be encoded is an ErrProtocol and nothing is written.
func WriteFrame(w io.Writer, f *Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("%w: marshal frame: %w", ErrProtocol, err)
	}
	if len(data) > MaxFrameSize {
		return fmt.Errorf("%w: frame size %d exceeds maximum %d", ErrProtocol, len(data), MaxFrameSize)
	}

	length := uint32(len(data))
	if err := binary.Write(w, binary.BigEndian, length); err != nil {
		return fmt.Errorf("write length prefix: %w", err)
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}

	return nil
}

// ReadFrame reads a length-prefixed JSON frame from r into f.
func ReadFrame(r io.Reader, f *Frame) error {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return fmt.Errorf("read length prefix: %w", err)
	}

	if length > MaxFrameSize {
		return fmt.Errorf("frame size %d exceeds maximum %d", length, MaxFrameSize)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return fmt.Errorf("read payload: %w", err)
	}

	if err := json.Unmarshal(data, f); err != nil {
		return fmt.Errorf("unmarshal frame: %w", err)
	}

	return nil
}
