package session

import (
	"fmt"

	"github.com/seantiz/electric/internal/mdi"
	"github.com/seantiz/electric/internal/scenario"
)

// NoStep marks records and exchanges outside the stepping loop.
const NoStep = -1

// Record is one reported payload.
type Record struct {
	Step    int
	Command mdi.Command
	Format  scenario.Format
	Payload mdi.Payload
}

// Value returns the single integer of a FormatValue record.
func (r Record) Value() (int, error) {
	return r.Payload.Int(0)
}

// Vectors splits a double payload into (x, y, z) triples.
func (r Record) Vectors() ([][3]float64, error) {
	d := r.Payload.Doubles
	if r.Payload.Type != mdi.Double || len(d)%3 != 0 {
		return nil, fmt.Errorf("%w: %s payload of %d elements is not a list of 3-vectors", mdi.ErrProtocol, r.Payload.Type, r.Payload.Len())
	}
	out := make([][3]float64, len(d)/3)
	for i := range out {
		copy(out[i][:], d[3*i:3*i+3])
	}
	return out, nil
}

// Monopoles returns the first multipole parameter of every center.
func (r Record) Monopoles() ([]float64, error) {
	d := r.Payload.Doubles
	if r.Payload.Type != mdi.Double || len(d)%mdi.PoleWidth != 0 {
		return nil, fmt.Errorf("%w: %s payload of %d elements is not a list of %d-wide poles", mdi.ErrProtocol, r.Payload.Type, r.Payload.Len(), mdi.PoleWidth)
	}
	out := make([]float64, len(d)/mdi.PoleWidth)
	for i := range out {
		out[i] = d[i*mdi.PoleWidth]
	}
	return out, nil
}

// Result is what a scenario run reports.
type Result struct {
	Scenario string
	Counts   mdi.Counts
	Records  []Record
}
