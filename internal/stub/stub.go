// Package stub implements a reference engine. It dials the driver, answers
// the whole command vocabulary from a deterministic in-memory model, and
// records every command it receives.
package stub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/seantiz/electric/internal/mdi"
)

// Conn is the engine side of a connection.
type Conn interface {
	mdi.Channel
	RecvCommand() (mdi.Command, error)
}

// Model is the system the engine pretends to simulate.
type Model struct {
	Name   string
	NAtoms int
	NPoles int

	// Field is the field vector reported at each multipole center. When
	// empty, center i reports (0, 0, i+1).
	Field [][3]float64
}

// Monopole is the monopole the engine reports for center i.
func Monopole(i int) float64 {
	return -0.25 * float64(i+1)
}

// Engine serves one driver connection.
type Engine struct {
	model  Model
	logger *slog.Logger

	mu          sync.Mutex
	transcript  []mdi.Command
	probes      []int32
	nprobes     int
	initialized bool
	step        int
}

// New creates an engine for m.
func New(m Model, logger *slog.Logger) *Engine {
	return &Engine{model: m, logger: logger}
}

// handlers maps each verb to the function that answers it.
var handlers = map[mdi.Command]func(*Engine, Conn) error{
	mdi.CmdName:    (*Engine).sendName,
	mdi.CmdNAtoms:  (*Engine).sendNAtoms,
	mdi.CmdNPoles:  (*Engine).sendNPoles,
	mdi.CmdNProbes: (*Engine).recvNProbes,
	mdi.CmdProbes:  (*Engine).recvProbes,
	mdi.CmdField:   (*Engine).sendField,
	mdi.CmdInitMD:  (*Engine).initMD,
	mdi.CmdForces:  (*Engine).forces,
	mdi.CmdCoords:  (*Engine).sendCoords,
	mdi.CmdCharges: (*Engine).sendCharges,
	mdi.CmdPoles:   (*Engine).sendPoles,
}

// Serve answers commands on conn until EXIT. It returns nil after EXIT and
// the first error otherwise.
func (e *Engine) Serve(conn Conn) error {
	for {
		cmd, err := conn.RecvCommand()
		if err != nil {
			return err
		}

		e.mu.Lock()
		e.transcript = append(e.transcript, cmd)
		e.mu.Unlock()

		if cmd == mdi.CmdExit {
			e.logger.Info("exit received", "engine", e.model.Name, "commands", len(e.Transcript()))
			return nil
		}

		handle, ok := handlers[cmd]
		if !ok {
			return fmt.Errorf("%w: engine %s does not answer %s", mdi.ErrProtocol, e.model.Name, cmd)
		}
		if err := handle(e, conn); err != nil {
			return fmt.Errorf("%s: %w", cmd, err)
		}
	}
}

// Run dials the driver described by opts, serves the connection and closes
// it.
func Run(ctx context.Context, opts mdi.Options, e *Engine) error {
	conn, err := mdi.Dial(ctx, opts)
	if err != nil {
		return err
	}
	defer conn.Close()

	e.logger.Info("connected to driver", "engine", e.model.Name, "driver", conn.RemoteAddr())
	return e.Serve(conn)
}

// Transcript returns the commands received so far, in order.
func (e *Engine) Transcript() []mdi.Command {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]mdi.Command(nil), e.transcript...)
}

// Count returns how many times cmd was received.
func (e *Engine) Count(cmd mdi.Command) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.transcript {
		if c == cmd {
			n++
		}
	}
	return n
}

// Probes returns the probe list pushed by the driver.
func (e *Engine) Probes() []int32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]int32(nil), e.probes...)
}

func (e *Engine) sendName(c Conn) error {
	p, err := mdi.Chars(e.model.Name, mdi.MaxNameLength)
	if err != nil {
		return err
	}
	return c.Send(p)
}

func (e *Engine) sendNAtoms(c Conn) error {
	return c.Send(mdi.Ints(int32(e.model.NAtoms)))
}

func (e *Engine) sendNPoles(c Conn) error {
	return c.Send(mdi.Ints(int32(e.model.NPoles)))
}

func (e *Engine) recvNProbes(c Conn) error {
	p, err := c.Recv(mdi.Int, 1)
	if err != nil {
		return err
	}
	n, _ := p.Int(0)
	if n < 0 {
		return fmt.Errorf("%w: negative probe count %d", mdi.ErrProtocol, n)
	}
	e.mu.Lock()
	e.nprobes = n
	e.mu.Unlock()
	return nil
}

func (e *Engine) recvProbes(c Conn) error {
	e.mu.Lock()
	n := e.nprobes
	e.mu.Unlock()

	p, err := c.Recv(mdi.Int, n)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.probes = p.Ints
	e.mu.Unlock()
	return nil
}

func (e *Engine) sendField(c Conn) error {
	field := make([]float64, 3*e.model.NPoles)
	for i := range e.model.NPoles {
		v := [3]float64{0, 0, float64(i + 1)}
		if i < len(e.model.Field) {
			v = e.model.Field[i]
		}
		copy(field[3*i:], v[:])
	}
	return c.Send(mdi.Doubles(field...))
}

func (e *Engine) initMD(Conn) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.initialized {
		return errors.New("dynamics already initialized")
	}
	e.initialized = true
	e.step = 0
	return nil
}

func (e *Engine) forces(Conn) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return fmt.Errorf("%w: %s before %s", mdi.ErrProtocol, mdi.CmdForces, mdi.CmdInitMD)
	}
	e.step++
	return nil
}

func (e *Engine) currentStep() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return float64(e.step)
}

func (e *Engine) sendCoords(c Conn) error {
	step := e.currentStep()
	coords := make([]float64, 3*e.model.NAtoms)
	for i := range e.model.NAtoms {
		for k := range 3 {
			coords[3*i+k] = float64(i) + 0.1*float64(k) + 0.01*step
		}
	}
	return c.Send(mdi.Doubles(coords...))
}

func (e *Engine) sendCharges(c Conn) error {
	charges := make([]float64, e.model.NAtoms)
	for i := range charges {
		charges[i] = 0.5
		if i%2 == 1 {
			charges[i] = -0.5
		}
	}
	return c.Send(mdi.Doubles(charges...))
}

// sendPoles reports a fixed monopole per center; the higher-order terms
// drift with the step.
func (e *Engine) sendPoles(c Conn) error {
	step := e.currentStep()
	poles := make([]float64, mdi.PoleWidth*e.model.NPoles)
	for i := range e.model.NPoles {
		poles[mdi.PoleWidth*i] = Monopole(i)
		for k := 1; k < mdi.PoleWidth; k++ {
			poles[mdi.PoleWidth*i+k] = 0.001 * float64(k) * step
		}
	}
	return c.Send(mdi.Doubles(poles...))
}
