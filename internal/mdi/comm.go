package mdi

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// Channel is one ordered, bidirectional connection between the driver and a
// single engine. Calls block until the transfer completes or fails.
type Channel interface {
	SendCommand(cmd Command) error
	Send(p Payload) error
	Recv(dt Datatype, count int) (Payload, error)
	Close() error
}

// Comm is the network-backed Channel. It is also used on the engine side,
// which reads commands with RecvCommand.
// Each Comm is used by a single goroutine.
type Comm struct {
	conn   net.Conn
	reader io.Reader // buffered reader shared by every frame read
	exited bool
}

var _ Channel = (*Comm)(nil)

// NewComm wraps an established connection.
func NewComm(conn net.Conn) *Comm {
	return &Comm{conn: conn, reader: bufio.NewReader(conn)}
}

// RemoteAddr reports the peer address.
func (c *Comm) RemoteAddr() string {
	if c.conn == nil || c.conn.RemoteAddr() == nil {
		return ""
	}
	return c.conn.RemoteAddr().String()
}

// SetDeadline applies an absolute deadline to every subsequent transfer.
func (c *Comm) SetDeadline(t time.Time) error {
	return c.conn.SetDeadline(t)
}

// SendCommand transmits a verb. After EXIT the handle accepts nothing more.
func (c *Comm) SendCommand(cmd Command) error {
	if c.exited {
		return fmt.Errorf("%w: command %s after EXIT", ErrTransport, cmd)
	}
	if len(cmd) == 0 || len(cmd) > MaxCommandLength {
		return fmt.Errorf("%w: command length %d outside 1..%d", ErrProtocol, len(cmd), MaxCommandLength)
	}
	if err := WriteFrame(c.conn, commandFrame(cmd)); err != nil {
		return sendError(fmt.Sprintf("send command %s", cmd), err)
	}
	if cmd == CmdExit {
		c.exited = true
	}
	commandsTotal.WithLabelValues(string(cmd)).Inc()
	return nil
}

// Send transmits a payload.
func (c *Comm) Send(p Payload) error {
	if c.exited {
		return fmt.Errorf("%w: payload after EXIT", ErrTransport)
	}
	if _, ok := datatypeNames[p.Type]; !ok {
		return fmt.Errorf("%w: cannot send %s payload", ErrProtocol, p.Type)
	}
	if err := WriteFrame(c.conn, dataFrame(p)); err != nil {
		return sendError(fmt.Sprintf("send %s payload", p.Type), err)
	}
	payloadElements.WithLabelValues(directionSend, p.Type.String()).Add(float64(p.Len()))
	return nil
}

// Recv receives exactly count elements of type dt. A frame of any other
// type or length is a protocol error; nothing is truncated or padded.
func (c *Comm) Recv(dt Datatype, count int) (Payload, error) {
	if c.exited {
		return Payload{}, fmt.Errorf("%w: receive after EXIT", ErrTransport)
	}

	start := time.Now()
	var f Frame
	if err := ReadFrame(c.reader, &f); err != nil {
		return Payload{}, fmt.Errorf("%w: receive %s: %w", ErrTransport, dt, err)
	}
	recvWait.Observe(time.Since(start).Seconds())

	if f.Kind != FrameData {
		return Payload{}, fmt.Errorf("%w: expected data frame, got %q", ErrProtocol, f.Kind)
	}
	p, err := f.payload()
	if err != nil {
		return Payload{}, err
	}
	if err := p.Check(dt, count); err != nil {
		return Payload{}, err
	}

	payloadElements.WithLabelValues(directionRecv, dt.String()).Add(float64(count))
	return p, nil
}

// RecvCommand reads the next command verb. Engines call this in their
// serve loop.
func (c *Comm) RecvCommand() (Command, error) {
	var f Frame
	if err := ReadFrame(c.reader, &f); err != nil {
		return "", fmt.Errorf("%w: receive command: %w", ErrTransport, err)
	}
	if f.Kind != FrameCommand {
		return "", fmt.Errorf("%w: expected command frame, got %q", ErrProtocol, f.Kind)
	}
	if len(f.Command) == 0 || len(f.Command) > MaxCommandLength {
		return "", fmt.Errorf("%w: command length %d outside 1..%d", ErrProtocol, len(f.Command), MaxCommandLength)
	}
	return f.Command, nil
}

// sendError classifies a WriteFrame failure: encoding problems keep their
// ErrProtocol, everything else is the connection failing.
func sendError(op string, err error) error {
	if errors.Is(err, ErrProtocol) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrTransport, op, err)
}

// Close closes the underlying connection.
func (c *Comm) Close() error {
	return c.conn.Close()
}
