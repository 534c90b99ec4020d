package mdi

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/mdlayher/vsock"
)

// Transport is the driver's listening endpoint. Engines connect to it and
// each accepted connection becomes one Comm.
type Transport struct {
	listener net.Listener
}

// Listen opens the driver endpoint described by opts.
func Listen(opts Options) (*Transport, error) {
	if opts.Role != RoleDriver {
		return nil, fmt.Errorf("%w: listen requires role %s, got %q", ErrTransport, RoleDriver, opts.Role)
	}

	var (
		l   net.Listener
		err error
	)
	switch opts.Method {
	case MethodTCP:
		l, err = net.Listen("tcp", opts.Address())
	case MethodUnix:
		l, err = net.Listen("unix", opts.Socket)
	case MethodVsock:
		l, err = vsock.Listen(uint32(opts.Port), nil)
	default:
		return nil, fmt.Errorf("%w: unsupported method %q", ErrTransport, opts.Method)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: listen on %s: %w", ErrTransport, opts.Address(), err)
	}
	return &Transport{listener: l}, nil
}

// NewTransport wraps an existing listener.
func NewTransport(l net.Listener) *Transport {
	return &Transport{listener: l}
}

// deadliner is implemented by TCP, UNIX and vsock listeners.
type deadliner interface {
	SetDeadline(t time.Time) error
}

// Accept blocks until one engine connects. Cancelling ctx unblocks the
// accept; a ctx deadline is also applied to the accepted connection.
func (t *Transport) Accept(ctx context.Context) (*Comm, error) {
	if t == nil || t.listener == nil {
		return nil, fmt.Errorf("%w: transport is not initialized", ErrTransport)
	}

	if d, ok := t.listener.(deadliner); ok {
		deadline, _ := ctx.Deadline()
		if err := d.SetDeadline(deadline); err != nil {
			return nil, fmt.Errorf("%w: set accept deadline: %w", ErrTransport, err)
		}
		// Unblock Accept on cancellation by moving the deadline into the past.
		stop := context.AfterFunc(ctx, func() {
			_ = d.SetDeadline(time.Unix(1, 0))
		})
		defer stop()
	}

	conn, err := t.listener.Accept()
	if err != nil {
		// The listener deadline can fire just before the context does.
		cerr := ctx.Err()
		if deadline, ok := ctx.Deadline(); cerr == nil && ok && !time.Now().Before(deadline) {
			cerr = context.DeadlineExceeded
		}
		if cerr != nil {
			return nil, fmt.Errorf("%w: accept: %w", ErrTransport, cerr)
		}
		return nil, fmt.Errorf("%w: accept: %w", ErrTransport, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			conn.Close()
			return nil, fmt.Errorf("%w: set deadline: %w", ErrTransport, err)
		}
	}

	return NewComm(conn), nil
}

// Addr returns the listening address.
func (t *Transport) Addr() net.Addr {
	return t.listener.Addr()
}

// Close stops accepting connections. Accepted Comms stay open.
func (t *Transport) Close() error {
	return t.listener.Close()
}
