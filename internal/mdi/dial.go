package mdi

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/mdlayher/vsock"
)

// Retry defaults for engine connection establishment.
const (
	dialMaxRetries  = 5
	dialBaseBackoff = 100 * time.Millisecond
)

// Dial connects an engine to the driver described by opts. The driver may
// not be listening yet, so failed attempts are retried with exponential
// backoff.
func Dial(ctx context.Context, opts Options) (*Comm, error) {
	if opts.Role != RoleEngine {
		return nil, fmt.Errorf("%w: dial requires role %s, got %q", ErrTransport, RoleEngine, opts.Role)
	}

	var lastErr error
	backoff := dialBaseBackoff

	for attempt := range dialMaxRetries {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: dial driver: %w", ErrTransport, ctx.Err())
		default:
		}

		conn, err := dialOnce(ctx, opts)
		if err != nil {
			lastErr = err
			if attempt < dialMaxRetries-1 {
				select {
				case <-time.After(backoff):
				case <-ctx.Done():
					return nil, fmt.Errorf("%w: dial driver: %w", ErrTransport, ctx.Err())
				}
				backoff *= 2
			}
			continue
		}

		if deadline, ok := ctx.Deadline(); ok {
			if err := conn.SetDeadline(deadline); err != nil {
				conn.Close()
				return nil, fmt.Errorf("%w: set deadline: %w", ErrTransport, err)
			}
		}

		return NewComm(conn), nil
	}

	return nil, fmt.Errorf("%w: dial driver after %d attempts: %w", ErrTransport, dialMaxRetries, lastErr)
}

func dialOnce(ctx context.Context, opts Options) (net.Conn, error) {
	switch opts.Method {
	case MethodTCP:
		var d net.Dialer
		return d.DialContext(ctx, "tcp", opts.Address())
	case MethodUnix:
		var d net.Dialer
		return d.DialContext(ctx, "unix", opts.Socket)
	case MethodVsock:
		return vsock.Dial(opts.CID, uint32(opts.Port), nil)
	default:
		return nil, fmt.Errorf("unsupported method %q", opts.Method)
	}
}
