package mdi

import "errors"

var (
	// ErrTransport covers connection failures: accept/dial errors, closed or
	// terminated handles, and I/O errors on an established connection.
	ErrTransport = errors.New("transport: communicator failure")

	// ErrProtocol covers exchanges that violate the command table: unknown
	// verbs, payloads of the wrong type or element count, out-of-order frames.
	ErrProtocol = errors.New("protocol: violation")
)
