// ABOUTME: Error values produced by the gateway session
// ABOUTME: Transport failures and protocol invalidations are recovered by the retry loop

package gateway

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedFrame means an inbound frame could not be decoded.
	ErrMalformedFrame = errors.New("malformed gateway frame")

	// ErrHeartbeatTimeout means no heartbeat ack arrived inside the ack window.
	ErrHeartbeatTimeout = errors.New("heartbeat ack timeout")

	// ErrReconnectRequested means the platform asked for a fresh connection.
	ErrReconnectRequested = errors.New("gateway requested reconnect")

	// ErrClosed is returned by Run after Close has been called.
	ErrClosed = errors.New("gateway session closed")

	// ErrAlreadyRunning is returned by a second concurrent Run.
	ErrAlreadyRunning = errors.New("gateway session already running")
)

// TransportError wraps a socket or network failure.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("gateway transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// InvalidationError reports a hello frame carrying a non-zero status code.
type InvalidationError struct {
	Code int
}

func (e *InvalidationError) Error() string {
	return fmt.Sprintf("gateway rejected handshake: code %d", e.Code)
}
