package peer

import (
	"errors"
	"fmt"
)

// Sentinel errors for peer usage and transport conditions.
var (
	// ErrNotConnected is returned when sending on a socket that is not open.
	ErrNotConnected = errors.New("peer: not connected")

	// ErrAlreadyConnected is returned by Connect on a peer that is not idle.
	ErrAlreadyConnected = errors.New("peer: already connected or connecting")

	// ErrInvalidArgument is returned for operation data that is not a flat
	// key/value list.
	ErrInvalidArgument = errors.New("peer: invalid argument")

	// ErrNoURL is returned by Connect when the peer has no address.
	ErrNoURL = errors.New("peer: no url")
)

// ProtocolError reports a message that could not be interpreted.
type ProtocolError struct {
	Peer    string // peer name, e.g. "master"
	Op      string // stage that failed
	Payload string // offending payload, possibly truncated
	Err     error  // underlying error
}

// Error returns the error message with peer context.
func (e *ProtocolError) Error() string {
	if e.Peer == "" {
		return fmt.Sprintf("peer: protocol error: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("peer %s: protocol error: %s: %v", e.Peer, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// maxPayloadInError bounds the payload copied into a ProtocolError.
const maxPayloadInError = 256

func newProtocolError(peer, op, payload string, err error) *ProtocolError {
	if len(payload) > maxPayloadInError {
		payload = payload[:maxPayloadInError]
	}
	return &ProtocolError{Peer: peer, Op: op, Payload: payload, Err: err}
}
