package loadbalancing

import (
	"errors"
	"fmt"

	"github.com/vango-dev/arena/pkg/peer"
)

// Sentinel errors.
var (
	// ErrInvalidTransition is wrapped by every *TransitionError.
	ErrInvalidTransition = errors.New("loadbalancing: invalid state transition")

	// ErrOperationFailed is wrapped by every *OperationError.
	ErrOperationFailed = errors.New("loadbalancing: operation failed")

	// ErrPeerFailure is wrapped by every *PeerError.
	ErrPeerFailure = errors.New("loadbalancing: peer failure")

	// ErrOperationPending is returned while a room request awaits its response.
	ErrOperationPending = errors.New("loadbalancing: room operation already pending")

	// ErrNotInRoom is returned by room operations without a game connection.
	ErrNotInRoom = errors.New("loadbalancing: not in a room")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("loadbalancing: client closed")
)

// TransitionError reports a workflow transition that the state table forbids.
// The client state is unchanged.
type TransitionError struct {
	From State
	To   State
}

// Error returns the error message.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("loadbalancing: invalid transition %s -> %s", e.From, e.To)
}

// Unwrap returns ErrInvalidTransition.
func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// OperationError reports a response carrying a non-zero error code.
type OperationError struct {
	Peer    string // "master" or "game"
	Code    int    // operation code
	ErrCode int    // server error code
	Message string // server error message
}

// Error returns the error message.
func (e *OperationError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("loadbalancing: %s operation %d failed with code %d", e.Peer, e.Code, e.ErrCode)
	}
	return fmt.Sprintf("loadbalancing: %s operation %d failed with code %d: %s", e.Peer, e.Code, e.ErrCode, e.Message)
}

// Unwrap returns ErrOperationFailed.
func (e *OperationError) Unwrap() error {
	return ErrOperationFailed
}

func operationError(peerName string, resp *peer.Response) *OperationError {
	return &OperationError{Peer: peerName, Code: resp.Code, ErrCode: resp.ErrCode, Message: resp.ErrMsg}
}

// PeerError reports a connection failure on the master or game peer.
type PeerError struct {
	Peer   string
	Status peer.Status
}

// Error returns the error message.
func (e *PeerError) Error() string {
	return fmt.Sprintf("loadbalancing: %s peer: %s", e.Peer, e.Status)
}

// Unwrap returns ErrPeerFailure.
func (e *PeerError) Unwrap() error {
	return ErrPeerFailure
}
