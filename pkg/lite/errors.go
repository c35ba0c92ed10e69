package lite

import "errors"

// Usage errors. They are returned synchronously and nothing is sent.
var (
	ErrNotConnected    = errors.New("lite: not connected")
	ErrNotAttached     = errors.New("lite: no peer attached")
	ErrAlreadyJoined   = errors.New("lite: already joined or joining a room")
	ErrNotJoined       = errors.New("lite: not joined")
	ErrMissingRoomName = errors.New("lite: room name required")
	ErrMissingData     = errors.New("lite: event data required")
)
