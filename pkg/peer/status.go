package peer

// Status is a value broadcast on the peer-status channel.
//
// Transitions:
//
//	connecting → connect | connectFailed
//	connect    → disconnect | connectClosed | timeout → disconnect
//	connecting | connect → error
type Status int

const (
	StatusConnecting    Status = 1 // Connect called, socket opening
	StatusConnect       Status = 2 // session id received
	StatusConnectFailed Status = 3 // socket never reached the connected state
	StatusDisconnect    Status = 4 // closed locally
	StatusConnectClosed Status = 5 // closed by the server
	StatusError         Status = 6 // transport error
	StatusTimeout       Status = 7 // abnormal close, followed by disconnect
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnect:
		return "connect"
	case StatusConnectFailed:
		return "connectFailed"
	case StatusDisconnect:
		return "disconnect"
	case StatusConnectClosed:
		return "connectClosed"
	case StatusError:
		return "error"
	case StatusTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// IsFailure reports whether the status ends a connection abnormally.
func (s Status) IsFailure() bool {
	switch s {
	case StatusConnectFailed, StatusConnectClosed, StatusError, StatusTimeout:
		return true
	default:
		return false
	}
}

// connState is the socket lifecycle tracked by the peer itself.
type connState uint8

const (
	stateIdle       connState = iota // never connected
	stateConnecting                  // dialing
	stateOpen                        // socket open, waiting for the session id
	stateConnected                   // session id received
	stateClosed                      // closed, may connect again
)

func (s connState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateConnecting:
		return "connecting"
	case stateOpen:
		return "open"
	case stateConnected:
		return "connected"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
