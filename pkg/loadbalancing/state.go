package loadbalancing

// State is the workflow state of a Client.
type State int

const (
	StateUninitialized State = iota
	StateConnectingToMaster
	StateConnectedToMaster
	StateJoinedLobby
	StateConnectingToGame
	StateConnectedToGame
	StateJoined
	StateDisconnecting
	StateDisconnected
	StateError
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StateConnectingToMaster:
		return "ConnectingToMaster"
	case StateConnectedToMaster:
		return "ConnectedToMaster"
	case StateJoinedLobby:
		return "JoinedLobby"
	case StateConnectingToGame:
		return "ConnectingToGame"
	case StateConnectedToGame:
		return "ConnectedToGame"
	case StateJoined:
		return "Joined"
	case StateDisconnecting:
		return "Disconnecting"
	case StateDisconnected:
		return "Disconnected"
	case StateError:
		return "Error"
	default:
		return "Unknown"
	}
}

// AllStates lists every state in declaration order.
var AllStates = []State{
	StateUninitialized,
	StateConnectingToMaster,
	StateConnectedToMaster,
	StateJoinedLobby,
	StateConnectingToGame,
	StateConnectedToGame,
	StateJoined,
	StateDisconnecting,
	StateDisconnected,
	StateError,
}

// CanTransition reports whether the workflow may move from one state to another.
func CanTransition(from, to State) bool {
	switch to {
	case StateConnectingToMaster:
		return from == StateUninitialized || from == StateDisconnected || from == StateError
	case StateConnectedToMaster:
		return from == StateConnectingToMaster
	case StateJoinedLobby:
		switch from {
		case StateConnectedToMaster,
			// Game peer closed while the master stayed connected.
			StateConnectingToGame, StateConnectedToGame, StateJoined, StateDisconnecting:
			return true
		}
		return false
	case StateConnectingToGame:
		return from == StateJoinedLobby
	case StateConnectedToGame:
		return from == StateConnectingToGame
	case StateJoined:
		return from == StateConnectedToGame
	case StateDisconnecting, StateDisconnected:
		return from != StateUninitialized && from != StateDisconnected
	case StateError:
		return from != StateError
	default:
		return false
	}
}

// InLobby reports whether the state allows room operations on the master.
func (s State) InLobby() bool {
	return s == StateJoinedLobby
}

// InRoom reports whether a game-server connection is being set up or used.
func (s State) InRoom() bool {
	return s == StateConnectingToGame || s == StateConnectedToGame || s == StateJoined
}
