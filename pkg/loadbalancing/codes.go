package loadbalancing

import "strconv"

// Operation codes on the master and game servers.
const (
	OpAuthenticate   = 230
	OpJoinLobby      = 229
	OpLeaveLobby     = 228
	OpCreateGame     = 227
	OpJoinGame       = 226
	OpJoinRandomGame = 225
)

// Event codes.
const (
	EvGameList       = 230
	EvGameListUpdate = 229
	EvAppStats       = 226
)

// Parameter keys.
const (
	KeyAddress          = 230
	KeyPeerCount        = 229
	KeyGameCount        = 228
	KeyMasterPeerCount  = 227
	KeyUserID           = 225
	KeyApplicationID    = 224
	KeyGameList         = 222
	KeySecret           = 221
	KeyAppVersion       = 220
	KeyClientAuthType   = 217
	KeyClientAuthParams = 216
)

// Well-known room property keys.
const (
	RoomMaxPlayers         = 255
	RoomIsVisible          = 254
	RoomIsOpen             = 253
	RoomPlayerCount        = 252
	RoomRemoved            = 251
	RoomPropsListedInLobby = 250
)

// ActorPlayerName is the actor property key for the display name.
const ActorPlayerName = 255

// Error codes returned by the servers.
const (
	ErrCodeOK                 = 0
	ErrCodeCustomAuthFailed   = 32755
	ErrCodeGameDoesNotExist   = 32758
	ErrCodeGameFull           = 32765
	ErrCodeGameClosed         = 32764
	ErrCodeNoRandomMatchFound = 32760
	ErrCodeGameIDExists       = 32766
	ErrCodeInvalidAuth        = 32767
)

// propKey renders a numeric property key as the string used in JSON objects.
func propKey(k int) string {
	return strconv.Itoa(k)
}
