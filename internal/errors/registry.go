package errors

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category   Category
	Message    string
	Detail     string
	Suggestion string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Connection Errors (A001-A009)
	// ============================================

	"A001": {
		Category:   CategoryConnection,
		Message:    "Master server unreachable",
		Detail:     "The connection to the master server could not be opened or was closed.",
		Suggestion: "Check the master address and that the server is running",
	},
	"A002": {
		Category: CategoryConnection,
		Message:  "Game server connection lost",
		Detail:   "The connection to the game server hosting the room failed or was closed by the server.",
	},
	"A003": {
		Category:   CategoryConnection,
		Message:    "Connection timed out",
		Detail:     "The socket was dropped without a close frame.",
		Suggestion: "Check the network path to the server",
	},

	// ============================================
	// Authentication Errors (A010-A019)
	// ============================================

	"A010": {
		Category:   CategoryAuth,
		Message:    "Authentication failed",
		Detail:     "The server rejected the application id, version or secret.",
		Suggestion: "Check --app-id and --app-version",
	},
	"A011": {
		Category:   CategoryAuth,
		Message:    "Custom authentication rejected",
		Detail:     "The authentication service did not accept the supplied parameters.",
		Suggestion: "Check the auth parameters, e.g. user=<name>&token=<token>",
	},
	"A012": {
		Category: CategoryAuth,
		Message:  "Authentication service unavailable",
		Detail:   "The authentication endpoint could not be reached or returned an invalid response.",
	},

	// ============================================
	// Room Errors (A020-A029)
	// ============================================

	"A020": {
		Category:   CategoryRoom,
		Message:    "Room does not exist",
		Suggestion: "Run 'arena lobby' to list the open rooms",
	},
	"A021": {
		Category: CategoryRoom,
		Message:  "Room is full",
	},
	"A022": {
		Category: CategoryRoom,
		Message:  "Room is closed",
	},
	"A023": {
		Category:   CategoryRoom,
		Message:    "No matching room",
		Detail:     "No open room matched the requested properties.",
		Suggestion: "Create a room with 'arena create'",
	},
	"A024": {
		Category:   CategoryRoom,
		Message:    "Room already exists",
		Suggestion: "Pick another name or join the room with 'arena join'",
	},

	// ============================================
	// Protocol Errors (A030-A039)
	// ============================================

	"A030": {
		Category: CategoryProtocol,
		Message:  "Protocol error",
		Detail:   "The server sent a message that could not be decoded.",
	},
	"A031": {
		Category: CategoryProtocol,
		Message:  "Operation failed",
		Detail:   "The server answered an operation with an error code.",
	},
	"A032": {
		Category: CategoryProtocol,
		Message:  "Invalid workflow step",
		Detail:   "The operation is not allowed in the client's current state.",
	},

	// ============================================
	// Config Errors (A040-A049)
	// ============================================

	"A040": {
		Category: CategoryConfig,
		Message:  "Invalid configuration",
	},
	"A041": {
		Category:   CategoryConfig,
		Message:    "Config file not found",
		Suggestion: "Pass --config with the path to arena.yaml or arena.json",
	},
	"A042": {
		Category: CategoryConfig,
		Message:  "Config file unreadable",
		Detail:   "The config file could not be read or parsed.",
	},
	"A043": {
		Category:   CategoryConfig,
		Message:    "Missing master address",
		Suggestion: "Set masterAddress in the config file or ARENA_MASTER_ADDRESS",
	},

	// ============================================
	// CLI Errors (A050-A059)
	// ============================================

	"A050": {
		Category: CategoryCLI,
		Message:  "Operation timed out",
		Detail:   "The command did not complete within --timeout.",
	},
	"A051": {
		Category: CategoryCLI,
		Message:  "Server failed",
		Detail:   "A server started by the command stopped with an error.",
	},
}

// Lookup returns the template for a code.
func Lookup(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}

// Codes returns every registered code.
func Codes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	return codes
}
