// Package errors provides structured, actionable error messages for the
// arena command line.
//
// Every error carries a registered code (e.g., "A020") that maps to:
//   - A category (connection, auth, room, protocol, config, cli)
//   - A short message
//   - A detailed explanation
//
// Errors raised by the client library are translated with Classify, so the
// CLI can print a hint next to a server error code.
//
// # Usage
//
//	err := errors.New("A041").
//	    WithDetail("No arena.yaml found in /srv/game").
//	    WithSuggestion("Pass --config or create arena.yaml")
//
//	errors.PrintError(err)
//	// Output:
//	// ERROR A041: Config file not found
//	//
//	//   No arena.yaml found in /srv/game
//	//
//	//   Hint: Pass --config or create arena.yaml
package errors
