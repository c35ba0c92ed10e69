package errors

import (
	stderrors "errors"
	"fmt"

	"github.com/vango-dev/arena/pkg/auth"
	"github.com/vango-dev/arena/pkg/loadbalancing"
	"github.com/vango-dev/arena/pkg/peer"
)

// Category represents the type of error.
type Category string

const (
	CategoryConnection Category = "connection"
	CategoryAuth       Category = "auth"
	CategoryRoom       Category = "room"
	CategoryProtocol   Category = "protocol"
	CategoryConfig     Category = "config"
	CategoryCLI        Category = "cli"
)

// ArenaError is a structured error with a code, a detail and a suggestion.
type ArenaError struct {
	// Code is a unique error identifier (e.g., "A001").
	Code string

	// Category is the error type.
	Category Category

	// Message is a short description of the error.
	Message string

	// Detail is a longer explanation of the error.
	Detail string

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// ServerCode is the error code returned by a server, or 0.
	ServerCode int

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *ArenaError) Error() string {
	msg := e.Message
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, msg)
	}
	return msg
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *ArenaError) Unwrap() error {
	return e.Wrapped
}

// WithSuggestion adds a fix suggestion to the error.
func (e *ArenaError) WithSuggestion(s string) *ArenaError {
	e.Suggestion = s
	return e
}

// WithDetail adds a detailed explanation to the error.
func (e *ArenaError) WithDetail(d string) *ArenaError {
	e.Detail = d
	return e
}

// WithServerCode records the server error code.
func (e *ArenaError) WithServerCode(code int) *ArenaError {
	e.ServerCode = code
	return e
}

// Wrap wraps another error.
func (e *ArenaError) Wrap(err error) *ArenaError {
	e.Wrapped = err
	return e
}

// New creates an ArenaError from a registered error code.
func New(code string) *ArenaError {
	template, ok := registry[code]
	if !ok {
		return &ArenaError{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &ArenaError{
		Code:       code,
		Category:   template.Category,
		Message:    template.Message,
		Detail:     template.Detail,
		Suggestion: template.Suggestion,
	}
}

// Newf creates a new ArenaError with a formatted message (no code).
func Newf(category Category, format string, args ...any) *ArenaError {
	return &ArenaError{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// FromError wraps a standard error in an ArenaError.
func FromError(err error, code string) *ArenaError {
	if err == nil {
		return nil
	}
	var ae *ArenaError
	if stderrors.As(err, &ae) {
		return ae
	}
	return New(code).Wrap(err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// serverCodes maps server error codes to registered codes.
var serverCodes = map[int]string{
	loadbalancing.ErrCodeInvalidAuth:        "A010",
	loadbalancing.ErrCodeCustomAuthFailed:   "A011",
	loadbalancing.ErrCodeGameDoesNotExist:   "A020",
	loadbalancing.ErrCodeGameFull:           "A021",
	loadbalancing.ErrCodeGameClosed:         "A022",
	loadbalancing.ErrCodeNoRandomMatchFound: "A023",
	loadbalancing.ErrCodeGameIDExists:       "A024",
}

// Classify translates an error raised by the client library.
func Classify(err error) *ArenaError {
	if err == nil {
		return nil
	}

	var ae *ArenaError
	if stderrors.As(err, &ae) {
		return ae
	}

	var opErr *loadbalancing.OperationError
	if stderrors.As(err, &opErr) {
		code, ok := serverCodes[opErr.ErrCode]
		if !ok {
			code = "A031"
		}
		return New(code).WithServerCode(opErr.ErrCode).Wrap(err)
	}

	var peerErr *loadbalancing.PeerError
	if stderrors.As(err, &peerErr) {
		switch {
		case peerErr.Status == peer.StatusTimeout:
			return New("A003").Wrap(err)
		case peerErr.Peer == "game":
			return New("A002").Wrap(err)
		default:
			return New("A001").Wrap(err)
		}
	}

	var protoErr *peer.ProtocolError
	switch {
	case stderrors.As(err, &protoErr):
		return New("A030").Wrap(err)
	case stderrors.Is(err, loadbalancing.ErrInvalidTransition):
		return New("A032").Wrap(err)
	case stderrors.Is(err, loadbalancing.ErrNoMasterAddress):
		return New("A043").Wrap(err)
	case stderrors.Is(err, auth.ErrEndpoint):
		return New("A012").Wrap(err)
	}
	return &ArenaError{Category: CategoryCLI, Message: "Command failed", Wrapped: err}
}
