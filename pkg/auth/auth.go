package auth

import (
	"context"
	"errors"
)

// ResultCode is the outcome reported by an auth endpoint.
type ResultCode int

const (
	ResultOK            ResultCode = 1
	ResultFailed        ResultCode = 2
	ResultInvalidParams ResultCode = 3
)

// String returns the string representation of the result code.
func (c ResultCode) String() string {
	switch c {
	case ResultOK:
		return "ok"
	case ResultFailed:
		return "failed"
	case ResultInvalidParams:
		return "invalid_params"
	default:
		return "unknown"
	}
}

// Result is the JSON body returned by an auth endpoint.
type Result struct {
	ResultCode ResultCode `json:"ResultCode"`
	Message    string     `json:"Message"`
	UserID     string     `json:"UserId,omitempty"`
}

// OK reports whether the client was accepted.
func (r Result) OK() bool {
	return r.ResultCode == ResultOK
}

// Query parameter names checked by Handler.
const (
	ParamUser  = "user"
	ParamToken = "token"
)

var (
	// ErrEndpoint is wrapped by errors talking to an auth endpoint.
	ErrEndpoint = errors.New("auth: endpoint error")

	// ErrNoURL is returned by an HTTPVerifier without a URL.
	ErrNoURL = errors.New("auth: no endpoint url")
)

// Verifier checks opaque custom-auth parameters.
type Verifier interface {
	Verify(ctx context.Context, params string) (Result, error)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, params string) (Result, error)

// Verify calls f.
func (f VerifierFunc) Verify(ctx context.Context, params string) (Result, error) {
	return f(ctx, params)
}
