package protocol

import "errors"

// Envelope and value errors.
var (
	// ErrInvalidEnvelope is returned when a tagged payload is not a JSON object.
	ErrInvalidEnvelope = errors.New("protocol: invalid envelope")

	// ErrNoDiscriminator is returned when an envelope carries none of res, evt, irs.
	ErrNoDiscriminator = errors.New("protocol: envelope has no res, evt or irs")

	// ErrOddValues is returned when a flat vals list has odd length.
	ErrOddValues = errors.New("protocol: vals has odd length")

	// ErrInvalidValueKey is returned when a vals key is not an integer code.
	ErrInvalidValueKey = errors.New("protocol: vals key is not an integer")

	// ErrInvalidValues is returned when vals is present but not a list.
	ErrInvalidValues = errors.New("protocol: vals is not a list")
)
