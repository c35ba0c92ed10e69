package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind identifies which discriminator an envelope carries.
type Kind uint8

const (
	KindResponse Kind = 0x01 // "res": operation response
	KindEvent    Kind = 0x02 // "evt": server event
	KindInternal Kind = 0x03 // "irs": internal (keep-alive) response
)

// String returns the string representation of the envelope kind.
func (k Kind) String() string {
	switch k {
	case KindResponse:
		return "Response"
	case KindEvent:
		return "Event"
	case KindInternal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// Reserved JSON keys.
const (
	KeyResponse        = "res"
	KeyEvent           = "evt"
	KeyInternal        = "irs"
	KeyRequest         = "req"
	KeyInternalRequest = "irq"
	KeyErrCode         = "err"
	KeyErrMsg          = "msg"
	KeyValues          = "vals"
)

// Envelope is a decoded server message.
type Envelope struct {
	Kind    Kind
	Code    int
	ErrCode int
	ErrMsg  string
	Values  Values
}

// OK reports whether the envelope carries no error code.
func (e *Envelope) OK() bool {
	return e.ErrCode == 0
}

// DecodeEnvelope parses a tagged-JSON payload (with or without the ~j~ prefix).
//
// Discriminators are checked in the order res, evt, irs. A document carrying none
// of them, or a vals list of odd length, is a protocol error.
func DecodeEnvelope(payload string) (*Envelope, error) {
	payload = strings.TrimPrefix(payload, JSONPrefix)

	var raw map[string]any
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}

	env := &Envelope{}
	var key string
	switch {
	case raw[KeyResponse] != nil:
		env.Kind, key = KindResponse, KeyResponse
	case raw[KeyEvent] != nil:
		env.Kind, key = KindEvent, KeyEvent
	case raw[KeyInternal] != nil:
		env.Kind, key = KindInternal, KeyInternal
	default:
		return nil, ErrNoDiscriminator
	}
	code, ok := toInt(raw[key])
	if !ok {
		return nil, fmt.Errorf("%w: non-numeric %q code %v", ErrInvalidEnvelope, key, raw[key])
	}
	env.Code = code

	if v, ok := raw[KeyErrCode]; ok && v != nil {
		if env.ErrCode, ok = toInt(v); !ok {
			return nil, fmt.Errorf("%w: non-numeric %q %v", ErrInvalidEnvelope, KeyErrCode, v)
		}
	}
	if v, ok := raw[KeyErrMsg].(string); ok {
		env.ErrMsg = v
	}

	switch vals := raw[KeyValues].(type) {
	case nil:
		env.Values = Values{}
	case []any:
		parsed, err := Unflatten(vals)
		if err != nil {
			return nil, err
		}
		env.Values = parsed
	default:
		return nil, fmt.Errorf("%w: vals is %T", ErrInvalidValues, vals)
	}

	return env, nil
}

// EncodeEnvelope renders an envelope as tagged JSON. Used by servers and tests.
func EncodeEnvelope(e *Envelope, order ...int) string {
	doc := map[string]any{}
	switch e.Kind {
	case KindResponse:
		doc[KeyResponse] = e.Code
		doc[KeyErrCode] = e.ErrCode
		if e.ErrMsg != "" {
			doc[KeyErrMsg] = e.ErrMsg
		}
	case KindEvent:
		doc[KeyEvent] = e.Code
	case KindInternal:
		doc[KeyInternal] = e.Code
	}
	if len(order) == 0 {
		for k := range e.Values {
			order = append(order, k)
		}
	}
	doc[KeyValues] = Flatten(e.Values, order...)
	return Stringify(doc)
}

// OperationRequest is a client-to-server operation.
type OperationRequest struct {
	Code   int
	Params Params
}

// MarshalJSON renders the request as {"req": code, "vals": [...]}.
func (r OperationRequest) MarshalJSON() ([]byte, error) {
	vals := r.Params
	if vals == nil {
		vals = Params{}
	}
	return json.Marshal(struct {
		Req  int    `json:"req"`
		Vals Params `json:"vals"`
	}{r.Code, vals})
}

// InternalRequest is a reserved request outside the operation code space (ping).
type InternalRequest struct {
	Code   int
	Params Params
}

// MarshalJSON renders the request as {"irq": code, "vals": [...]}.
func (r InternalRequest) MarshalJSON() ([]byte, error) {
	vals := r.Params
	if vals == nil {
		vals = Params{}
	}
	return json.Marshal(struct {
		Irq  int    `json:"irq"`
		Vals Params `json:"vals"`
	}{r.Code, vals})
}

// Internal request codes.
const (
	// InternalPing is the keep-alive request. Its params are [1, <unix ms>].
	InternalPing = 1
)

// NewPing builds the keep-alive request for the given timestamp in milliseconds.
func NewPing(unixMillis int64) InternalRequest {
	return InternalRequest{Code: InternalPing, Params: Params{1, unixMillis}}
}

// Request is a decoded client request. Used by servers and tests.
type Request struct {
	Internal bool
	Code     int
	Values   Values
}

// DecodeRequest parses a tagged-JSON client request.
func DecodeRequest(payload string) (*Request, error) {
	payload = strings.TrimPrefix(payload, JSONPrefix)

	var raw map[string]any
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}

	req := &Request{}
	switch {
	case raw[KeyRequest] != nil:
		req.Code, _ = toInt(raw[KeyRequest])
	case raw[KeyInternalRequest] != nil:
		req.Internal = true
		req.Code, _ = toInt(raw[KeyInternalRequest])
	default:
		return nil, ErrNoDiscriminator
	}

	flat, _ := raw[KeyValues].([]any)
	vals, err := Unflatten(flat)
	if err != nil {
		return nil, err
	}
	req.Values = vals
	return req, nil
}
