// Package protocol implements the text wire protocol spoken between arena clients
// and master/game servers.
//
// It is a leaf package: it knows framing and envelope shapes but nothing about
// operation semantics, which live in pkg/lite and pkg/loadbalancing.
//
// # Wire Format
//
// A socket text message carries one or more frames:
//
//	~m~<decimal length>~m~<payload>~m~<decimal length>~m~<payload>...
//
// The length counts payload bytes. NUL bytes anywhere in a message are ignored.
// A frame that does not fit the remaining input ends decoding; the frames decoded
// before it are still returned.
//
// # Payloads
//
// The first payload after connecting is the bare session identifier. Every later
// payload is tagged JSON, a JSON object prefixed with "~j~":
//
//	~j~{"res":229,"err":0,"msg":"","vals":[]}          operation response
//	~j~{"evt":230,"vals":[222,{"room-1":{...}}]}       event
//	~j~{"irs":1,"vals":[1,1712000000000]}              internal response
//
// Clients send operations and internal requests:
//
//	~j~{"req":227,"vals":[255,"room-1",250,true]}
//	~j~{"irq":1,"vals":[1,1712000000000]}
//
// # Values
//
// Parameters travel as a flat array alternating key and value. Params is the
// outgoing form and Values the decoded mapping:
//
//	p := protocol.Params{}.Add(255, "room-1").Add(250, true)
//	vals, err := protocol.Unflatten([]any{255, "room-1", 250, true})
//	name, _ := vals.String(255)
//
// # File Structure
//
//   - frame.go: framing and payload stringification
//   - envelope.go: envelope decoding, request encoding
//   - values.go: flat parameter lists and typed accessors
//   - error.go: sentinel errors
package protocol
