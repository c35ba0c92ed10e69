package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Frame constants.
const (
	// Marker opens a frame and separates the length from the payload.
	Marker = "~m~"

	// JSONPrefix tags a payload as a JSON document.
	JSONPrefix = "~j~"
)

// Stringify converts a message to its framed payload text.
//
// Strings are used as-is, nil becomes the empty string, booleans and numbers use
// their textual form, and every other value is tagged JSON.
func Stringify(v any) string {
	switch m := v.(type) {
	case nil:
		return ""
	case string:
		return m
	case bool:
		return strconv.FormatBool(m)
	case int:
		return strconv.Itoa(m)
	case int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", m)
	case float32:
		return strconv.FormatFloat(float64(m), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(m, 'g', -1, 64)
	case fmt.Stringer:
		return m.String()
	default:
		data, err := json.Marshal(m)
		if err != nil {
			return ""
		}
		return JSONPrefix + string(data)
	}
}

// Encode frames each message in order and concatenates the results.
//
// Wire format per message:
//
//	~m~<decimal byte length>~m~<payload>
func Encode(messages ...any) string {
	var b strings.Builder
	for _, m := range messages {
		payload := Stringify(m)
		b.WriteString(Marker)
		b.WriteString(strconv.Itoa(len(payload)))
		b.WriteString(Marker)
		b.WriteString(payload)
	}
	return b.String()
}

// Decode splits a raw socket message into its framed payloads.
//
// NUL bytes are removed before parsing. Decoding stops at the first malformed
// frame and returns the payloads decoded so far; it never fails.
func Decode(raw string) []string {
	data := strings.ReplaceAll(raw, "\x00", "")
	var messages []string

	for data != "" {
		if !strings.HasPrefix(data, Marker) {
			return messages
		}
		data = data[len(Marker):]

		digits := 0
		for digits < len(data) && data[digits] >= '0' && data[digits] <= '9' {
			digits++
		}
		if digits == 0 || digits == len(data) {
			return messages
		}
		length, err := strconv.Atoi(data[:digits])
		if err != nil {
			return messages
		}

		// The separator after the length is skipped, not checked: the payload
		// is assumed to start one marker length past the digits.
		start := digits + len(Marker)
		if start > len(data) || length > len(data)-start {
			return messages
		}
		data = data[start:]
		messages = append(messages, data[:length])
		data = data[length:]
	}

	return messages
}

// IsJSON reports whether a decoded payload carries tagged JSON.
func IsJSON(payload string) bool {
	return strings.HasPrefix(payload, JSONPrefix)
}
