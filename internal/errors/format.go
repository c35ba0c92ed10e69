package errors

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

const detailWidth = 70

// ansi escape sequences used by Format.
const (
	ansiReset = "\033[0m"
	ansiBold  = "\033[1m"
	ansiRed   = "\033[31m"
	ansiCyan  = "\033[36m"
	ansiGray  = "\033[90m"
)

var colorEnabled = true

// DisableColors turns off ANSI escapes in Format and Fprint.
func DisableColors() { colorEnabled = false }

// EnableColors turns ANSI escapes back on.
func EnableColors() { colorEnabled = true }

func paint(text string, codes ...string) string {
	if !colorEnabled || len(codes) == 0 {
		return text
	}
	return strings.Join(codes, "") + text + ansiReset
}

// Format renders the error for a terminal: a header line, the wrapped detail,
// then the hint, server code and cause when present.
func (e *ArenaError) Format() string {
	var b strings.Builder

	label := "ERROR: "
	if e.Code != "" {
		label = "ERROR " + e.Code + ": "
	}
	fmt.Fprintf(&b, "\n%s%s\n\n", paint(label, ansiRed, ansiBold), paint(e.Message, ansiBold))

	if lines := wrapText(e.Detail, detailWidth); len(lines) > 0 {
		for _, line := range lines {
			fmt.Fprintf(&b, "  %s\n", line)
		}
		b.WriteString("\n")
	}
	if e.Suggestion != "" {
		fmt.Fprintf(&b, "  %s%s\n\n", paint("Hint: ", ansiCyan), e.Suggestion)
	}
	if e.ServerCode != 0 {
		fmt.Fprintf(&b, "  %s%d\n", paint("Server code: ", ansiGray), e.ServerCode)
	}
	if e.Wrapped != nil {
		fmt.Fprintf(&b, "  %s%s\n", paint("Cause: ", ansiGray), e.Wrapped)
	}
	return b.String()
}

// FormatCompact returns "CODE: message", or just the message without a code.
func (e *ArenaError) FormatCompact() string {
	if e.Code == "" {
		return e.Message
	}
	return e.Code + ": " + e.Message
}

type jsonError struct {
	Code       string   `json:"code,omitempty"`
	Category   Category `json:"category"`
	Message    string   `json:"message"`
	Detail     string   `json:"detail,omitempty"`
	ServerCode int      `json:"serverCode,omitempty"`
	Suggestion string   `json:"suggestion,omitempty"`
	Cause      string   `json:"cause,omitempty"`
}

// FormatJSON returns the error as a single JSON object.
func (e *ArenaError) FormatJSON() string {
	out := jsonError{
		Code:       e.Code,
		Category:   e.Category,
		Message:    e.Message,
		Detail:     e.Detail,
		ServerCode: e.ServerCode,
		Suggestion: e.Suggestion,
	}
	if e.Wrapped != nil {
		out.Cause = e.Wrapped.Error()
	}
	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Sprintf(`{"message":%q}`, e.Message)
	}
	return string(data)
}

// wrapText splits text into lines of at most width bytes on word boundaries.
// A single word longer than width gets a line of its own.
func wrapText(text string, width int) []string {
	var lines []string
	var line string
	for _, word := range strings.Fields(text) {
		switch {
		case line == "":
			line = word
		case len(line)+1+len(word) > width:
			lines = append(lines, line)
			line = word
		default:
			line += " " + word
		}
	}
	if line != "" {
		lines = append(lines, line)
	}
	return lines
}

// PrintError writes err to stderr. See Fprint.
func PrintError(err error) {
	Fprint(os.Stderr, err)
}

// Fprint writes err to w, using Format for an *ArenaError.
func Fprint(w io.Writer, err error) {
	if ae, ok := err.(*ArenaError); ok {
		fmt.Fprint(w, ae.Format())
		return
	}
	fmt.Fprintf(w, "\n%s %s\n\n", paint("ERROR:", ansiRed, ansiBold), err)
}
