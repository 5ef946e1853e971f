package format

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Markdowner is implemented by values that have a human-readable rendering.
type Markdowner interface {
	Markdown() string
}

// Write writes v in the requested format.
//
// Supported formats:
// - json (default)
// - edn
// - md (only for values implementing Markdowner)
func Write(w io.Writer, v any, format string, pretty bool) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json":
		return WriteJSON(w, v, pretty)
	case "edn":
		return WriteEDN(w, v, pretty)
	case "md", "markdown":
		m, ok := v.(Markdowner)
		if !ok {
			return fmt.Errorf("format md is not available for this command")
		}
		return WriteMarkdown(w, m)
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

// Valid reports whether format is one Write understands.
func Valid(format string) bool {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json", "edn", "md", "markdown":
		return true
	default:
		return false
	}
}

// WriteJSON writes strict JSON, one document per call.
func WriteJSON(w io.Writer, v any, pretty bool) error {
	var b []byte
	var err error
	if pretty {
		b, err = json.MarshalIndent(v, "", "  ")
	} else {
		b, err = json.Marshal(v)
	}
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(w, string(b))
	return err
}

func WriteMarkdown(w io.Writer, m Markdowner) error {
	s := m.Markdown()
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	_, err := io.WriteString(w, s)
	return err
}
