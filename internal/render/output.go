// Package render writes command results as YAML, JSON or tables.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"gopkg.in/yaml.v3"
)

// Format defines the output format for CLI commands.
type Format string

const (
	FormatYAML  Format = "yaml"
	FormatJSON  Format = "json"
	FormatTable Format = "table"
)

// DefaultFormat is the format used when none is given.
var DefaultFormat = FormatYAML

// ParseFormat validates a --output value.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "":
		return DefaultFormat, nil
	case FormatYAML, FormatJSON, FormatTable:
		return Format(s), nil
	default:
		return "", fmt.Errorf("unknown output format %q (want yaml, json or table)", s)
	}
}

// Tabular is implemented by results that have a table rendering.
type Tabular interface {
	Table() (headers []string, rows [][]string, aligns []Align)
}

// Output writes data to stdout in the given format.
func Output(format Format, data any) error {
	return To(os.Stdout, format, data)
}

// To writes data to w in the given format. Results without a table
// rendering fall back to YAML.
func To(w io.Writer, format Format, data any) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case FormatTable:
		if t, ok := data.(Tabular); ok {
			headers, rows, aligns := t.Table()
			_, err := fmt.Fprintln(w, Table(headers, rows, aligns))
			return err
		}
		return To(w, FormatYAML, data)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(data)
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
