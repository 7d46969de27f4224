package metadata

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"unicode"
)

// NFORoot is the root element of a Kodi album NFO.
const NFORoot = "album"

// WriteNFO renders doc as a Kodi NFO document. Fields become child elements
// in mapping order. Names that are not valid XML element names are skipped.
func WriteNFO(w io.Writer, doc *Document) error {
	if doc == nil {
		return fmt.Errorf("no nfo document")
	}
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")

	root := xml.StartElement{Name: xml.Name{Local: NFORoot}}
	if err := enc.EncodeToken(root); err != nil {
		return err
	}
	for _, name := range doc.Order {
		if !validElementName(name) {
			continue
		}
		if err := enc.EncodeElement(doc.Fields[name], xml.StartElement{Name: xml.Name{Local: name}}); err != nil {
			return fmt.Errorf("failed to encode %s: %w", name, err)
		}
	}
	if err := enc.EncodeToken(root.End()); err != nil {
		return err
	}
	if err := enc.Flush(); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// WritePlex renders doc as the JSON sidecar read by Plex audiobook agents.
func WritePlex(w io.Writer, doc *Document) error {
	return writeFields(w, doc)
}

// WriteID3 renders doc as a JSON frame map for external taggers.
func WriteID3(w io.Writer, doc *Document) error {
	return writeFields(w, doc)
}

func writeFields(w io.Writer, doc *Document) error {
	if doc == nil {
		return fmt.Errorf("no document")
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc.Fields)
}

// Writer renders one target document.
type Writer func(io.Writer, *Document) error

// Exports maps each known target to its renderer and file name.
var Exports = map[string]struct {
	File  string
	Write Writer
}{
	TargetNFO:  {File: "album.nfo", Write: WriteNFO},
	TargetPlex: {File: "plex.json", Write: WritePlex},
	TargetID3:  {File: "id3.json", Write: WriteID3},
}

// Export writes every mapped target with a known renderer into dir and
// returns the written paths in target order.
func Export(dir string, m *Mapped) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create export dir: %w", err)
	}
	names := make([]string, 0, len(m.Targets))
	for name := range m.Targets {
		names = append(names, name)
	}
	sort.Strings(names)

	var written []string
	for _, name := range names {
		exp, ok := Exports[name]
		if !ok {
			continue
		}
		var buf bytes.Buffer
		if err := exp.Write(&buf, m.Targets[name]); err != nil {
			return written, fmt.Errorf("render %s: %w", name, err)
		}
		path := filepath.Join(dir, exp.File)
		if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
			return written, fmt.Errorf("write %s: %w", exp.File, err)
		}
		written = append(written, path)
	}
	return written, nil
}

func validElementName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case unicode.IsLetter(r) || r == '_':
		case i > 0 && (unicode.IsDigit(r) || r == '-' || r == '.'):
		default:
			return false
		}
	}
	return true
}
