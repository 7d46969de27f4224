// Package artifact reads and writes the JSON documents exchanged between
// pipeline stages.
//
// Writes are atomic: a stage either leaves a complete document or nothing.
// Reads validate the document against an embedded JSON Schema before
// decoding, so a hand-edited or truncated artifact fails at the boundary
// instead of deep inside a stage.
package artifact

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Kind identifies a stage document type.
type Kind string

const (
	KindBook     Kind = "general-book"
	KindQueries  Kind = "ssml-queries"
	KindMetadata Kind = "metadata"
	KindJobs     Kind = "finalized-jobs"
)

// Kinds lists every known document kind.
func Kinds() []Kind {
	return []Kind{KindBook, KindQueries, KindMetadata, KindJobs}
}

// ErrUnknownKind is returned for a kind with no embedded schema.
var ErrUnknownKind = errors.New("unknown artifact kind")

// ValidationError wraps a schema violation with the offending file.
type ValidationError struct {
	Path string
	Kind Kind
	Err  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s is not a valid %s document: %v", e.Path, e.Kind, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

//go:embed schemas/*.json
var schemaFS embed.FS

var (
	schemaMu    sync.Mutex
	schemaCache = map[Kind]*jsonschema.Schema{}
)

// Schema returns the compiled schema for kind.
func Schema(kind Kind) (*jsonschema.Schema, error) {
	schemaMu.Lock()
	defer schemaMu.Unlock()

	if s, ok := schemaCache[kind]; ok {
		return s, nil
	}

	raw, err := schemaFS.ReadFile("schemas/" + string(kind) + ".json")
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}

	url := string(kind) + ".json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("failed to load %s schema: %w", kind, err)
	}
	s, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("failed to compile %s schema: %w", kind, err)
	}
	schemaCache[kind] = s
	return s, nil
}

// Validate checks raw JSON against the schema for kind.
func Validate(kind Kind, data []byte) error {
	s, err := Schema(kind)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to decode JSON for validation: %w", err)
	}
	return s.Validate(doc)
}

// Read loads path, validates it as kind and decodes it into v.
func Read(path string, kind Kind, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := Validate(kind, data); err != nil {
		if errors.Is(err, ErrUnknownKind) {
			return err
		}
		return &ValidationError{Path: path, Kind: kind, Err: err}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

// Write encodes v as indented JSON and atomically replaces path.
func Write(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	data = append(data, '\n')
	return WriteBytes(path, data)
}

// WriteBytes atomically replaces path with data.
func WriteBytes(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return nil
}
