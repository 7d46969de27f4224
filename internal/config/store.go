package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// ErrInvalidKey is returned when a config key contains invalid characters.
var ErrInvalidKey = errors.New("invalid config key")

// ErrInvalidValue is returned when a value cannot be parsed for its key.
var ErrInvalidValue = errors.New("invalid config value")

// ValidateKey checks if a config key contains only allowed characters.
// Valid keys contain: letters, digits, dots, underscores, and hyphens.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: key cannot be empty", ErrInvalidKey)
	}
	for i, r := range key {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '.' && r != '_' && r != '-' {
			return fmt.Errorf("%w: invalid character %q at position %d", ErrInvalidKey, r, i)
		}
	}
	if key[0] == '.' || key[len(key)-1] == '.' || strings.Contains(key, "..") {
		return fmt.Errorf("%w: empty key segment", ErrInvalidKey)
	}
	return nil
}

// Store edits individual keys of a config file.
type Store interface {
	// Get returns a single config entry by key, or nil if unset.
	Get(key string) (*Entry, error)

	// Set creates or updates a config entry.
	Set(key string, value any) error

	// GetAll returns all config entries set in the file.
	GetAll() (map[string]Entry, error)

	// GetByPrefix returns config entries matching the prefix.
	GetByPrefix(prefix string) (map[string]Entry, error)

	// Delete removes a config entry.
	Delete(key string) error
}

// Entry represents a single configuration entry.
type Entry struct {
	Key         string `json:"key" yaml:"key"`
	Value       any    `json:"value" yaml:"value"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// FileStore implements Store over a YAML config file. Keys are dotted paths
// into the document. Reads are not cached.
type FileStore struct {
	path string
}

// NewStore creates a store for the config file at path. The file need not
// exist yet.
func NewStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the config file.
func (s *FileStore) Path() string { return s.path }

// Get returns a single config entry by key.
func (s *FileStore) Get(key string) (*Entry, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	var cur any = doc
	for _, part := range strings.Split(key, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, nil
		}
		if cur, ok = m[part]; !ok {
			return nil, nil
		}
	}
	return newEntry(key, cur), nil
}

// Set creates or updates a config entry.
func (s *FileStore) Set(key string, value any) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	doc, err := s.load()
	if err != nil {
		return err
	}

	parts := strings.Split(key, ".")
	cur := doc
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur[part].(map[string]any)
		if !ok {
			if _, exists := cur[part]; exists {
				return fmt.Errorf("%w: %q is not a section", ErrInvalidKey, part)
			}
			next = make(map[string]any)
			cur[part] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = value
	return s.save(doc)
}

// GetAll returns all config entries.
func (s *FileStore) GetAll() (map[string]Entry, error) {
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	result := make(map[string]Entry)
	flatten("", doc, result)
	return result, nil
}

// GetByPrefix returns config entries matching the prefix.
func (s *FileStore) GetByPrefix(prefix string) (map[string]Entry, error) {
	all, err := s.GetAll()
	if err != nil {
		return nil, err
	}
	result := make(map[string]Entry)
	for key, entry := range all {
		if strings.HasPrefix(key, prefix) {
			result[key] = entry
		}
	}
	return result, nil
}

// Delete removes a config entry by key. Sections left empty are removed.
func (s *FileStore) Delete(key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	doc, err := s.load()
	if err != nil {
		return err
	}
	if !deletePath(doc, strings.Split(key, ".")) {
		return nil // Already doesn't exist
	}
	return s.save(doc)
}

func deletePath(m map[string]any, parts []string) bool {
	if len(parts) == 1 {
		if _, ok := m[parts[0]]; !ok {
			return false
		}
		delete(m, parts[0])
		return true
	}
	child, ok := m[parts[0]].(map[string]any)
	if !ok {
		return false
	}
	removed := deletePath(child, parts[1:])
	if removed && len(child) == 0 {
		delete(m, parts[0])
	}
	return removed
}

func (s *FileStore) load() (map[string]any, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]any), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	doc := make(map[string]any)
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", s.path, err)
	}
	return doc, nil
}

func (s *FileStore) save(doc map[string]any) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return os.Rename(tmp, s.path)
}

func flatten(prefix string, m map[string]any, out map[string]Entry) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if child, ok := v.(map[string]any); ok {
			flatten(key, child, out)
			continue
		}
		out[key] = *newEntry(key, v)
	}
}

func newEntry(key string, value any) *Entry {
	e := &Entry{Key: key, Value: value}
	if def := GetDefault(key); def != nil {
		e.Description = def.Description
	}
	return e
}

// SortedKeys returns the keys of entries in order.
func SortedKeys(entries map[string]Entry) []string {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ParseValue converts a command-line string to the type of the key's
// default. Keys without a default, such as settings for extra providers,
// keep the string unless it reads as a bool or number.
func ParseValue(key, raw string) (any, error) {
	def := GetDefault(key)
	if def == nil {
		if b, err := strconv.ParseBool(raw); err == nil {
			return b, nil
		}
		if n, err := strconv.Atoi(raw); err == nil {
			return n, nil
		}
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f, nil
		}
		return raw, nil
	}

	switch def.Value.(type) {
	case bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s expects true or false", ErrInvalidValue, key)
		}
		return b, nil
	case int, int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s expects an integer", ErrInvalidValue, key)
		}
		return int(n), nil
	case float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s expects a number", ErrInvalidValue, key)
		}
		return f, nil
	case []string:
		var out []string
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out, nil
	default:
		return raw, nil
	}
}
