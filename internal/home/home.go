package home

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

const (
	// DefaultDirName is the default name for the narrate home directory.
	DefaultDirName = ".narrate"

	// BooksDirName is the subdirectory holding one output directory per book.
	BooksDirName = "books"

	// MappingsDirName holds user metadata mapping files.
	MappingsDirName = "mappings"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"

	// VoicesFileName caches provider voice lists.
	VoicesFileName = "voices.json"
)

// Dir represents the narrate home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.narrate).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// BooksPath returns the directory holding per-book output.
func (d *Dir) BooksPath() string {
	return filepath.Join(d.path, BooksDirName)
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// VoicesPath returns the voice cache file.
func (d *Dir) VoicesPath() string {
	return filepath.Join(d.path, VoicesFileName)
}

// MappingsPath returns the directory for metadata mapping files.
func (d *Dir) MappingsPath() string {
	return filepath.Join(d.path, MappingsDirName)
}

// MappingPath resolves a mapping name. Bare names without an extension or
// directory refer to <home>/mappings/<name>.yaml; anything else is a path.
func (d *Dir) MappingPath(name string) string {
	if name == "" || strings.ContainsRune(name, os.PathSeparator) || filepath.Ext(name) != "" {
		return name
	}
	return filepath.Join(d.MappingsPath(), name+".yaml")
}

// EnsureExists creates the home directory and subdirectories if they don't exist.
func (d *Dir) EnsureExists() error {
	for _, dir := range []string{d.BooksPath(), d.MappingsPath()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", filepath.Base(dir), err)
		}
	}
	return nil
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}

// BookDir returns the output directory for a book slug.
func (d *Dir) BookDir(slug string) string {
	return filepath.Join(d.BooksPath(), slug)
}

// EnsureBookDir creates the output directory for a book.
func (d *Dir) EnsureBookDir(slug string) (string, error) {
	dir := d.BookDir(slug)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create book directory: %w", err)
	}
	return dir, nil
}

// Slug derives a directory name from a source file path: the base name
// without extension, lowercased, with runs of other characters collapsed
// to a single dash.
func Slug(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	var sb strings.Builder
	dash := false
	for _, r := range strings.ToLower(base) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
			dash = false
			continue
		}
		if !dash && sb.Len() > 0 {
			sb.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimSuffix(sb.String(), "-")
	if slug == "" {
		return "book"
	}
	return slug
}
