package metadata

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed default_mapping.yaml
var defaultMapping []byte

// ErrInvalidMapping is returned for a malformed mapping config.
var ErrInvalidMapping = errors.New("invalid mapping config")

// Transforms accepted by FieldSpec.Transform.
const (
	TransformRaw      = "raw"
	TransformDatetime = "datetime"
	TransformDate     = "date"
	TransformYear     = "year"
	TransformUpper    = "upper"
	TransformLower    = "lower"
)

// Config maps book metadata into one or more target schemas.
type Config struct {
	Targets map[string][]FieldSpec `yaml:"targets" json:"targets"`
}

// FieldSpec describes how one output field is produced.
type FieldSpec struct {
	Name      string `yaml:"name" json:"name"`
	Source    string   `yaml:"source,omitempty" json:"source,omitempty"`
	Sources   []string `yaml:"sources,omitempty" json:"sources,omitempty"` // candidates, last valid wins
	Literal   string   `yaml:"literal,omitempty" json:"literal,omitempty"`
	Template  string   `yaml:"template,omitempty" json:"template,omitempty"`
	Default   string   `yaml:"default,omitempty" json:"default,omitempty"`
	Join      string   `yaml:"join,omitempty" json:"join,omitempty"`
	Transform string   `yaml:"transform,omitempty" json:"transform,omitempty"`
	Required  bool     `yaml:"required,omitempty" json:"required,omitempty"`

	tmpl *template.Template
}

// sources returns the metadata keys a source field reads, in priority order.
func (f *FieldSpec) sources() []string {
	if f.Source != "" {
		return []string{f.Source}
	}
	return f.Sources
}

// DefaultConfig returns the built-in mapping.
func DefaultConfig() *Config {
	cfg, err := ParseConfig(defaultMapping)
	if err != nil {
		panic(fmt.Sprintf("embedded mapping is invalid: %v", err))
	}
	return cfg
}

// DefaultConfigYAML returns the built-in mapping document.
func DefaultConfigYAML() []byte {
	return bytes.Clone(defaultMapping)
}

// LoadConfig reads a mapping file. YAML and JSON are both accepted.
// An empty path yields the built-in mapping.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping %s: %w", path, err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig decodes and validates a mapping document.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMapping, err)
	}
	if err := cfg.compile(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// TargetNames returns the configured targets in a stable order.
func (c *Config) TargetNames() []string {
	names := make([]string, 0, len(c.Targets))
	for name := range c.Targets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Config) compile() error {
	if len(c.Targets) == 0 {
		return fmt.Errorf("%w: no targets", ErrInvalidMapping)
	}
	for target, fields := range c.Targets {
		seen := map[string]bool{}
		for i := range fields {
			f := &fields[i]
			if f.Name == "" {
				return fmt.Errorf("%w: %s field %d has no name", ErrInvalidMapping, target, i)
			}
			if seen[f.Name] {
				return fmt.Errorf("%w: %s.%s declared twice", ErrInvalidMapping, target, f.Name)
			}
			seen[f.Name] = true

			kinds := 0
			for _, s := range []string{f.Source, strings.Join(f.Sources, ""), f.Literal, f.Template} {
				if s != "" {
					kinds++
				}
			}
			if kinds != 1 {
				return fmt.Errorf("%w: %s.%s needs exactly one of source, sources, literal or template",
					ErrInvalidMapping, target, f.Name)
			}
			if slices.Contains(f.Sources, "") {
				return fmt.Errorf("%w: %s.%s has an empty source candidate", ErrInvalidMapping, target, f.Name)
			}

			switch f.Transform {
			case "", TransformRaw, TransformDatetime, TransformDate, TransformYear, TransformUpper, TransformLower:
			default:
				return fmt.Errorf("%w: %s.%s has unknown transform %q", ErrInvalidMapping, target, f.Name, f.Transform)
			}

			if f.Template != "" {
				t, err := template.New(target + "." + f.Name).
					Option("missingkey=zero").
					Funcs(templateFuncs(nil)).
					Parse(f.Template)
				if err != nil {
					return fmt.Errorf("%w: %s.%s: %v", ErrInvalidMapping, target, f.Name, err)
				}
				f.tmpl = t
			}
		}
	}
	return nil
}

// templateFuncs exposes every value of a key as "all" next to strings.Join.
// Templates are parsed against a nil metadata set and bound to the real one
// at execution.
func templateFuncs(md map[string][]string) template.FuncMap {
	return template.FuncMap{
		"all":  func(key string) []string { return md[key] },
		"join": strings.Join,
	}
}
