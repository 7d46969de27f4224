package metadata

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jackzampolin/narrate/internal/book"
)

// Mapped holds one document per configured target.
type Mapped struct {
	Targets map[string]*Document `json:"targets"`
}

// Target returns the named document or nil.
func (m *Mapped) Target(name string) *Document {
	if m == nil {
		return nil
	}
	return m.Targets[name]
}

// Document is a flat field map for a single target, plus the field order
// from the mapping config.
type Document struct {
	Target   string            `json:"target"`
	Fields   map[string]string `json:"fields"`
	Order    []string          `json:"order"`
	Warnings []string          `json:"warnings,omitempty"`
}

// Get returns a field value or "".
func (d *Document) Get(name string) string {
	if d == nil {
		return ""
	}
	return d.Fields[name]
}

// Options configures Map.
type Options struct {
	Logger *slog.Logger
}

// Map projects book metadata into every target of cfg. Targets are mapped
// concurrently. A missing required field fails the whole mapping with an
// *UnresolvedMappingError; optional gaps are recorded as warnings.
func Map(ctx context.Context, md book.Metadata, cfg *Config, opts Options) (*Mapped, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	out := &Mapped{Targets: make(map[string]*Document, len(cfg.Targets))}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range cfg.TargetNames() {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			doc, err := mapTarget(name, cfg.Targets[name], md)
			if err != nil {
				return err
			}
			for _, w := range doc.Warnings {
				logger.Warn("metadata field unresolved", "target", name, "detail", w)
			}
			mu.Lock()
			out.Targets[name] = doc
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	logger.Info("metadata mapped", "targets", len(out.Targets))
	return out, nil
}

func mapTarget(target string, fields []FieldSpec, md book.Metadata) (*Document, error) {
	doc := &Document{
		Target: target,
		Fields: make(map[string]string, len(fields)),
		Order:  make([]string, 0, len(fields)),
	}
	data := templateData(md)

	declared := map[string]bool{}
	for i := range fields {
		f := &fields[i]
		declared[f.Name] = true

		value, reason := resolveField(f, md, data)
		if value == "" && f.Default != "" {
			value = f.Default
		}
		if value == "" {
			uerr := &UnresolvedMappingError{
				Target: target,
				Field:  f.Name,
				Source: strings.Join(f.sources(), ","),
				Reason: reason,
				Fatal:  f.Required || isSchemaRequired(target, f.Name),
			}
			if uerr.Fatal {
				return nil, uerr
			}
			doc.Warnings = append(doc.Warnings, uerr.Error())
			continue
		}
		doc.Fields[f.Name] = value
		doc.Order = append(doc.Order, f.Name)
	}

	for _, name := range requiredFields[target] {
		if !declared[name] {
			return nil, &UnresolvedMappingError{
				Target: target,
				Field:  name,
				Reason: "not mapped",
				Fatal:  true,
			}
		}
	}
	return doc, nil
}

func resolveField(f *FieldSpec, md book.Metadata, data map[string]string) (string, string) {
	switch {
	case f.Literal != "":
		return finishValue(f, f.Literal)
	case f.Template != "":
		t, err := f.tmpl.Clone()
		if err != nil {
			return "", fmt.Sprintf("template failed: %v", err)
		}
		var sb strings.Builder
		if err := t.Funcs(templateFuncs(md)).Execute(&sb, data); err != nil {
			return "", fmt.Sprintf("template failed: %v", err)
		}
		return finishValue(f, sb.String())
	}

	// Candidates are tried in order and the last valid one wins.
	var value, reason string
	for _, src := range f.sources() {
		v, r := resolveSource(f, md, src)
		switch {
		case v != "":
			value, reason = v, ""
		case value == "":
			reason = r
		}
	}
	return value, reason
}

func resolveSource(f *FieldSpec, md book.Metadata, src string) (string, string) {
	values := md[src]
	if len(values) == 0 {
		return "", "source " + src + " is empty"
	}
	if f.Join != "" {
		return finishValue(f, strings.Join(values, f.Join))
	}
	return finishValue(f, values[0])
}

// finishValue trims and transforms a resolved value.
func finishValue(f *FieldSpec, value string) (string, string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", "empty value"
	}
	out, err := applyTransform(f.Transform, value)
	if err != nil {
		return "", err.Error()
	}
	return out, ""
}

func templateData(md book.Metadata) map[string]string {
	data := make(map[string]string, len(md))
	for k := range md {
		data[k] = md.First(k)
	}
	return data
}

// dateLayouts are the forms publication dates take in package documents.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
	"2006-01",
	"2006",
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

func applyTransform(name, value string) (string, error) {
	switch name {
	case "", TransformRaw:
		return value, nil
	case TransformUpper:
		return strings.ToUpper(value), nil
	case TransformLower:
		return strings.ToLower(value), nil
	}

	t, err := parseDate(value)
	if err != nil {
		return "", err
	}
	switch name {
	case TransformDatetime:
		return t.UTC().Format("2006-01-02T15:04:05"), nil
	case TransformDate:
		return t.UTC().Format("2006-01-02"), nil
	case TransformYear:
		return t.UTC().Format("2006"), nil
	}
	return "", fmt.Errorf("unknown transform %q", name)
}
