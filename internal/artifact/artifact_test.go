package artifact

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jackzampolin/narrate/internal/book"
)

func TestSchemasCompile(t *testing.T) {
	for _, kind := range Kinds() {
		t.Run(string(kind), func(t *testing.T) {
			if _, err := Schema(kind); err != nil {
				t.Fatalf("schema did not compile: %v", err)
			}
		})
	}

	if _, err := Schema("bogus"); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("expected ErrUnknownKind, got %v", err)
	}
}

func TestWriteRead(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "book.json")

	b := book.New()
	b.Metadata.Add(book.KeyTitle, "Round Trip")
	b.Manifest = append(b.Manifest, book.ManifestEntry{ID: "ch1", MediaType: "application/xhtml+xml", SourcePath: "ch1.xhtml"})
	b.Spine = append(b.Spine, "ch1")
	b.TOC.Add(book.RootNode, "Chapter 1", "ch1", "")
	b.Content = append(b.Content, book.ContentUnit{UnitID: book.UnitID(0, 0), Text: "Hello.", Role: book.RoleParagraph})

	if err := Write(path, b); err != nil {
		t.Fatalf("write: %v", err)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the artifact, found %d entries", len(entries))
	}

	var back book.GeneralBook
	if err := Read(path, KindBook, &back); err != nil {
		t.Fatalf("read: %v", err)
	}
	if back.Metadata.First(book.KeyTitle) != "Round Trip" || len(back.Content) != 1 {
		t.Errorf("unexpected book %+v", back)
	}
}

func TestReadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		kind Kind
		body string
	}{
		{"book missing content", KindBook, `{"metadata":{},"manifest":[],"spine":[],"toc":{"children":[]}}`},
		{"bad unit id", KindQueries, `[{"unitId":"p1","sequenceIndex":0,"ssmlText":"<speak/>"}]`},
		{"empty query", KindQueries, `[{"unitId":"s0000-b00000","sequenceIndex":0,"ssmlText":""}]`},
		{"jobs without metadata", KindJobs, `[{"unitId":"s0000-b00000","sequenceIndex":0,"ssmlText":"x"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".json")
			if err := os.WriteFile(path, []byte(tt.body), 0644); err != nil {
				t.Fatal(err)
			}
			var v any
			err := Read(path, tt.kind, &v)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Path != path {
				t.Errorf("expected path %s, got %s", path, ve.Path)
			}
		})
	}
}
