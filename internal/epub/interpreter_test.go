package epub

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jackzampolin/narrate/internal/book"
)

func threeChapterBuilder() *Builder {
	var chapters []Chapter
	for i, id := range []string{"ch1", "ch2", "ch3"} {
		chapters = append(chapters, Chapter{
			ID:    id,
			Title: "Chapter " + string(rune('1'+i)),
			Level: 1,
			Blocks: []Block{
				{Role: book.RoleParagraph, Text: "First paragraph of " + id + "."},
				{Role: book.RoleParagraph, Text: "Second paragraph of " + id + "."},
			},
		})
	}
	return NewBuilder(Book{Title: "Three Chapters", Author: "A. Writer"}, chapters)
}

func buildBytes(t *testing.T, b *Builder) []byte {
	t.Helper()
	buf, err := b.BuildToBuffer()
	if err != nil {
		t.Fatalf("build epub: %v", err)
	}
	return buf.Bytes()
}

func writeZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestInterpretThreeChapters(t *testing.T) {
	data := buildBytes(t, threeChapterBuilder())

	b, err := InterpretBytes(context.Background(), data, "three.epub", Options{})
	if err != nil {
		t.Fatalf("interpret: %v", err)
	}

	if got := b.Metadata.First(book.KeyTitle); got != "Three Chapters" {
		t.Errorf("expected title, got %q", got)
	}
	if got := b.Metadata.First(book.KeyCreator); got != "A. Writer" {
		t.Errorf("expected creator, got %q", got)
	}
	if len(b.Spine) != 3 || b.Spine[0] != "ch1" || b.Spine[2] != "ch3" {
		t.Fatalf("unexpected spine %v", b.Spine)
	}

	want := []book.Position{{Spine: 0, Block: 0}, {Spine: 0, Block: 1}, {Spine: 1, Block: 0}, {Spine: 1, Block: 1}, {Spine: 2, Block: 0}, {Spine: 2, Block: 1}}
	if len(b.Content) != len(want) {
		t.Fatalf("expected %d units, got %d", len(want), len(b.Content))
	}
	for i, u := range b.Content {
		pos, err := book.ParseUnitID(u.UnitID)
		if err != nil {
			t.Fatalf("unit %d: %v", i, err)
		}
		if pos != want[i] {
			t.Errorf("unit %d: expected %+v, got %+v", i, want[i], pos)
		}
		if u.Role != book.RoleParagraph {
			t.Errorf("unit %d: expected paragraph, got %s", i, u.Role)
		}
	}
	if b.Content[3].Text != "Second paragraph of ch2." {
		t.Errorf("unexpected text %q", b.Content[3].Text)
	}

	nodes := b.TOC.Preorder()
	if len(nodes) != 3 {
		t.Fatalf("expected 3 toc entries, got %d", len(nodes))
	}
	for i, id := range nodes {
		n := b.TOC.Node(id)
		if n.TargetID != b.Spine[i] {
			t.Errorf("toc %d: expected target %s, got %s", i, b.Spine[i], n.TargetID)
		}
	}
	if entry, ok := b.ManifestEntry("ch2"); !ok || entry.SourcePath != "OEBPS/text/ch2.xhtml" {
		t.Errorf("unexpected manifest entry %+v", entry)
	}
}

func TestInterpretDeterministic(t *testing.T) {
	data := buildBytes(t, threeChapterBuilder())

	first, err := InterpretBytes(context.Background(), data, "a.epub", Options{})
	if err != nil {
		t.Fatal(err)
	}
	second, err := InterpretBytes(context.Background(), data, "a.epub", Options{Concurrency: 1})
	if err != nil {
		t.Fatal(err)
	}
	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if !bytes.Equal(a, b) {
		t.Error("interpreting the same epub twice produced different books")
	}
}

func TestInterpretNCXFallback(t *testing.T) {
	builder := threeChapterBuilder().NCXOnly()
	b, err := InterpretBytes(context.Background(), buildBytes(t, builder), "legacy.epub", Options{})
	if err != nil {
		t.Fatalf("interpret: %v", err)
	}
	if b.TOC.Len() != 3 {
		t.Fatalf("expected 3 toc entries from ncx, got %d", b.TOC.Len())
	}
	if n := b.TOC.Node(b.TOC.Preorder()[1]); n.Label != "Chapter 2" || n.TargetID != "ch2" {
		t.Errorf("unexpected ncx node %+v", n)
	}
}

func TestInterpretNestedTOC(t *testing.T) {
	chapters := []Chapter{
		{ID: "part1", Title: "Part One", Level: 1, Blocks: []Block{{Role: book.RoleHeading, Text: "Part One"}}},
		{ID: "c1", Title: "Beginning", Level: 2, Blocks: []Block{{Role: book.RoleParagraph, Text: "It began."}}},
		{ID: "c2", Title: "Middle", Level: 2, Anchor: "mid", Blocks: []Block{
			{Role: book.RoleParagraph, Text: "Lead in."},
			{Role: book.RoleHeading, Text: "Middle", ID: "mid"},
		}},
	}
	for _, ncx := range []bool{false, true} {
		builder := NewBuilder(Book{Title: "Nested"}, chapters)
		if ncx {
			builder.NCXOnly()
		}
		b, err := InterpretBytes(context.Background(), buildBytes(t, builder), "nested.epub", Options{})
		if err != nil {
			t.Fatalf("interpret (ncx=%v): %v", ncx, err)
		}
		nodes := b.TOC.Preorder()
		if len(nodes) != 3 {
			t.Fatalf("ncx=%v: expected 3 nodes, got %d", ncx, len(nodes))
		}
		if b.TOC.Depth(nodes[2]) != 2 {
			t.Errorf("ncx=%v: expected nested depth 2", ncx)
		}
		if n := b.TOC.Node(nodes[2]); n.Fragment != "mid" {
			t.Errorf("ncx=%v: expected fragment mid, got %q", ncx, n.Fragment)
		}
		if got := b.Content[len(b.Content)-1].Anchors; len(got) != 1 || got[0] != "mid" {
			t.Errorf("ncx=%v: expected anchor on heading, got %v", ncx, got)
		}
	}
}

func TestInterpretMetadata(t *testing.T) {
	builder := NewBuilder(Book{
		Title:       "Series Book",
		Author:      "Someone",
		ISBN:        "978-0-306-40615-7",
		Series:      "The Saga",
		SeriesIndex: "2",
	}, threeChapterBuilder().chapters).SetCover([]byte("\x89PNGfake"), "image/png")

	data := buildBytes(t, builder)
	b, err := InterpretBytes(context.Background(), data, "series.epub", Options{})
	if err != nil {
		t.Fatalf("interpret: %v", err)
	}

	checks := map[string]string{
		book.KeySeries:      "The Saga",
		book.KeySeriesIndex: "2",
		book.KeyISBN:        "9780306406157",
		book.KeyLanguage:    "en",
		book.KeyCover:       "cover-image",
		book.KeyModified:    "2000-01-01T00:00:00Z",
	}
	for key, want := range checks {
		if got := b.Metadata.First(key); got != want {
			t.Errorf("%s: expected %q, got %q", key, want, got)
		}
	}

	t.Run("extract cover", func(t *testing.T) {
		dir := t.TempDir()
		epubPath := filepath.Join(dir, "series.epub")
		if err := os.WriteFile(epubPath, data, 0644); err != nil {
			t.Fatal(err)
		}
		out, err := ExtractCover(epubPath, b, filepath.Join(dir, "art"), Options{})
		if err != nil {
			t.Fatalf("extract cover: %v", err)
		}
		if filepath.Base(out) != "cover.png" {
			t.Errorf("unexpected cover path %s", out)
		}
		got, _ := os.ReadFile(out)
		if string(got) != "\x89PNGfake" {
			t.Errorf("unexpected cover bytes %q", got)
		}
	})
}

func TestInterpretErrors(t *testing.T) {
	container := `<?xml version="1.0"?><container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container"><rootfiles><rootfile full-path="content.opf" media-type="application/oebps-package+xml"/></rootfiles></container>`
	opf := func(title, spine string) string {
		return `<?xml version="1.0"?><package xmlns="http://www.idpf.org/2007/opf" version="3.0"><metadata xmlns:dc="http://purl.org/dc/elements/1.1/">` +
			title + `</metadata><manifest><item id="c1" href="c1.xhtml" media-type="application/xhtml+xml"/></manifest><spine>` +
			spine + `</spine></package>`
	}
	doc := `<html xmlns="http://www.w3.org/1999/xhtml"><body><p>Hi.</p></body></html>`

	tests := []struct {
		name string
		data []byte
		opts Options
		want error
	}{
		{"not a zip", []byte("plain text"), Options{}, book.ErrUnsupportedContainer},
		{"no container", writeZip(t, map[string]string{"mimetype": mimetypeEPUB}), Options{}, book.ErrUnsupportedContainer},
		{"wrong mimetype", writeZip(t, map[string]string{"mimetype": "application/zip"}), Options{}, book.ErrUnsupportedContainer},
		{"dangling spine", writeZip(t, map[string]string{
			"META-INF/container.xml": container,
			"content.opf":            opf("<dc:title>T</dc:title>", `<itemref idref="c1"/><itemref idref="ghost"/>`),
			"c1.xhtml":               doc,
		}), Options{}, book.ErrMalformedSpine},
		{"missing title", writeZip(t, map[string]string{
			"META-INF/container.xml": container,
			"content.opf":            opf("", `<itemref idref="c1"/>`),
			"c1.xhtml":               doc,
		}), Options{}, book.ErrMissingRequiredMetadata},
		{"entry too large", writeZip(t, map[string]string{
			"META-INF/container.xml": container,
			"content.opf":            opf("<dc:title>T</dc:title>", `<itemref idref="c1"/>`),
			"c1.xhtml":               doc,
		}), Options{MaxEntrySize: 64}, book.ErrUnsupportedContainer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := InterpretBytes(context.Background(), tt.data, tt.name+".epub", tt.opts)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	t.Run("dangling spine carries the package path", func(t *testing.T) {
		data := writeZip(t, map[string]string{
			"META-INF/container.xml": container,
			"content.opf":            opf("<dc:title>T</dc:title>", `<itemref idref="ghost"/>`),
		})
		_, err := InterpretBytes(context.Background(), data, "x.epub", Options{})
		var se *book.StructuralError
		if !errors.As(err, &se) || se.Path != "content.opf" {
			t.Fatalf("expected structural error at content.opf, got %v", err)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := InterpretBytes(ctx, buildBytes(t, threeChapterBuilder()), "c.epub", Options{})
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	})
}
