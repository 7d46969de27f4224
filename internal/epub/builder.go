package epub

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/narrate/internal/book"
)

// Book holds the package metadata written by Builder.
type Book struct {
	Title       string
	Author      string
	Language    string // ISO 639-1 code (e.g., "en")
	Publisher   string
	ISBN        string
	Series      string
	SeriesIndex string
	Description string
	Modified    time.Time
}

// Block is one block-level element of a chapter.
type Block struct {
	Role book.Role
	Text string
	ID   string // optional element id
}

// Chapter is one spine document written by Builder.
type Chapter struct {
	ID     string // manifest id and file name (e.g., "ch1")
	Title  string // TOC label
	Level  int    // 1 = top level, 2 = nested under the previous level 1 entry
	Anchor string // optional TOC fragment
	Blocks []Block
	// Body replaces Blocks with raw XHTML body content when set.
	Body string
	// NoTOC keeps the chapter in the spine but out of the navigation.
	NoTOC bool
}

// Builder writes EPUB 3 containers. It is used to produce sample books and
// test fixtures for the interpreter.
type Builder struct {
	book      Book
	chapters  []Chapter
	ncxOnly   bool
	cover     []byte
	coverType string
}

// NewBuilder creates a new epub builder.
func NewBuilder(b Book, chapters []Chapter) *Builder {
	return &Builder{
		book:     b,
		chapters: chapters,
	}
}

// NCXOnly omits the EPUB 3 navigation document so readers fall back to the
// legacy NCX.
func (b *Builder) NCXOnly() *Builder {
	b.ncxOnly = true
	return b
}

// SetCover embeds a cover image.
func (b *Builder) SetCover(data []byte, mediaType string) *Builder {
	b.cover = data
	b.coverType = mediaType
	return b
}

// Build generates the epub and writes it to the specified path.
func (b *Builder) Build(outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer f.Close()

	return b.WriteTo(f)
}

// WriteTo writes the epub to a writer.
func (b *Builder) WriteTo(w io.Writer) error {
	zw := zip.NewWriter(w)

	// mimetype must be first and stored uncompressed
	header := &zip.FileHeader{Name: "mimetype", Method: zip.Store}
	mw, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to create mimetype: %w", err)
	}
	if _, err := mw.Write([]byte(mimetypeEPUB)); err != nil {
		return err
	}

	files := []struct {
		name    string
		content string
	}{
		{containerEntry, containerDocument},
		{"OEBPS/content.opf", b.generatePackage()},
		{"OEBPS/toc.ncx", b.generateNCX()},
	}
	if !b.ncxOnly {
		files = append(files, struct {
			name    string
			content string
		}{"OEBPS/nav.xhtml", b.generateNavigation()})
	}
	for _, ch := range b.chapters {
		files = append(files, struct {
			name    string
			content string
		}{"OEBPS/" + chapterHref(ch), b.generateChapterXHTML(ch)})
	}

	for _, f := range files {
		if err := writeEntry(zw, f.name, []byte(f.content)); err != nil {
			return err
		}
	}
	if b.cover != nil {
		if err := writeEntry(zw, "OEBPS/images/cover"+b.coverExt(), b.cover); err != nil {
			return err
		}
	}
	return zw.Close()
}

func writeEntry(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// BuildToBuffer generates the epub and returns it as a byte buffer.
func (b *Builder) BuildToBuffer() (*bytes.Buffer, error) {
	buf := new(bytes.Buffer)
	if err := b.WriteTo(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// identifier is stable for a given title so rebuilding a sample yields the
// same package.
func (b *Builder) identifier() string {
	if b.book.ISBN != "" {
		return "urn:isbn:" + b.book.ISBN
	}
	return "urn:uuid:" + uuid.NewSHA1(uuid.NameSpaceURL, []byte("narrate:"+b.book.Title)).String()
}

func (b *Builder) coverExt() string {
	return coverExtension(book.ManifestEntry{MediaType: b.coverType})
}

func chapterHref(ch Chapter) string {
	return fmt.Sprintf("text/%s.xhtml", ch.ID)
}

const containerDocument = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`
