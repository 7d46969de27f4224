package epub

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/jackzampolin/narrate/internal/book"
)

const (
	// DefaultMaxEntrySize bounds the uncompressed size of a single entry.
	DefaultMaxEntrySize int64 = 64 << 20
	// DefaultMaxEntries bounds the number of entries in the container.
	DefaultMaxEntries = 20000

	mimetypeEPUB = "application/epub+zip"
)

// archive is a size-limited view over the EPUB zip container.
type archive struct {
	name     string
	zr       *zip.Reader
	files    map[string]*zip.File
	folded   map[string]*zip.File
	maxEntry int64
}

func openArchive(r io.ReaderAt, size int64, name string, opts Options) (*archive, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, &book.StructuralError{Kind: book.ErrUnsupportedContainer, Path: name,
			Detail: fmt.Sprintf("not a zip archive: %v", err)}
	}
	if len(zr.File) > opts.MaxEntries {
		return nil, &book.StructuralError{Kind: book.ErrUnsupportedContainer, Path: name,
			Detail: fmt.Sprintf("%d entries exceeds limit of %d", len(zr.File), opts.MaxEntries)}
	}

	a := &archive{
		name:     name,
		zr:       zr,
		files:    make(map[string]*zip.File, len(zr.File)),
		folded:   make(map[string]*zip.File, len(zr.File)),
		maxEntry: opts.MaxEntrySize,
	}
	for _, f := range zr.File {
		a.files[f.Name] = f
		a.folded[strings.ToLower(f.Name)] = f
	}
	return a, nil
}

// lookup finds an entry by exact name, falling back to a case-insensitive
// match since some producers disagree with their own manifests on case.
func (a *archive) lookup(name string) (*zip.File, bool) {
	if f, ok := a.files[name]; ok {
		return f, true
	}
	f, ok := a.folded[strings.ToLower(name)]
	return f, ok
}

func (a *archive) has(name string) bool {
	_, ok := a.lookup(name)
	return ok
}

// read returns the entry's bytes, refusing entries larger than maxEntry.
func (a *archive) read(name string) ([]byte, error) {
	f, ok := a.lookup(name)
	if !ok {
		return nil, &book.StructuralError{Kind: book.ErrDanglingReference, Path: name,
			Detail: "entry not found in container"}
	}
	if int64(f.UncompressedSize64) > a.maxEntry {
		return nil, &book.StructuralError{Kind: book.ErrUnsupportedContainer, Path: name,
			Detail: fmt.Sprintf("entry of %d bytes exceeds limit of %d", f.UncompressedSize64, a.maxEntry)}
	}

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer rc.Close()

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(rc, a.maxEntry+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	// The declared size can lie; enforce the limit on what was inflated.
	if n > a.maxEntry {
		return nil, &book.StructuralError{Kind: book.ErrUnsupportedContainer, Path: name,
			Detail: fmt.Sprintf("entry inflates beyond limit of %d", a.maxEntry)}
	}
	return buf.Bytes(), nil
}
