package epub

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/jackzampolin/narrate/internal/book"
)

// ErrNoCover is returned when the book declares no usable cover image.
var ErrNoCover = errors.New("no cover image")

// CoverEntry picks the cover image: the declared cover first, then the first
// image in the manifest.
func CoverEntry(b *book.GeneralBook) (book.ManifestEntry, error) {
	for _, id := range b.Metadata[book.KeyCover] {
		if e, ok := b.ManifestEntry(id); ok && strings.HasPrefix(e.MediaType, "image/") {
			return e, nil
		}
	}
	for _, e := range b.Manifest {
		if strings.HasPrefix(e.MediaType, "image/") {
			return e, nil
		}
	}
	return book.ManifestEntry{}, ErrNoCover
}

// ExtractCover copies the cover image of the EPUB at epubPath into dir as
// cover<ext> and returns the written path.
func ExtractCover(epubPath string, b *book.GeneralBook, dir string, opts Options) (string, error) {
	entry, err := CoverEntry(b)
	if err != nil {
		return "", err
	}

	f, err := os.Open(epubPath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", epubPath, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", epubPath, err)
	}

	a, err := openArchive(f, info.Size(), epubPath, opts.withDefaults())
	if err != nil {
		return "", err
	}
	data, err := a.read(entry.SourcePath)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create cover directory: %w", err)
	}
	out := filepath.Join(dir, "cover"+coverExtension(entry))
	if err := os.WriteFile(out, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write cover: %w", err)
	}
	return out, nil
}

// coverExtension returns the file extension for a cover image.
func coverExtension(e book.ManifestEntry) string {
	switch e.MediaType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/svg+xml":
		return ".svg"
	}
	if ext := path.Ext(e.SourcePath); ext != "" {
		return strings.ToLower(ext)
	}
	return ".img"
}
