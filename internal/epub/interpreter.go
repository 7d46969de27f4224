package epub

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/jackzampolin/narrate/internal/book"
)

// Options bounds and instruments interpretation.
type Options struct {
	MaxEntrySize int64
	MaxEntries   int
	// Concurrency caps parallel document flattening. Zero uses GOMAXPROCS.
	Concurrency int
	Logger      *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.MaxEntrySize <= 0 {
		o.MaxEntrySize = DefaultMaxEntrySize
	}
	if o.MaxEntries <= 0 {
		o.MaxEntries = DefaultMaxEntries
	}
	if o.Concurrency <= 0 {
		o.Concurrency = runtime.GOMAXPROCS(0)
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Interpret parses the EPUB at path into a GeneralBook.
func Interpret(ctx context.Context, path string, opts Options) (*book.GeneralBook, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return InterpretReader(ctx, f, info.Size(), path, opts)
}

// InterpretReader parses an EPUB held in r. name is used in errors and logs.
func InterpretReader(ctx context.Context, r io.ReaderAt, size int64, name string, opts Options) (*book.GeneralBook, error) {
	opts = opts.withDefaults()
	logger := opts.Logger.With("epub", name)

	a, err := openArchive(r, size, name, opts)
	if err != nil {
		return nil, err
	}
	if err := checkMimetype(a, logger); err != nil {
		return nil, err
	}

	opfPath, err := findPackage(a)
	if err != nil {
		return nil, err
	}
	data, err := a.read(opfPath)
	if err != nil {
		return nil, &book.StructuralError{Kind: book.ErrUnsupportedContainer, Path: opfPath,
			Detail: "package document not found"}
	}
	pkg, err := parsePackage(data, opfPath)
	if err != nil {
		return nil, err
	}

	b := book.New()
	readMetadata(pkg, b.Metadata)
	if !b.Metadata.Has(book.KeyTitle) {
		return nil, fmt.Errorf("%w: title (%s)", book.ErrMissingRequiredMetadata, opfPath)
	}

	byPath := make(map[string]string, len(pkg.Manifest))
	for _, item := range pkg.Manifest {
		src, _ := resolveHref(opfPath, item.Href)
		b.Manifest = append(b.Manifest, book.ManifestEntry{
			ID:         item.ID,
			MediaType:  item.MediaType,
			SourcePath: src,
			Properties: item.Properties,
		})
		byPath[src] = item.ID
	}

	for i, ref := range pkg.Spine.Itemrefs {
		if _, ok := b.ManifestEntry(ref.IDRef); !ok {
			return nil, &book.StructuralError{Kind: book.ErrMalformedSpine, Path: opfPath,
				Detail: fmt.Sprintf("itemref %d references unknown manifest id %q", i, ref.IDRef)}
		}
		b.Spine = append(b.Spine, ref.IDRef)
	}

	if err := readTOC(a, b, pkg, byPath, logger); err != nil {
		return nil, err
	}

	if err := readContent(ctx, a, b, opts, logger); err != nil {
		return nil, err
	}

	if err := b.Validate(); err != nil {
		return nil, err
	}

	logger.Info("interpreted epub",
		"title", b.Metadata.First(book.KeyTitle),
		"spine", len(b.Spine),
		"toc_entries", b.TOC.Len(),
		"units", len(b.Content))
	return b, nil
}

func checkMimetype(a *archive, logger *slog.Logger) error {
	if !a.has("mimetype") {
		logger.Warn("container has no mimetype entry")
		return nil
	}
	data, err := a.read("mimetype")
	if err != nil {
		return err
	}
	if got := strings.TrimSpace(string(data)); got != mimetypeEPUB {
		return &book.StructuralError{Kind: book.ErrUnsupportedContainer, Path: "mimetype",
			Detail: fmt.Sprintf("unexpected mimetype %q", got)}
	}
	return nil
}

// readTOC prefers the EPUB3 navigation document and falls back to the NCX.
func readTOC(a *archive, b *book.GeneralBook, pkg *opfPackage, byPath map[string]string, logger *slog.Logger) error {
	var entries []navEntry

	for _, e := range b.Manifest {
		if !hasProperty(e.Properties, "nav") {
			continue
		}
		data, err := a.read(e.SourcePath)
		if err != nil {
			logger.Warn("navigation document unreadable", "path", e.SourcePath, "error", err)
			break
		}
		entries, err = parseNavDocument(data, e.SourcePath, e.MediaType)
		if err != nil {
			logger.Warn("navigation document invalid", "path", e.SourcePath, "error", err)
		}
		break
	}

	if len(entries) == 0 {
		ncx := ncxEntry(b, pkg)
		if ncx != nil {
			data, err := a.read(ncx.SourcePath)
			if err != nil {
				logger.Warn("ncx unreadable", "path", ncx.SourcePath, "error", err)
			} else if entries, err = parseNCX(data, ncx.SourcePath); err != nil {
				logger.Warn("ncx invalid", "path", ncx.SourcePath, "error", err)
			}
		}
	}

	if len(entries) == 0 {
		logger.Warn("book has no table of contents")
		return nil
	}
	buildTOC(&b.TOC, entries, byPath, logger)
	return nil
}

func ncxEntry(b *book.GeneralBook, pkg *opfPackage) *book.ManifestEntry {
	if pkg.Spine.TOC != "" {
		if e, ok := b.ManifestEntry(pkg.Spine.TOC); ok {
			return &e
		}
	}
	for _, e := range b.Manifest {
		if e.MediaType == mediaTypeNCX {
			return &e
		}
	}
	return nil
}

// readContent flattens spine documents in parallel and assembles their units
// in spine order.
func readContent(ctx context.Context, a *archive, b *book.GeneralBook, opts Options, logger *slog.Logger) error {
	perDoc := make([][]block, len(b.Spine))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for i, id := range b.Spine {
		entry, _ := b.ManifestEntry(id)
		if !entry.IsMarkup() {
			logger.Debug("skipping non-markup spine item", "spine_index", i, "id", id, "media_type", entry.MediaType)
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := a.read(entry.SourcePath)
			if err != nil {
				return err
			}
			blocks, err := flattenDocument(data, entry.MediaType)
			if err != nil {
				return &book.StructuralError{Kind: book.ErrUnsupportedContainer, Path: entry.SourcePath,
					Detail: err.Error()}
			}
			perDoc[i] = blocks
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, blocks := range perDoc {
		for j, blk := range blocks {
			b.Content = append(b.Content, book.ContentUnit{
				UnitID:  book.UnitID(i, j),
				Text:    blk.text,
				Role:    blk.role,
				Anchors: blk.anchors,
			})
		}
		if len(blocks) == 0 {
			logger.Debug("spine document has no narratable blocks", "spine_index", i, "id", b.Spine[i])
		}
	}
	return nil
}

// InterpretBytes parses an EPUB held in memory.
func InterpretBytes(ctx context.Context, data []byte, name string, opts Options) (*book.GeneralBook, error) {
	return InterpretReader(ctx, bytes.NewReader(data), int64(len(data)), name, opts)
}
