package pipeline

import (
	"path/filepath"
	"sync"

	"github.com/jackzampolin/narrate/internal/book"
	"github.com/jackzampolin/narrate/internal/finalize"
	"github.com/jackzampolin/narrate/internal/metadata"
	"github.com/jackzampolin/narrate/internal/ssml"
	"github.com/jackzampolin/narrate/internal/synth"
)

// Book carries one EPUB through the pipeline. Stages in the same level run
// concurrently, so every field is guarded.
type Book struct {
	// Source is the EPUB being narrated.
	Source string
	// Dir receives every artifact and the audio.
	Dir string

	mu      sync.RWMutex
	general *book.GeneralBook
	queries []ssml.Query
	mapped  *metadata.Mapped
	jobs    []finalize.Job
	report  *synth.Report
}

// NewBook creates pipeline state for source writing into dir.
func NewBook(source, dir string) *Book {
	return &Book{Source: source, Dir: dir}
}

// Path returns name resolved against the book directory.
func (b *Book) Path(name string) string {
	return filepath.Join(b.Dir, name)
}

func (b *Book) General() *book.GeneralBook {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.general
}

func (b *Book) SetGeneral(g *book.GeneralBook) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.general = g
}

func (b *Book) Queries() []ssml.Query {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.queries
}

func (b *Book) SetQueries(q []ssml.Query) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queries = q
}

func (b *Book) Mapped() *metadata.Mapped {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.mapped
}

func (b *Book) SetMapped(m *metadata.Mapped) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mapped = m
}

func (b *Book) Jobs() []finalize.Job {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.jobs
}

func (b *Book) SetJobs(j []finalize.Job) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.jobs = j
}

func (b *Book) Report() *synth.Report {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.report
}

func (b *Book) SetReport(r *synth.Report) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.report = r
}
