// Package finalize joins the SSML query stream with mapped metadata and the
// table of contents into an ordered list of synthesis jobs.
//
// Finalization is the only place the two independently derived streams meet,
// so every structural mismatch between them is reported here as a fatal
// error rather than repaired.
package finalize

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/jackzampolin/narrate/internal/book"
	"github.com/jackzampolin/narrate/internal/metadata"
	"github.com/jackzampolin/narrate/internal/ssml"
)

// Genre is written to every track's tags.
const Genre = "Audiobook"

// DefaultPreTOCLabel names the chapter of units ahead of the first TOC entry.
const DefaultPreTOCLabel = "Pre Table of Contents"

// DefaultUnreadableWords mark front and back matter that is rarely narrated.
var DefaultUnreadableWords = []string{
	"contents", "copyright", "insert", "title", "cover", "newsletter", "illustrations", "j-novel",
}

// Options configures Finalize.
type Options struct {
	// PerParagraphTracks gives every content unit its own track.
	PerParagraphTracks bool
	// NestedLabels joins ancestor TOC labels into the track title.
	NestedLabels bool
	// SkipUnreadable excludes short chapters whose label matches
	// UnreadableWords.
	SkipUnreadable     bool
	UnreadableWords    []string
	MinReadableQueries int
	// PreTOCLabel names the chapter holding units before the first TOC
	// entry. Defaults to DefaultPreTOCLabel.
	PreTOCLabel string
	// StrictTOC rejects units before the first TOC entry as orphans.
	StrictTOC bool
	// SpineChapters uses spine documents as chapters even when the book
	// has a table of contents.
	SpineChapters bool
	// TagTarget is the mapped document copied into each job's tags.
	TagTarget string
	Logger    *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.UnreadableWords == nil {
		o.UnreadableWords = DefaultUnreadableWords
	}
	if o.MinReadableQueries <= 0 {
		o.MinReadableQueries = 3
	}
	if o.TagTarget == "" {
		o.TagTarget = metadata.TargetID3
	}
	if o.PreTOCLabel == "" {
		o.PreTOCLabel = DefaultPreTOCLabel
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// ResolvedMetadata is the per-job metadata.
type ResolvedMetadata struct {
	TrackNumber  int               `json:"trackNumber"`
	TrackTotal   int               `json:"trackTotal,omitempty"`
	TrackTitle   string            `json:"trackTitle"`
	ChapterLabel string            `json:"chapterLabel"`
	ChapterPath  []string          `json:"chapterPath,omitempty"`
	Tags         map[string]string `json:"tags,omitempty"`
}

// Job is one finalized unit of synthesis work.
type Job struct {
	UnitID           string           `json:"unitId"`
	SequenceIndex    int              `json:"sequenceIndex"`
	SSMLText         string           `json:"ssmlText"`
	BilledChars      int              `json:"billedChars"`
	ResolvedMetadata ResolvedMetadata `json:"resolvedMetadata"`
	Unresolved       bool             `json:"unresolved,omitempty"`
	Excluded         bool             `json:"excluded,omitempty"`
	Error            string           `json:"error,omitempty"`
}

// Synthesizable reports whether the job should be sent to a provider.
func (j Job) Synthesizable() bool {
	return !j.Unresolved && !j.Excluded
}

// Result is the finalized job list plus counts for reporting.
type Result struct {
	Jobs       []Job
	Tracks     int
	Excluded   int
	Unresolved int
}

// chapter is a run of jobs under one boundary.
type chapter struct {
	boundary Boundary
	jobs     []int
	units    int
}

// Finalize merges queries with the book's chapter structure and the mapped
// metadata. It emits exactly one job per query, in query order.
func Finalize(b *book.GeneralBook, mapped *metadata.Mapped, queries []ssml.Query, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	logger := opts.Logger

	tagDoc := mapped.Target(opts.TagTarget)
	if tagDoc == nil {
		return nil, fmt.Errorf("%w: mapped metadata has no %q target", book.ErrMissingRequiredMetadata, opts.TagTarget)
	}

	units := b.UnitIndex()
	bounds := Boundaries(b, logger)
	if opts.SpineChapters {
		bounds = spineBoundaries(b)
	}

	res := &Result{Jobs: make([]Job, 0, len(queries))}
	var chapters []*chapter
	current := -2
	lastUnit := ""

	for _, q := range queries {
		if _, ok := units[q.UnitID]; !ok {
			return nil, &book.StructuralError{Kind: book.ErrOrphanQuery, UnitID: q.UnitID, Detail: "unit not in book"}
		}
		pos, err := book.ParseUnitID(q.UnitID)
		if err != nil {
			return nil, &book.StructuralError{Kind: book.ErrOrphanQuery, UnitID: q.UnitID, Detail: err.Error()}
		}

		bi := locate(bounds, pos)
		if bi < 0 && opts.StrictTOC {
			return nil, &book.StructuralError{Kind: book.ErrOrphanQuery, UnitID: q.UnitID, Detail: "before first chapter"}
		}
		if bi != current {
			bd := Boundary{Node: -1, Label: opts.PreTOCLabel, Path: []string{opts.PreTOCLabel}}
			if bi >= 0 {
				bd = bounds[bi]
			}
			chapters = append(chapters, &chapter{boundary: bd})
			current = bi
			lastUnit = ""
		}
		ch := chapters[len(chapters)-1]
		if q.UnitID != lastUnit {
			ch.units++
			lastUnit = q.UnitID
		}

		ch.jobs = append(ch.jobs, len(res.Jobs))
		res.Jobs = append(res.Jobs, Job{
			UnitID:        q.UnitID,
			SequenceIndex: q.SequenceIndex,
			SSMLText:      q.SSMLText,
			BilledChars:   q.BilledChars,
			Unresolved:    q.Unresolved,
			Error:         q.Error,
		})
	}

	if err := CheckOrder(res.Jobs); err != nil {
		return nil, err
	}

	track := 0
	for _, ch := range chapters {
		excluded := opts.SkipUnreadable &&
			len(ch.jobs) < opts.MinReadableQueries &&
			matchesAny(ch.boundary.Label, opts.UnreadableWords)
		if excluded {
			logger.Info("excluding chapter", "label", ch.boundary.Label, "queries", len(ch.jobs))
		}

		title := ch.boundary.Label
		if opts.NestedLabels && len(ch.boundary.Path) > 0 {
			title = strings.Join(ch.boundary.Path, ": ")
		}

		if !excluded && !opts.PerParagraphTracks {
			track++
		}
		part := 0
		prevUnit := ""
		for _, ji := range ch.jobs {
			job := &res.Jobs[ji]
			job.ResolvedMetadata = ResolvedMetadata{
				TrackTitle:   title,
				ChapterLabel: ch.boundary.Label,
				ChapterPath:  ch.boundary.Path,
			}
			if excluded {
				job.Excluded = true
				res.Excluded++
				continue
			}
			if opts.PerParagraphTracks && job.UnitID != prevUnit {
				track++
				part++
				prevUnit = job.UnitID
			}
			if opts.PerParagraphTracks && ch.units > 1 {
				job.ResolvedMetadata.TrackTitle = fmt.Sprintf("%s (%d)", title, part)
			}
			job.ResolvedMetadata.TrackNumber = track
			if job.Unresolved {
				res.Unresolved++
			}
		}
	}
	res.Tracks = track

	for i := range res.Jobs {
		job := &res.Jobs[i]
		if job.Excluded {
			continue
		}
		job.ResolvedMetadata.TrackTotal = track
		job.ResolvedMetadata.Tags = tagsFor(tagDoc, job.ResolvedMetadata)
	}

	logger.Info("finalized jobs",
		"jobs", len(res.Jobs),
		"tracks", res.Tracks,
		"excluded", res.Excluded,
		"unresolved", res.Unresolved)
	return res, nil
}

// CheckOrder verifies jobs are strictly increasing in (spine, block,
// sequence).
func CheckOrder(jobs []Job) error {
	var prev book.Position
	prevSeq := -1
	for i, j := range jobs {
		pos, err := book.ParseUnitID(j.UnitID)
		if err != nil {
			return &book.StructuralError{Kind: book.ErrInconsistentOrder, UnitID: j.UnitID, Detail: err.Error()}
		}
		if i > 0 {
			c := prev.Compare(pos)
			if c > 0 || (c == 0 && j.SequenceIndex <= prevSeq) {
				return &book.StructuralError{
					Kind:   book.ErrInconsistentOrder,
					UnitID: j.UnitID,
					Detail: fmt.Sprintf("job %d (sequence %d) follows %s (sequence %d)", i, j.SequenceIndex, prev.ID(), prevSeq),
				}
			}
		}
		prev, prevSeq = pos, j.SequenceIndex
	}
	return nil
}

func tagsFor(doc *metadata.Document, md ResolvedMetadata) map[string]string {
	tags := make(map[string]string, len(doc.Fields)+3)
	for k, v := range doc.Fields {
		tags[k] = v
	}
	tags["TITLE"] = md.TrackTitle
	tags["TRACK"] = strconv.Itoa(md.TrackNumber) + "/" + strconv.Itoa(md.TrackTotal)
	tags["GENRE"] = Genre
	return tags
}

func matchesAny(label string, words []string) bool {
	l := strings.ToLower(label)
	for _, w := range words {
		if w != "" && strings.Contains(l, strings.ToLower(w)) {
			return true
		}
	}
	return false
}
