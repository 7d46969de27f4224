package finalize

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackzampolin/narrate/internal/book"
	"github.com/jackzampolin/narrate/internal/metadata"
	"github.com/jackzampolin/narrate/internal/ssml"
)

// testBook builds a book with one spine document per label and two
// paragraphs in each. The TOC is left to the caller.
func testBook(labels ...string) *book.GeneralBook {
	b := book.New()
	b.Metadata.Add(book.KeyTitle, "Test Book")
	for i := range labels {
		id := fmt.Sprintf("ch%d", i+1)
		b.Manifest = append(b.Manifest, book.ManifestEntry{
			ID:         id,
			MediaType:  "application/xhtml+xml",
			SourcePath: "OEBPS/" + id + ".xhtml",
		})
		b.Spine = append(b.Spine, id)
		for j := 0; j < 2; j++ {
			b.Content = append(b.Content, book.ContentUnit{
				UnitID: book.UnitID(i, j),
				Text:   fmt.Sprintf("Paragraph %d of chapter %d.", j+1, i+1),
				Role:   book.RoleParagraph,
			})
		}
	}
	return b
}

func flatTOC(b *book.GeneralBook, labels ...string) {
	for i, l := range labels {
		b.TOC.Add(book.RootNode, l, fmt.Sprintf("ch%d", i+1), "")
	}
}

func testMapped() *metadata.Mapped {
	return &metadata.Mapped{Targets: map[string]*metadata.Document{
		metadata.TargetID3: {
			Target: metadata.TargetID3,
			Fields: map[string]string{"TITLE": "Test Book", "ARTIST": "Ada Writer", "GENRE": "Fiction"},
			Order:  []string{"TITLE", "ARTIST", "GENRE"},
		},
	}}
}

func queriesFor(t *testing.T, b *book.GeneralBook) []ssml.Query {
	t.Helper()
	res, err := ssml.Generate(context.Background(), b, ssml.Options{})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	return res.Queries
}

func TestFinalizeThreeChapters(t *testing.T) {
	labels := []string{"Chapter 1", "Chapter 2", "Chapter 3"}
	b := testBook(labels...)
	flatTOC(b, labels...)
	queries := queriesFor(t, b)
	if len(queries) != 6 {
		t.Fatalf("expected 6 queries, got %d", len(queries))
	}

	res, err := Finalize(b, testMapped(), queries, Options{})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if len(res.Jobs) != 6 {
		t.Fatalf("expected 6 jobs, got %d", len(res.Jobs))
	}

	wantTracks := []int{1, 1, 2, 2, 3, 3}
	wantUnits := []string{
		book.UnitID(0, 0), book.UnitID(0, 1),
		book.UnitID(1, 0), book.UnitID(1, 1),
		book.UnitID(2, 0), book.UnitID(2, 1),
	}
	for i, job := range res.Jobs {
		if job.UnitID != wantUnits[i] {
			t.Errorf("job %d: expected unit %s, got %s", i, wantUnits[i], job.UnitID)
		}
		md := job.ResolvedMetadata
		if md.TrackNumber != wantTracks[i] {
			t.Errorf("job %d: expected track %d, got %d", i, wantTracks[i], md.TrackNumber)
		}
		if md.TrackTitle != labels[wantTracks[i]-1] || md.ChapterLabel != md.TrackTitle {
			t.Errorf("job %d: unexpected titles %+v", i, md)
		}
		if md.TrackTotal != 3 {
			t.Errorf("job %d: expected total 3, got %d", i, md.TrackTotal)
		}
		if md.Tags["TRACK"] != fmt.Sprintf("%d/3", wantTracks[i]) {
			t.Errorf("job %d: unexpected TRACK tag %q", i, md.Tags["TRACK"])
		}
		if md.Tags["TITLE"] != md.TrackTitle || md.Tags["GENRE"] != Genre || md.Tags["ARTIST"] != "Ada Writer" {
			t.Errorf("job %d: unexpected tags %v", i, md.Tags)
		}
	}
	if res.Tracks != 3 {
		t.Errorf("expected 3 tracks, got %d", res.Tracks)
	}
}

func TestFinalizeNestedTOC(t *testing.T) {
	b := testBook("a", "b")
	b.Content[1].Anchors = []string{"mid"}

	part := b.TOC.Add(book.RootNode, "Part One", "ch1", "")
	b.TOC.Add(part, "Opening", "ch1", "")
	b.TOC.Add(part, "Middle", "ch1", "mid")
	b.TOC.Add(book.RootNode, "Part Two", "", "")
	b.TOC.Add(b.TOC.Len(), "Closing", "ch2", "")

	res, err := Finalize(b, testMapped(), queriesFor(t, b), Options{NestedLabels: true})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}

	want := []struct {
		track int
		title string
		label string
	}{
		{1, "Part One: Opening", "Opening"},
		{2, "Part One: Middle", "Middle"},
		{3, "Part Two: Closing", "Closing"},
		{3, "Part Two: Closing", "Closing"},
	}
	for i, w := range want {
		md := res.Jobs[i].ResolvedMetadata
		if md.TrackNumber != w.track || md.TrackTitle != w.title || md.ChapterLabel != w.label {
			t.Errorf("job %d: expected %+v, got %+v", i, w, md)
		}
	}
}

func TestBoundariesFallback(t *testing.T) {
	b := testBook("a", "b")
	b.Content[0].Role = book.RoleHeading
	b.Content[0].Text = "Prologue"

	bounds := Boundaries(b, nil)
	if len(bounds) != 2 {
		t.Fatalf("expected one boundary per spine document, got %+v", bounds)
	}
	if bounds[0].Label != "Prologue" || bounds[1].Label != "Section 2" {
		t.Errorf("unexpected labels %q %q", bounds[0].Label, bounds[1].Label)
	}
}

func TestFinalizeOrphans(t *testing.T) {
	t.Run("unknown unit", func(t *testing.T) {
		b := testBook("One")
		flatTOC(b, "One")
		queries := append(queriesFor(t, b), ssml.Query{UnitID: book.UnitID(5, 0), SSMLText: "<speak/>"})
		_, err := Finalize(b, testMapped(), queries, Options{})
		if !errors.Is(err, book.ErrOrphanQuery) {
			t.Fatalf("expected ErrOrphanQuery, got %v", err)
		}
		var se *book.StructuralError
		if !errors.As(err, &se) || se.UnitID != book.UnitID(5, 0) {
			t.Errorf("error should name the unit: %v", err)
		}
	})

	t.Run("before first chapter", func(t *testing.T) {
		b := testBook("Front", "One")
		b.TOC.Add(book.RootNode, "One", "ch2", "")
		_, err := Finalize(b, testMapped(), queriesFor(t, b), Options{StrictTOC: true})
		if !errors.Is(err, book.ErrOrphanQuery) {
			t.Fatalf("expected ErrOrphanQuery, got %v", err)
		}
	})

	t.Run("pre toc label", func(t *testing.T) {
		b := testBook("Front", "One")
		b.TOC.Add(book.RootNode, "One", "ch2", "")
		res, err := Finalize(b, testMapped(), queriesFor(t, b), Options{PreTOCLabel: "Introduction"})
		if err != nil {
			t.Fatal(err)
		}
		first := res.Jobs[0].ResolvedMetadata
		if first.TrackNumber != 1 || first.TrackTitle != "Introduction" {
			t.Errorf("unexpected pre-toc metadata %+v", first)
		}
		if res.Jobs[2].ResolvedMetadata.TrackNumber != 2 {
			t.Errorf("expected chapter One on track 2")
		}
	})
}

func TestFinalizeFrontMatterDefaults(t *testing.T) {
	b := testBook("Title page", "One", "Two")
	b.TOC.Add(book.RootNode, "One", "ch2", "")
	b.TOC.Add(book.RootNode, "Two", "ch3", "")

	res, err := Finalize(b, testMapped(), queriesFor(t, b), Options{})
	if err != nil {
		t.Fatalf("front matter ahead of the toc should not fail: %v", err)
	}
	if res.Tracks != 3 {
		t.Fatalf("expected 3 tracks, got %d", res.Tracks)
	}
	want := []string{DefaultPreTOCLabel, DefaultPreTOCLabel, "One", "One", "Two", "Two"}
	for i, j := range res.Jobs {
		if j.ResolvedMetadata.TrackTitle != want[i] {
			t.Errorf("job %d: expected %q, got %q", i, want[i], j.ResolvedMetadata.TrackTitle)
		}
	}
}

func TestFinalizeSpineChapters(t *testing.T) {
	b := testBook("Front", "One", "Two")
	b.TOC.Add(book.RootNode, "Everything", "ch2", "")

	res, err := Finalize(b, testMapped(), queriesFor(t, b), Options{SpineChapters: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Tracks != 3 {
		t.Fatalf("expected a track per spine document, got %d", res.Tracks)
	}
	for i, j := range res.Jobs {
		if got, want := j.ResolvedMetadata.TrackNumber, i/2+1; got != want {
			t.Errorf("job %d: expected track %d, got %d", i, want, got)
		}
		if j.ResolvedMetadata.TrackTitle == "Everything" {
			t.Errorf("job %d: toc label used despite spine chapters", i)
		}
	}
}

func TestFinalizeInconsistentOrder(t *testing.T) {
	labels := []string{"One", "Two"}
	b := testBook(labels...)
	flatTOC(b, labels...)
	queries := queriesFor(t, b)
	queries[1], queries[2] = queries[2], queries[1]

	_, err := Finalize(b, testMapped(), queries, Options{})
	if !errors.Is(err, book.ErrInconsistentOrder) {
		t.Fatalf("expected ErrInconsistentOrder, got %v", err)
	}
}

func TestCheckOrder(t *testing.T) {
	job := func(spine, block, seq int) Job {
		return Job{UnitID: book.UnitID(spine, block), SequenceIndex: seq}
	}
	tests := []struct {
		name string
		jobs []Job
		ok   bool
	}{
		{"empty", nil, true},
		{"increasing", []Job{job(0, 0, 0), job(0, 0, 1), job(0, 1, 0), job(1, 0, 0)}, true},
		{"repeated sequence", []Job{job(0, 0, 0), job(0, 0, 0)}, false},
		{"sequence decreases", []Job{job(0, 0, 1), job(0, 0, 0)}, false},
		{"block decreases", []Job{job(0, 2, 0), job(0, 1, 0)}, false},
		{"spine decreases", []Job{job(1, 0, 0), job(0, 5, 0)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckOrder(tt.jobs)
			if (err == nil) != tt.ok {
				t.Errorf("expected ok=%v, got %v", tt.ok, err)
			}
		})
	}
}

func TestFinalizeSkipUnreadable(t *testing.T) {
	labels := []string{"Copyright", "Chapter 1", "Table of Contents"}
	b := testBook(labels...)
	flatTOC(b, labels...)

	res, err := Finalize(b, testMapped(), queriesFor(t, b), Options{SkipUnreadable: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Jobs) != 6 {
		t.Fatalf("excluded jobs must stay in the list, got %d", len(res.Jobs))
	}
	for i, job := range res.Jobs {
		wantExcluded := i < 2 || i >= 4
		if job.Excluded != wantExcluded {
			t.Errorf("job %d: excluded=%v", i, job.Excluded)
		}
		if job.Excluded && job.ResolvedMetadata.TrackNumber != 0 {
			t.Errorf("job %d: excluded jobs carry no track", i)
		}
		if job.Synthesizable() == job.Excluded {
			t.Errorf("job %d: Synthesizable disagrees with Excluded", i)
		}
	}
	if res.Jobs[2].ResolvedMetadata.TrackNumber != 1 || res.Tracks != 1 || res.Excluded != 4 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestFinalizePerParagraphTracks(t *testing.T) {
	labels := []string{"One", "Two"}
	b := testBook(labels...)
	flatTOC(b, labels...)

	res, err := Finalize(b, testMapped(), queriesFor(t, b), Options{PerParagraphTracks: true})
	if err != nil {
		t.Fatal(err)
	}
	for i, job := range res.Jobs {
		if job.ResolvedMetadata.TrackNumber != i+1 {
			t.Errorf("job %d: expected track %d, got %d", i, i+1, job.ResolvedMetadata.TrackNumber)
		}
	}
	if got := res.Jobs[1].ResolvedMetadata.TrackTitle; got != "One (2)" {
		t.Errorf("unexpected title %q", got)
	}
}

func TestFinalizeUnresolvedCarried(t *testing.T) {
	labels := []string{"One"}
	b := testBook(labels...)
	flatTOC(b, labels...)
	queries := queriesFor(t, b)
	queries[1].Unresolved = true
	queries[1].Error = "too long"

	res, err := Finalize(b, testMapped(), queries, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Jobs[1].Unresolved || res.Jobs[1].Error != "too long" || res.Unresolved != 1 {
		t.Errorf("unresolved job not carried: %+v", res.Jobs[1])
	}
	if res.Jobs[1].ResolvedMetadata.TrackNumber != 1 {
		t.Error("unresolved jobs keep their track")
	}
}

func TestFinalizeMissingTagTarget(t *testing.T) {
	b := testBook("One")
	flatTOC(b, "One")
	_, err := Finalize(b, &metadata.Mapped{}, queriesFor(t, b), Options{})
	if !errors.Is(err, book.ErrMissingRequiredMetadata) {
		t.Fatalf("expected ErrMissingRequiredMetadata, got %v", err)
	}
}
