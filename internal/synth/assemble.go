package synth

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jackzampolin/narrate/internal/finalize"
	"github.com/jackzampolin/narrate/internal/providers"
	"github.com/jackzampolin/narrate/internal/ssml"
)

// trackSegment is one segment entry in a track's JSON sidecar.
type trackSegment struct {
	UnitID        string           `json:"unitId"`
	SequenceIndex int              `json:"sequenceIndex"`
	OffsetMS      int              `json:"offsetMs"`
	DurationMS    int              `json:"durationMs"`
	Text          string           `json:"text"`
	Marks         []providers.Mark `json:"marks,omitempty"`
	RequestID     string           `json:"requestId,omitempty"`
}

// trackSidecar is written next to each assembled track.
type trackSidecar struct {
	Number     int               `json:"number"`
	Title      string            `json:"title"`
	Chapter    string            `json:"chapter"`
	DurationMS int               `json:"durationMs"`
	Tags       map[string]string `json:"tags,omitempty"`
	Segments   []trackSegment    `json:"segments"`
}

const tagsSuffix = ".tags.json"

type trackGroup struct {
	number int
	jobs   []int
}

// groupTracks collects synthesizable job indexes by track number in job
// order, keeping only tracks inside r.
func groupTracks(jobs []finalize.Job, r TrackRange) []trackGroup {
	var groups []trackGroup
	byNumber := make(map[int]int)
	for i, job := range jobs {
		if !job.Synthesizable() {
			continue
		}
		n := job.ResolvedMetadata.TrackNumber
		if !r.Contains(n) {
			continue
		}
		gi, ok := byNumber[n]
		if !ok {
			gi = len(groups)
			byNumber[n] = gi
			groups = append(groups, trackGroup{number: n})
		}
		groups[gi].jobs = append(groups[gi].jobs, i)
	}
	return groups
}

// assemble concatenates segments into tracks and writes their sidecars.
// Tracks missing any segment are left out.
func (d *Driver) assemble(jobs []finalize.Job, segments []*Segment, outDir string) ([]TrackReport, error) {
	groups := groupTracks(jobs, d.opts.Tracks)
	total := 0
	for _, job := range jobs {
		if job.Synthesizable() && job.ResolvedMetadata.TrackNumber > total {
			total = job.ResolvedMetadata.TrackNumber
		}
	}

	var reports []TrackReport
	for _, g := range groups {
		first := jobs[g.jobs[0]].ResolvedMetadata

		missing := 0
		for _, i := range g.jobs {
			if segments[i] == nil {
				missing++
			}
		}
		if missing > 0 {
			d.logger.Warn("track incomplete, not assembled", "track", g.number, "title", first.TrackTitle, "missing", missing)
			continue
		}

		base := trackFileBase(g.number, total, first.TrackTitle)
		ext := filepath.Ext(segments[g.jobs[0]].File)

		files := make([]string, 0, len(g.jobs))
		sidecar := trackSidecar{
			Number:  g.number,
			Title:   first.TrackTitle,
			Chapter: first.ChapterLabel,
			Tags:    first.Tags,
		}
		var (
			lines      []lyricLine
			paragraphs []string
			lastUnit   string
			offset     int
		)
		for _, i := range g.jobs {
			seg := segments[i]
			text := ssml.PlainText(jobs[i].SSMLText)
			files = append(files, filepath.Join(outDir, seg.File))

			sidecar.Segments = append(sidecar.Segments, trackSegment{
				UnitID:        seg.UnitID,
				SequenceIndex: seg.SequenceIndex,
				OffsetMS:      offset,
				DurationMS:    seg.DurationMS,
				Text:          text,
				Marks:         seg.Marks,
				RequestID:     seg.RequestID,
			})
			lines = append(lines, timedSentences(text, offset, seg.DurationMS, seg.Marks)...)

			if seg.UnitID == lastUnit && len(paragraphs) > 0 {
				paragraphs[len(paragraphs)-1] += " " + text
			} else {
				paragraphs = append(paragraphs, text)
			}
			lastUnit = seg.UnitID
			offset += seg.DurationMS
		}
		sidecar.DurationMS = offset

		audioPath := filepath.Join(outDir, base+ext)
		if err := concatFiles(audioPath, files); err != nil {
			return nil, fmt.Errorf("assemble track %d: %w", g.number, err)
		}

		var lrc bytes.Buffer
		header := LRCHeader{
			Artist: first.Tags["ARTIST"],
			Album:  first.Tags["ALBUM"],
			Title:  first.TrackTitle,
		}
		if err := writeLRC(&lrc, header, lines); err != nil {
			return nil, err
		}
		if err := writeFileAtomic(filepath.Join(outDir, base+".lrc"), lrc.Bytes()); err != nil {
			return nil, err
		}

		var txt bytes.Buffer
		if err := writeTranscript(&txt, paragraphs); err != nil {
			return nil, err
		}
		if err := writeFileAtomic(filepath.Join(outDir, base+".txt"), txt.Bytes()); err != nil {
			return nil, err
		}

		if err := writeJSON(filepath.Join(outDir, base+".json"), sidecar); err != nil {
			return nil, err
		}
		if len(first.Tags) > 0 {
			if err := writeJSON(filepath.Join(outDir, base+tagsSuffix), first.Tags); err != nil {
				return nil, err
			}
		}

		d.logger.Debug("track assembled", "track", g.number, "file", filepath.Base(audioPath), "segments", len(files))
		reports = append(reports, TrackReport{
			Number:     g.number,
			Title:      first.TrackTitle,
			File:       filepath.Base(audioPath),
			Segments:   len(files),
			DurationMS: offset,
		})
	}
	return reports, nil
}

// removeStaleTracks deletes assembled files for track bases no longer
// produced, leaving the ledger and segments in place.
func removeStaleTracks(outDir string, keep []TrackReport) error {
	want := make(map[string]bool, len(keep))
	for _, t := range keep {
		want[strings.TrimSuffix(t.File, filepath.Ext(t.File))] = true
	}
	entries, err := os.ReadDir(outDir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		switch filepath.Ext(name) {
		case ".mp3", ".wav", ".opus", ".aac", ".flac", ".lrc", ".txt", ".json":
		default:
			continue
		}
		base := strings.TrimSuffix(strings.TrimSuffix(name, tagsSuffix), filepath.Ext(name))
		if !isTrackBase(base) || want[base] {
			continue
		}
		if err := os.Remove(filepath.Join(outDir, name)); err != nil {
			return err
		}
	}
	return nil
}

// isTrackBase reports whether name looks like "NN - Title".
func isTrackBase(name string) bool {
	digits, rest, ok := strings.Cut(name, " - ")
	if !ok || len(digits) < 2 || rest == "" {
		return false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
