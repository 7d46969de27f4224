package synth

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/time/rate"

	"github.com/jackzampolin/narrate/internal/finalize"
	"github.com/jackzampolin/narrate/internal/providers"
	"github.com/jackzampolin/narrate/internal/ssml"
)

func job(unit string, seq, track int, title, text string) finalize.Job {
	doc := `<speak><mark name="` + ssml.MarkName(unit, seq) + `"/>` + text + `</speak>`
	return finalize.Job{
		UnitID:        unit,
		SequenceIndex: seq,
		SSMLText:      doc,
		BilledChars:   len(text),
		ResolvedMetadata: finalize.ResolvedMetadata{
			TrackNumber:  track,
			TrackTotal:   2,
			TrackTitle:   title,
			ChapterLabel: title,
			Tags:         map[string]string{"ARTIST": "Ann Author", "ALBUM": "A Book", "TITLE": title},
		},
	}
}

func testJobs() []finalize.Job {
	return []finalize.Job{
		job("s0000-b00000", 0, 1, "Chapter One", "It was a dark night. The rain fell."),
		job("s0000-b00001", 0, 1, "Chapter One", "Nobody came."),
		job("s0001-b00000", 0, 2, "Chapter Two", "Morning arrived."),
		job("s0001-b00001", 0, 2, "Chapter Two", "Birds sang loudly."),
	}
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	mock := providers.NewMockTTS()
	d := NewDriver(mock, Options{Voice: "alloy"})

	report, err := d.Run(ctx, testJobs(), dir)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Synthesized != 4 || report.Resumed != 0 {
		t.Fatalf("synthesized=%d resumed=%d", report.Synthesized, report.Resumed)
	}
	if len(report.Tracks) != 2 {
		t.Fatalf("expected 2 tracks, got %d", len(report.Tracks))
	}
	if report.Tracks[0].File != "01 - Chapter One.mp3" {
		t.Errorf("unexpected track file %q", report.Tracks[0].File)
	}

	audio, err := os.ReadFile(filepath.Join(dir, "01 - Chapter One.mp3"))
	if err != nil {
		t.Fatal(err)
	}
	want := "AUDIO[It was a dark night. The rain fell.]AUDIO[Nobody came.]"
	if string(audio) != want {
		t.Errorf("track audio = %q, want %q", audio, want)
	}

	for _, ext := range []string{".lrc", ".txt", ".json", ".tags.json"} {
		if _, err := os.Stat(filepath.Join(dir, "02 - Chapter Two"+ext)); err != nil {
			t.Errorf("missing sidecar %s: %v", ext, err)
		}
	}

	lrc, err := os.ReadFile(filepath.Join(dir, "01 - Chapter One.lrc"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(lrc), "[ar:Ann Author]\n[al:A Book]\n[ti:Chapter One]\n[00:00.00]It was a dark night.") {
		t.Errorf("unexpected lrc:\n%s", lrc)
	}

	txt, err := os.ReadFile(filepath.Join(dir, "01 - Chapter One.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(txt) != "It was a dark night. The rain fell.\n\nNobody came.\n" {
		t.Errorf("unexpected transcript %q", txt)
	}

	// Plain text goes to providers without SSML support.
	for _, req := range mock.Requests() {
		if req.SSML || strings.Contains(req.Text, "<") {
			t.Errorf("expected plain text request, got %+v", req)
		}
		if req.Voice != "alloy" {
			t.Errorf("expected voice alloy, got %q", req.Voice)
		}
	}
}

func TestRunResume(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	mock := providers.NewMockTTS()

	if _, err := NewDriver(mock, Options{}).Run(ctx, testJobs(), dir); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	calls := mock.CallCount()

	report, err := NewDriver(mock, Options{}).Run(ctx, testJobs(), dir)
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if mock.CallCount() != calls {
		t.Errorf("expected no new calls on resume, got %d", mock.CallCount()-calls)
	}
	if report.Resumed != 4 || report.Synthesized != 0 {
		t.Errorf("resumed=%d synthesized=%d", report.Resumed, report.Synthesized)
	}

	t.Run("changed text is resynthesized", func(t *testing.T) {
		jobs := testJobs()
		jobs[3] = job("s0001-b00001", 0, 2, "Chapter Two", "Birds sang quietly.")
		report, err := NewDriver(mock, Options{}).Run(ctx, jobs, dir)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if report.Synthesized != 1 || report.Resumed != 3 {
			t.Errorf("resumed=%d synthesized=%d", report.Resumed, report.Synthesized)
		}
	})

	t.Run("different voice does not reuse audio", func(t *testing.T) {
		report, err := NewDriver(mock, Options{Voice: "nova"}).Run(ctx, testJobs(), dir)
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if report.Synthesized != 4 {
			t.Errorf("expected 4 synthesized, got %d", report.Synthesized)
		}
	})
}

func TestRunRetriesRateLimits(t *testing.T) {
	mock := providers.NewMockTTS()
	mock.RateLimits = 2

	report, err := NewDriver(mock, Options{Concurrency: 1}).Run(context.Background(), testJobs()[:1], t.TempDir())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Synthesized != 1 {
		t.Errorf("expected 1 synthesized, got %d", report.Synthesized)
	}
	if mock.CallCount() != 3 {
		t.Errorf("expected 3 calls, got %d", mock.CallCount())
	}
}

func TestRunUnlimitedRate(t *testing.T) {
	mock := providers.NewMockTTS()
	mock.RPS = 0

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dir := t.TempDir()
	report, err := NewDriver(mock, Options{RateLimit: 0, Concurrency: 1}).Run(ctx, testJobs(), dir)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Synthesized != 4 || len(report.Failed) != 0 {
		t.Fatalf("synthesized=%d failed=%v", report.Synthesized, report.Failed)
	}

	path, err := NewDriver(mock, Options{RateLimit: -1}).Preview(ctx, testJobs(), t.TempDir())
	if err != nil || path == "" {
		t.Fatalf("Preview() = %q, %v", path, err)
	}

	if lim := newLimiter(0); lim.Limit() != rate.Inf {
		t.Errorf("expected an unlimited limiter, got %v", lim.Limit())
	}
	if lim := newLimiter(2.5); lim.Limit() != rate.Limit(2.5) {
		t.Errorf("expected 2.5 rps, got %v", lim.Limit())
	}
}

func TestRunIncomplete(t *testing.T) {
	mock := providers.NewMockTTS()
	mock.FailText = "Nobody came."
	dir := t.TempDir()

	report, err := NewDriver(mock, Options{}).Run(context.Background(), testJobs(), dir)
	if !errors.Is(err, ErrIncomplete) {
		t.Fatalf("expected ErrIncomplete, got %v", err)
	}
	if len(report.Failed) != 1 || report.Failed[0].UnitID != "s0000-b00001" {
		t.Fatalf("unexpected failures %+v", report.Failed)
	}
	if len(report.Tracks) != 1 || report.Tracks[0].Number != 2 {
		t.Errorf("expected only track 2 assembled, got %+v", report.Tracks)
	}
	if _, err := os.Stat(filepath.Join(dir, "01 - Chapter One.mp3")); !os.IsNotExist(err) {
		t.Errorf("incomplete track should not be written")
	}
}

func TestRunSkipsExcludedAndUnresolved(t *testing.T) {
	jobs := testJobs()
	jobs[0].Excluded = true
	jobs[0].ResolvedMetadata.TrackNumber = 0
	jobs[2].Unresolved = true
	jobs[2].Error = "too long"
	mock := providers.NewMockTTS()

	report, err := NewDriver(mock, Options{}).Run(context.Background(), jobs, t.TempDir())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(report.Skipped) != 2 {
		t.Fatalf("expected 2 skipped, got %+v", report.Skipped)
	}
	if report.Skipped[1].Reason != "unresolved: too long" {
		t.Errorf("unexpected reason %q", report.Skipped[1].Reason)
	}
	if mock.CallCount() != 2 {
		t.Errorf("expected 2 calls, got %d", mock.CallCount())
	}
}

func TestRunSSMLProvider(t *testing.T) {
	mock := providers.NewMockTTS()
	mock.SSML = true
	if _, err := NewDriver(mock, Options{}).Run(context.Background(), testJobs()[:1], t.TempDir()); err != nil {
		t.Fatal(err)
	}
	req := mock.Requests()[0]
	if !req.SSML || !strings.HasPrefix(req.Text, "<speak>") {
		t.Errorf("expected SSML request, got %+v", req)
	}
}

func TestRunLocked(t *testing.T) {
	dir := t.TempDir()
	lock := flock.New(filepath.Join(dir, LockFile))
	ok, err := lock.TryLock()
	if err != nil || !ok {
		t.Fatalf("TryLock() = %v, %v", ok, err)
	}
	defer lock.Unlock()

	_, err = NewDriver(providers.NewMockTTS(), Options{}).Run(context.Background(), testJobs(), dir)
	if !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
}

func TestPreview(t *testing.T) {
	mock := providers.NewMockTTS()
	dir := t.TempDir()

	path, err := NewDriver(mock, Options{}).Preview(context.Background(), testJobs(), dir)
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}
	if filepath.Base(path) != "preview.mp3" {
		t.Errorf("unexpected preview path %q", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "AUDIO[It was a dark night. The rain fell.]" {
		t.Errorf("preview should use the longest job, got %q", data)
	}
	if mock.CallCount() != 1 {
		t.Errorf("expected 1 call, got %d", mock.CallCount())
	}

	jobs := testJobs()
	for i := range jobs {
		jobs[i].Excluded = true
	}
	if _, err := NewDriver(mock, Options{}).Preview(context.Background(), jobs, dir); !errors.Is(err, ErrNoJobs) {
		t.Errorf("expected ErrNoJobs, got %v", err)
	}
}

func TestEstimate(t *testing.T) {
	mock := providers.NewMockTTS()
	jobs := testJobs()
	jobs[3].Excluded = true

	est := NewDriver(mock, Options{}).Estimate(jobs)
	if est.Jobs != 3 || est.Skipped != 1 {
		t.Fatalf("jobs=%d skipped=%d", est.Jobs, est.Skipped)
	}
	if len(est.Tracks) != 2 {
		t.Fatalf("expected 2 tracks, got %d", len(est.Tracks))
	}
	wantChars := len("It was a dark night. The rain fell.") + len("Nobody came.") + len("Morning arrived.")
	if est.Chars != wantChars {
		t.Errorf("chars = %d, want %d", est.Chars, wantChars)
	}
	if est.CostUSD <= 0 || est.DurationMS <= 0 {
		t.Errorf("expected positive cost and duration, got %+v", est)
	}
}

func TestParseTrackRange(t *testing.T) {
	tests := []struct {
		in      string
		want    TrackRange
		wantErr bool
	}{
		{in: "", want: TrackRange{}},
		{in: "all", want: TrackRange{}},
		{in: "3", want: TrackRange{3, 3}},
		{in: "2-5", want: TrackRange{2, 5}},
		{in: "4-", want: TrackRange{4, 0}},
		{in: "-6", want: TrackRange{0, 6}},
		{in: " 1-1 ", want: TrackRange{1, 1}},
		{in: "-", wantErr: true},
		{in: "0", wantErr: true},
		{in: "5-2", wantErr: true},
		{in: "a-b", wantErr: true},
		{in: "1-2-3", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTrackRange(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTrackRange(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("ParseTrackRange(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}

	r := TrackRange{First: 2}
	if r.Contains(1) || !r.Contains(2) || !r.Contains(99) {
		t.Errorf("open-ended range %v contains the wrong tracks", r)
	}
	if r.String() != "2-" || (TrackRange{3, 3}).String() != "3" || (TrackRange{}).String() != "all" {
		t.Errorf("unexpected range strings")
	}
}

func TestRunTrackRange(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	mock := providers.NewMockTTS()

	if _, err := NewDriver(mock, Options{}).Run(ctx, testJobs(), dir); err != nil {
		t.Fatalf("full Run() error = %v", err)
	}

	jobs := testJobs()
	jobs[3] = job("s0001-b00001", 0, 2, "Chapter Two", "Birds sang quietly.")
	calls := mock.CallCount()

	report, err := NewDriver(mock, Options{Tracks: TrackRange{First: 2, Last: 2}}).Run(ctx, jobs, dir)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := mock.CallCount() - calls; got != 1 {
		t.Errorf("expected one new call, got %d", got)
	}
	if len(report.Tracks) != 1 || report.Tracks[0].File != "02 - Chapter Two.mp3" {
		t.Fatalf("expected only track 2, got %+v", report.Tracks)
	}
	outside := 0
	for _, s := range report.Skipped {
		if s.Reason == "outside track range" {
			outside++
		}
	}
	if outside != 2 {
		t.Errorf("expected 2 jobs outside the range, got %+v", report.Skipped)
	}
	if _, err := os.Stat(filepath.Join(dir, "01 - Chapter One.mp3")); err != nil {
		t.Errorf("tracks outside the range must be kept: %v", err)
	}

	est := NewDriver(mock, Options{Tracks: TrackRange{Last: 1}}).Estimate(jobs)
	if len(est.Tracks) != 1 || est.Tracks[0].Number != 1 || est.Jobs != 2 || est.Skipped != 2 {
		t.Errorf("unexpected ranged estimate %+v", est)
	}
}

func TestLedger(t *testing.T) {
	ctx := context.Background()
	l, err := OpenLedger(filepath.Join(t.TempDir(), "state", "ledger.db"))
	if err != nil {
		t.Fatalf("OpenLedger() error = %v", err)
	}
	defer l.Close()

	key := BookKey("mock", "alloy", "mp3")
	seg, err := l.Get(ctx, key, "s0000-b00000", 0)
	if err != nil || seg != nil {
		t.Fatalf("expected empty ledger, got %v, %v", seg, err)
	}

	in := &Segment{
		UnitID:      "s0000-b00000",
		TextHash:    TextHash("hello"),
		Provider:    "mock",
		File:        "seg.mp3",
		DurationMS:  1200,
		BilledChars: 5,
		CostUSD:     0.01,
		Marks:       []providers.Mark{{Name: "s0000-b00000.0", TimeMS: 0}},
	}
	if err := l.Put(ctx, key, in); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	in.DurationMS = 1300
	if err := l.Put(ctx, key, in); err != nil {
		t.Fatalf("second Put() error = %v", err)
	}

	got, err := l.Get(ctx, key, "s0000-b00000", 0)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.DurationMS != 1300 || got.TextHash != in.TextHash || len(got.Marks) != 1 {
		t.Errorf("unexpected segment %+v", got)
	}
	if n, _ := l.Count(ctx, key); n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}
	if n, _ := l.Count(ctx, BookKey("mock", "nova", "mp3")); n != 0 {
		t.Errorf("other voice Count() = %d, want 0", n)
	}
}

func TestTrackFileBase(t *testing.T) {
	tests := []struct {
		number, total int
		title         string
		want          string
	}{
		{1, 9, "Chapter One", "01 - Chapter One"},
		{7, 120, "Part 1: Arrival", "007 - Part 1 - Arrival"},
		{2, 3, "What?/Why", "02 - What_Why"},
		{3, 3, "  ...  ", "03 - Track"},
	}
	for _, tt := range tests {
		if got := trackFileBase(tt.number, tt.total, tt.title); got != tt.want {
			t.Errorf("trackFileBase(%d, %d, %q) = %q, want %q", tt.number, tt.total, tt.title, got, tt.want)
		}
	}
}

func TestLyrics(t *testing.T) {
	if got := formatLRCTime(83450); got != "01:23.45" {
		t.Errorf("formatLRCTime = %q", got)
	}
	if got := formatLRCTime(-5); got != "00:00.00" {
		t.Errorf("negative formatLRCTime = %q", got)
	}

	lines := timedSentences("One two. Three four.", 1000, 2000, nil)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %+v", lines)
	}
	if lines[0].OffsetMS != 1000 || lines[1].OffsetMS <= 1000 || lines[1].OffsetMS >= 3000 {
		t.Errorf("unexpected offsets %+v", lines)
	}

	var buf bytes.Buffer
	if err := writeLRC(&buf, LRCHeader{Title: "T"}, lines); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "[ti:T]\n[00:01.00]One two.\n") {
		t.Errorf("unexpected lrc %q", buf.String())
	}
}

func TestTimedSentencesMarks(t *testing.T) {
	marks := []providers.Mark{
		{Name: "Three", TimeMS: 1700, Offset: 9},
		{Name: "One", TimeMS: 100, Offset: 0},
		{Name: "four.", TimeMS: 1900, Offset: 15},
	}
	lines := timedSentences("One two. Three four.", 1000, 2000, marks)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %+v", lines)
	}
	if lines[0].OffsetMS != 1100 || lines[1].OffsetMS != 2700 {
		t.Errorf("expected offsets from marks, got %+v", lines)
	}

	// A sentence past the last mark falls back to its proportional position.
	lines = timedSentences("One two. Three four.", 0, 2000, marks[1:2])
	if lines[1].OffsetMS != 900 {
		t.Errorf("expected proportional fallback, got %+v", lines)
	}
}

func TestRequestStitching(t *testing.T) {
	jobs := testJobs()
	jobs = append(jobs[:2], append([]finalize.Job{{UnitID: "s0000-b00002", Excluded: true}}, jobs[2:]...)...)
	d := NewDriver(providers.NewMockTTS(), Options{})

	first := d.request(jobs, 0)
	if first.PreviousText != "" || first.NextText != "Nobody came." {
		t.Errorf("first job context: %+v", first)
	}
	// The excluded job is skipped and the next job is in another track.
	second := d.request(jobs, 1)
	if second.PreviousText != "It was a dark night. The rain fell." || second.NextText != "" {
		t.Errorf("second job context: %+v", second)
	}
	third := d.request(jobs, 3)
	if third.PreviousText != "" || third.NextText != "Birds sang loudly." {
		t.Errorf("third job context: %+v", third)
	}

	if got := tailRunes("héllo world", 5); got != "world" {
		t.Errorf("tailRunes = %q", got)
	}
	if got := headRunes("héllo world", 5); got != "héllo" {
		t.Errorf("headRunes = %q", got)
	}
}

func TestMeasureDurationFallback(t *testing.T) {
	if got := measureDurationMS([]byte("not audio"), "mp3", 1500, 10); got != 1500 {
		t.Errorf("expected reported duration, got %d", got)
	}
	if got := measureDurationMS(nil, "wav", 0, 750); got != providers.EstimateDurationMS(750) {
		t.Errorf("expected estimate, got %d", got)
	}
}

func TestRemoveStaleTracks(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"01 - Old.mp3", "01 - Old.tags.json", "01 - Keep.mp3", "01 - Keep.tags.json", "notes.txt",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := removeStaleTracks(dir, []TrackReport{{Number: 1, File: "01 - Keep.mp3"}}); err != nil {
		t.Fatalf("removeStaleTracks() error = %v", err)
	}
	entries, _ := os.ReadDir(dir)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	if got := strings.Join(names, ","); got != "01 - Keep.mp3,01 - Keep.tags.json,notes.txt" {
		t.Errorf("remaining files = %s", got)
	}
}

func TestIsTrackBase(t *testing.T) {
	if !isTrackBase("01 - Intro") || isTrackBase("preview") || isTrackBase("1 - x") || isTrackBase("ab - x") {
		t.Error("isTrackBase misclassified")
	}
}
