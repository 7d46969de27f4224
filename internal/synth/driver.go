// Package synth drives a TTS provider over a finalized job list and
// assembles the resulting audio into tracks with lyric, transcript and tag
// sidecars.
package synth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/jackzampolin/narrate/internal/finalize"
	"github.com/jackzampolin/narrate/internal/providers"
	"github.com/jackzampolin/narrate/internal/ssml"
)

// Output layout inside the output directory.
const (
	LockFile    = ".narrate.lock"
	StateDir    = ".narrate"
	LedgerFile  = "ledger.db"
	SegmentsDir = "segments"
	ReportFile  = "report.json"
	PreviewBase = "preview"
)

var (
	// ErrLocked is returned when another run holds the output directory.
	ErrLocked = errors.New("output directory is locked by another run")
	// ErrIncomplete is returned when some jobs failed after retries.
	ErrIncomplete = errors.New("synthesis incomplete")
	// ErrNoJobs is returned when nothing is left to synthesize.
	ErrNoJobs = errors.New("no synthesizable jobs")
)

// HealthChecker is implemented by providers that can verify credentials.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Options configures a Driver.
type Options struct {
	Voice        string
	Format       string // audio container requested from the provider, default mp3
	Instructions string
	Concurrency  int     // 0 uses the provider's limit, then 4
	RateLimit    float64 // requests per second, 0 uses the provider's
	Tracks       TrackRange
	CheckHealth  bool
	Logger       *slog.Logger
}

// Driver runs synthesis for one provider.
type Driver struct {
	provider providers.TTSProvider
	opts     Options
	logger   *slog.Logger
}

// NewDriver creates a driver for p.
func NewDriver(p providers.TTSProvider, opts Options) *Driver {
	if opts.Format == "" {
		opts.Format = "mp3"
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = p.MaxConcurrency()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = p.RequestsPerSecond()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		provider: p,
		opts:     opts,
		logger:   logger.With("provider", p.Name()),
	}
}

// SkippedJob is a job left out of synthesis.
type SkippedJob struct {
	UnitID        string `json:"unitId"`
	SequenceIndex int    `json:"sequenceIndex"`
	Reason        string `json:"reason"`
}

// FailedJob is a job that could not be synthesized.
type FailedJob struct {
	UnitID        string `json:"unitId"`
	SequenceIndex int    `json:"sequenceIndex"`
	Error         string `json:"error"`
}

// TrackReport describes one assembled track.
type TrackReport struct {
	Number     int    `json:"number"`
	Title      string `json:"title"`
	File       string `json:"file"`
	Segments   int    `json:"segments"`
	DurationMS int    `json:"durationMs"`
}

// Report summarizes a run.
type Report struct {
	Tracks      []TrackReport `json:"tracks"`
	Synthesized int           `json:"synthesized"`
	Resumed     int           `json:"resumed"`
	Skipped     []SkippedJob  `json:"skipped,omitempty"`
	Failed      []FailedJob   `json:"failed,omitempty"`
	CostUSD     float64       `json:"costUsd"`
	Elapsed     time.Duration `json:"elapsed"`
}

// stitchRunes caps the neighbor text sent alongside a request.
const stitchRunes = 500

// request builds the provider request for jobs[i]. The plain text of the
// adjacent synthesizable jobs in the same track rides along so providers
// can stitch prosody across request boundaries.
func (d *Driver) request(jobs []finalize.Job, i int) *providers.TTSRequest {
	job := jobs[i]
	req := &providers.TTSRequest{
		Voice:        d.opts.Voice,
		Format:       d.opts.Format,
		Instructions: d.opts.Instructions,
	}
	if d.provider.SupportsSSML() {
		req.Text = job.SSMLText
		req.SSML = true
	} else {
		req.Text = ssml.PlainText(job.SSMLText)
	}
	if prev := neighbor(jobs, i, -1); prev != nil {
		req.PreviousText = tailRunes(ssml.PlainText(prev.SSMLText), stitchRunes)
	}
	if next := neighbor(jobs, i, 1); next != nil {
		req.NextText = headRunes(ssml.PlainText(next.SSMLText), stitchRunes)
	}
	return req
}

// neighbor returns the closest synthesizable job before (step -1) or after
// (step 1) jobs[i] that shares its track.
func neighbor(jobs []finalize.Job, i, step int) *finalize.Job {
	track := jobs[i].ResolvedMetadata.TrackNumber
	for j := i + step; j >= 0 && j < len(jobs); j += step {
		if !jobs[j].Synthesizable() {
			continue
		}
		if jobs[j].ResolvedMetadata.TrackNumber != track {
			return nil
		}
		return &jobs[j]
	}
	return nil
}

func headRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func tailRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}

// Run synthesizes every synthesizable job into outDir and assembles the
// tracks. Completed segments are recorded in a ledger inside outDir, so a
// rerun only synthesizes what is missing.
func (d *Driver) Run(ctx context.Context, jobs []finalize.Job, outDir string) (*Report, error) {
	start := time.Now()
	if err := os.MkdirAll(filepath.Join(outDir, StateDir, SegmentsDir), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	lock := flock.New(filepath.Join(outDir, LockFile))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock output dir: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLocked, outDir)
	}
	defer func() { _ = lock.Unlock() }()

	if err := d.checkHealth(ctx); err != nil {
		return nil, err
	}

	ledger, err := OpenLedger(filepath.Join(outDir, StateDir, LedgerFile))
	if err != nil {
		return nil, err
	}
	defer ledger.Close()

	report := &Report{}
	bookKey := BookKey(d.provider.Name(), d.opts.Voice, d.opts.Format)
	segments := make([]*Segment, len(jobs))

	var pending []int
	for i, job := range jobs {
		switch {
		case job.Excluded:
			report.Skipped = append(report.Skipped, SkippedJob{job.UnitID, job.SequenceIndex, "excluded"})
			continue
		case job.Unresolved:
			reason := "unresolved"
			if job.Error != "" {
				reason += ": " + job.Error
			}
			report.Skipped = append(report.Skipped, SkippedJob{job.UnitID, job.SequenceIndex, reason})
			d.logger.Warn("skipping unresolved job", "unit_id", job.UnitID, "seq", job.SequenceIndex)
			continue
		case !d.opts.Tracks.Contains(job.ResolvedMetadata.TrackNumber):
			report.Skipped = append(report.Skipped, SkippedJob{job.UnitID, job.SequenceIndex, "outside track range"})
			continue
		}

		seg, err := ledger.Get(ctx, bookKey, job.UnitID, job.SequenceIndex)
		if err != nil {
			return nil, err
		}
		if seg != nil && seg.TextHash == TextHash(d.request(jobs, i).Text) && fileExists(filepath.Join(outDir, seg.File)) {
			segments[i] = seg
			report.Resumed++
			continue
		}
		pending = append(pending, i)
	}

	d.logger.Info("synthesis starting",
		"jobs", len(jobs),
		"tracks", d.opts.Tracks.String(),
		"pending", len(pending),
		"resumed", report.Resumed,
		"skipped", len(report.Skipped))

	limiter := newLimiter(d.opts.RateLimit)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Concurrency)
	for _, i := range pending {
		job := jobs[i]
		g.Go(func() error {
			seg, err := d.synthesizeJob(gctx, limiter, jobs, i, outDir)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				d.logger.Error("job failed", "unit_id", job.UnitID, "seq", job.SequenceIndex, "error", err)
				mu.Lock()
				report.Failed = append(report.Failed, FailedJob{job.UnitID, job.SequenceIndex, err.Error()})
				mu.Unlock()
				return nil
			}
			if err := ledger.Put(gctx, bookKey, seg); err != nil {
				return err
			}
			mu.Lock()
			segments[i] = seg
			report.Synthesized++
			report.CostUSD += seg.CostUSD
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	tracks, err := d.assemble(jobs, segments, outDir)
	if err != nil {
		return nil, err
	}
	report.Tracks = tracks
	report.Elapsed = time.Since(start)
	// A partial range leaves the other tracks' files alone.
	if len(report.Failed) == 0 && d.opts.Tracks.All() {
		if err := removeStaleTracks(outDir, tracks); err != nil {
			d.logger.Warn("failed to remove stale tracks", "error", err)
		}
	}

	if err := writeJSON(filepath.Join(outDir, StateDir, ReportFile), report); err != nil {
		return nil, err
	}

	d.logger.Info("synthesis finished",
		"tracks", len(report.Tracks),
		"synthesized", report.Synthesized,
		"resumed", report.Resumed,
		"failed", len(report.Failed),
		"cost_usd", report.CostUSD,
		"elapsed", report.Elapsed)

	if len(report.Failed) > 0 {
		return report, fmt.Errorf("%w: %d jobs failed", ErrIncomplete, len(report.Failed))
	}
	return report, nil
}

func (d *Driver) checkHealth(ctx context.Context) error {
	if !d.opts.CheckHealth {
		return nil
	}
	hc, ok := d.provider.(HealthChecker)
	if !ok {
		return nil
	}
	if err := hc.HealthCheck(ctx); err != nil {
		return fmt.Errorf("%s health check: %w", d.provider.Name(), err)
	}
	return nil
}

// newLimiter paces requests at rps. A non-positive rate means unlimited.
func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}

// synthesizeJob calls the provider with rate limiting and retries, then
// stores the audio under the segments directory.
func (d *Driver) synthesizeJob(ctx context.Context, limiter *rate.Limiter, jobs []finalize.Job, i int, outDir string) (*Segment, error) {
	job := jobs[i]
	req := d.request(jobs, i)

	var res *providers.TTSResult
	err := retry.Do(
		func() error {
			if err := limiter.Wait(ctx); err != nil {
				return retry.Unrecoverable(err)
			}
			r, err := d.provider.Synthesize(ctx, req)
			if err != nil {
				return err
			}
			if r == nil || !r.Success || len(r.Audio) == 0 {
				return fmt.Errorf("provider returned no audio")
			}
			res = r
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(d.provider.MaxRetries()+1)),
		retry.Delay(d.provider.RetryDelayBase()),
		retry.MaxDelay(2*time.Minute),
		retry.LastErrorOnly(true),
		retry.DelayType(func(n uint, err error, cfg *retry.Config) time.Duration {
			if rle, ok := providers.IsRateLimitError(err); ok && rle.RetryAfter > 0 {
				return rle.RetryAfter
			}
			return retry.BackOffDelay(n, err, cfg)
		}),
		retry.OnRetry(func(n uint, err error) {
			d.logger.Warn("retrying job", "unit_id", job.UnitID, "seq", job.SequenceIndex, "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return nil, err
	}

	ext := res.Format
	if ext == "" {
		ext = d.opts.Format
	}
	rel := filepath.Join(StateDir, SegmentsDir, fmt.Sprintf("%s.%03d.%s", job.UnitID, job.SequenceIndex, ext))
	if err := writeFileAtomic(filepath.Join(outDir, rel), res.Audio); err != nil {
		return nil, err
	}

	chars := billedChars(job)
	cost := res.CostUSD
	if cost == 0 {
		cost = d.provider.EstimateCostUSD(chars)
	}

	return &Segment{
		UnitID:        job.UnitID,
		SequenceIndex: job.SequenceIndex,
		TextHash:      TextHash(req.Text),
		Provider:      d.provider.Name(),
		File:          rel,
		DurationMS:    measureDurationMS(res.Audio, ext, res.DurationMS, chars),
		BilledChars:   chars,
		CostUSD:       cost,
		Marks:         res.Marks,
		RequestID:     res.RequestID,
	}, nil
}

// Preview synthesizes only the longest synthesizable job in range so a voice can be
// checked before paying for the whole book. It returns the written file.
func (d *Driver) Preview(ctx context.Context, jobs []finalize.Job, outDir string) (string, error) {
	best := -1
	for i, job := range jobs {
		if !job.Synthesizable() || !d.opts.Tracks.Contains(job.ResolvedMetadata.TrackNumber) {
			continue
		}
		if best < 0 || job.BilledChars > jobs[best].BilledChars {
			best = i
		}
	}
	if best < 0 {
		return "", ErrNoJobs
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	limiter := newLimiter(d.opts.RateLimit)
	tmpDir, err := os.MkdirTemp(outDir, ".preview-*")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(tmpDir)

	seg, err := d.synthesizeJob(ctx, limiter, jobs, best, tmpDir)
	if err != nil {
		return "", err
	}
	dst := filepath.Join(outDir, PreviewBase+filepath.Ext(seg.File))
	if err := os.Rename(filepath.Join(tmpDir, seg.File), dst); err != nil {
		return "", err
	}
	d.logger.Info("preview written", "file", dst, "unit_id", seg.UnitID, "duration_ms", seg.DurationMS)
	return dst, nil
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(path, append(data, '\n'))
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
