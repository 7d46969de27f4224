package synth

import (
	"unicode/utf8"

	"github.com/jackzampolin/narrate/internal/finalize"
	"github.com/jackzampolin/narrate/internal/providers"
	"github.com/jackzampolin/narrate/internal/ssml"
)

// TrackEstimate is the projected size of one track.
type TrackEstimate struct {
	Number     int     `json:"number"`
	Title      string  `json:"title"`
	Jobs       int     `json:"jobs"`
	Chars      int     `json:"chars"`
	CostUSD    float64 `json:"costUsd"`
	DurationMS int     `json:"durationMs"`
}

// Estimate is the projected cost of synthesizing a job list.
type Estimate struct {
	Provider   string          `json:"provider"`
	Tracks     []TrackEstimate `json:"tracks"`
	Jobs       int             `json:"jobs"`
	Skipped    int             `json:"skipped"`
	Chars      int             `json:"chars"`
	CostUSD    float64         `json:"costUsd"`
	DurationMS int             `json:"durationMs"`
}

// Estimate projects cost and duration without calling the provider.
func (d *Driver) Estimate(jobs []finalize.Job) *Estimate {
	return EstimateJobs(d.provider, jobs, d.opts.Tracks)
}

// EstimateJobs projects cost and duration for the jobs in tracks on
// provider p.
func EstimateJobs(p providers.TTSProvider, jobs []finalize.Job, tracks TrackRange) *Estimate {
	est := &Estimate{Provider: p.Name()}
	for _, g := range groupTracks(jobs, tracks) {
		first := jobs[g.jobs[0]].ResolvedMetadata
		te := TrackEstimate{Number: g.number, Title: first.TrackTitle, Jobs: len(g.jobs)}
		for _, i := range g.jobs {
			te.Chars += billedChars(jobs[i])
		}
		te.CostUSD = p.EstimateCostUSD(te.Chars)
		te.DurationMS = providers.EstimateDurationMS(te.Chars)

		est.Tracks = append(est.Tracks, te)
		est.Jobs += te.Jobs
		est.Chars += te.Chars
		est.CostUSD += te.CostUSD
		est.DurationMS += te.DurationMS
	}
	est.Skipped = len(jobs) - est.Jobs
	return est
}

func billedChars(job finalize.Job) int {
	if job.BilledChars > 0 {
		return job.BilledChars
	}
	return utf8.RuneCountInString(ssml.PlainText(job.SSMLText))
}
