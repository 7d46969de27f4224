package stages

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jackzampolin/narrate/internal/pipeline"
	"github.com/jackzampolin/narrate/internal/synth"
	"github.com/jackzampolin/narrate/internal/svcctx"
)

// SynthesizeStage sends finalized jobs to the configured TTS provider. It
// always runs; the driver's ledger skips segments already synthesized.
type SynthesizeStage struct{}

func (s *SynthesizeStage) Name() string           { return Synthesize }
func (s *SynthesizeStage) Dependencies() []string { return []string{Finalize} }
func (s *SynthesizeStage) Icon() string           { return "🔊" }
func (s *SynthesizeStage) Description() string    { return "Synthesize audio tracks" }
func (s *SynthesizeStage) Artifact() string       { return "" }

// SynthStatus reports what a previous synthesis left behind. It is never
// complete; rerunning resumes from the ledger.
type SynthStatus struct {
	Ledger bool `json:"ledger"`
	Report bool `json:"report"`
}

func (st *SynthStatus) IsComplete() bool { return false }
func (st *SynthStatus) Data() any        { return st }

func (s *SynthesizeStage) GetStatus(ctx context.Context, bk *pipeline.Book) (pipeline.StageStatus, error) {
	state := filepath.Join(bk.Dir, synth.StateDir)
	return &SynthStatus{
		Ledger: fileExists(filepath.Join(state, synth.LedgerFile)),
		Report: fileExists(filepath.Join(state, synth.ReportFile)),
	}, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (s *SynthesizeStage) Load(ctx context.Context, bk *pipeline.Book) error {
	return fmt.Errorf("synthesis has no artifact to load")
}

func (s *SynthesizeStage) Run(ctx context.Context, bk *pipeline.Book) error {
	cfg := svcctx.ConfigFrom(ctx)
	logger := svcctx.LoggerFrom(ctx)

	provider, err := Provider(cfg, svcctx.RegistryFrom(ctx))
	if err != nil {
		return err
	}
	opts, err := DriverOptions(cfg, logger)
	if err != nil {
		return err
	}
	driver := synth.NewDriver(provider, opts)
	report, err := driver.Run(ctx, bk.Jobs(), bk.Dir)
	if report != nil {
		bk.SetReport(report)
	}
	return err
}
