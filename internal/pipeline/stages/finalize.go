package stages

import (
	"context"
	"fmt"

	"github.com/jackzampolin/narrate/internal/artifact"
	"github.com/jackzampolin/narrate/internal/finalize"
	"github.com/jackzampolin/narrate/internal/pipeline"
	"github.com/jackzampolin/narrate/internal/svcctx"
)

// FinalizeStage joins queries, metadata and the TOC into synthesis jobs.
type FinalizeStage struct{}

func (s *FinalizeStage) Name() string { return Finalize }
func (s *FinalizeStage) Dependencies() []string {
	return []string{Interpret, SSML, Metadata}
}
func (s *FinalizeStage) Icon() string        { return "🧩" }
func (s *FinalizeStage) Description() string { return "Merge queries and metadata into ordered jobs" }
func (s *FinalizeStage) Artifact() string    { return JobsFile }

func (s *FinalizeStage) GetStatus(ctx context.Context, bk *pipeline.Book) (pipeline.StageStatus, error) {
	return artifactStatus(bk, JobsFile), nil
}

func (s *FinalizeStage) Load(ctx context.Context, bk *pipeline.Book) error {
	var jobs []finalize.Job
	if err := artifact.Read(bk.Path(JobsFile), artifact.KindJobs, &jobs); err != nil {
		return err
	}
	if err := finalize.CheckOrder(jobs); err != nil {
		return err
	}
	bk.SetJobs(jobs)
	return nil
}

func (s *FinalizeStage) Run(ctx context.Context, bk *pipeline.Book) error {
	gb := bk.General()
	mapped := bk.Mapped()
	if gb == nil || mapped == nil {
		return fmt.Errorf("finalize needs the general book and mapped metadata")
	}

	res, err := finalize.Finalize(gb, mapped, bk.Queries(), FinalizeOptions(svcctx.ConfigFrom(ctx), svcctx.LoggerFrom(ctx)))
	if err != nil {
		return err
	}
	if err := artifact.Write(bk.Path(JobsFile), res.Jobs); err != nil {
		return fmt.Errorf("write %s: %w", JobsFile, err)
	}
	bk.SetJobs(res.Jobs)
	return nil
}
