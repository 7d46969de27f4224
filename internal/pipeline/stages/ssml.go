package stages

import (
	"context"
	"fmt"

	"github.com/jackzampolin/narrate/internal/artifact"
	"github.com/jackzampolin/narrate/internal/pipeline"
	"github.com/jackzampolin/narrate/internal/ssml"
	"github.com/jackzampolin/narrate/internal/svcctx"
)

// SSMLStage renders every content unit into SSML queries.
type SSMLStage struct{}

func (s *SSMLStage) Name() string           { return SSML }
func (s *SSMLStage) Dependencies() []string { return []string{Interpret} }
func (s *SSMLStage) Icon() string           { return "🗣️" }
func (s *SSMLStage) Description() string    { return "Generate SSML queries for every content unit" }
func (s *SSMLStage) Artifact() string       { return QueriesFile }

func (s *SSMLStage) GetStatus(ctx context.Context, bk *pipeline.Book) (pipeline.StageStatus, error) {
	return artifactStatus(bk, QueriesFile), nil
}

func (s *SSMLStage) Load(ctx context.Context, bk *pipeline.Book) error {
	var queries []ssml.Query
	if err := artifact.Read(bk.Path(QueriesFile), artifact.KindQueries, &queries); err != nil {
		return err
	}
	bk.SetQueries(queries)
	return nil
}

func (s *SSMLStage) Run(ctx context.Context, bk *pipeline.Book) error {
	gb := bk.General()
	if gb == nil {
		return fmt.Errorf("no general book loaded")
	}
	logger := svcctx.LoggerFrom(ctx)
	res, err := ssml.Generate(ctx, gb, SSMLOptions(svcctx.ConfigFrom(ctx), logger))
	if err != nil {
		return err
	}
	for _, ue := range res.Unresolved {
		logger.Warn("query exceeds capacity", "error", ue)
	}
	logger.Info("queries generated", "queries", len(res.Queries), "billed_chars", res.BilledChars)
	if err := artifact.Write(bk.Path(QueriesFile), res.Queries); err != nil {
		return fmt.Errorf("write %s: %w", QueriesFile, err)
	}
	bk.SetQueries(res.Queries)
	return nil
}
