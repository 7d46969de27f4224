package stages

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackzampolin/narrate/internal/artifact"
	"github.com/jackzampolin/narrate/internal/book"
	"github.com/jackzampolin/narrate/internal/epub"
	"github.com/jackzampolin/narrate/internal/pipeline"
	"github.com/jackzampolin/narrate/internal/svcctx"
)

// InterpretStage parses the EPUB into a General Book and extracts its cover.
type InterpretStage struct{}

func (s *InterpretStage) Name() string           { return Interpret }
func (s *InterpretStage) Dependencies() []string { return nil }
func (s *InterpretStage) Icon() string           { return "📖" }
func (s *InterpretStage) Description() string    { return "Parse the EPUB into the general book model" }
func (s *InterpretStage) Artifact() string       { return BookFile }

func (s *InterpretStage) GetStatus(ctx context.Context, bk *pipeline.Book) (pipeline.StageStatus, error) {
	return artifactStatus(bk, BookFile), nil
}

func (s *InterpretStage) Load(ctx context.Context, bk *pipeline.Book) error {
	var gb book.GeneralBook
	if err := artifact.Read(bk.Path(BookFile), artifact.KindBook, &gb); err != nil {
		return err
	}
	if err := gb.Validate(); err != nil {
		return err
	}
	bk.SetGeneral(&gb)
	return nil
}

func (s *InterpretStage) Run(ctx context.Context, bk *pipeline.Book) error {
	cfg := svcctx.ConfigFrom(ctx)
	logger := svcctx.LoggerFrom(ctx)
	opts := InterpretOptions(cfg, logger)

	gb, err := epub.Interpret(ctx, bk.Source, opts)
	if err != nil {
		return err
	}

	cover, err := epub.ExtractCover(bk.Source, gb, bk.Dir, opts)
	switch {
	case errors.Is(err, epub.ErrNoCover):
		logger.Debug("epub has no cover image")
	case err != nil:
		logger.Warn("failed to extract cover", "error", err)
	default:
		logger.Info("cover extracted", "path", cover)
	}

	if err := artifact.Write(bk.Path(BookFile), gb); err != nil {
		return fmt.Errorf("write %s: %w", BookFile, err)
	}
	bk.SetGeneral(gb)
	return nil
}
