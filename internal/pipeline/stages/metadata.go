package stages

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/jackzampolin/narrate/internal/artifact"
	"github.com/jackzampolin/narrate/internal/metadata"
	"github.com/jackzampolin/narrate/internal/pipeline"
	"github.com/jackzampolin/narrate/internal/svcctx"
)

// MetadataStage maps book metadata into the tag targets and exports the
// NFO and Plex sidecars.
type MetadataStage struct{}

func (s *MetadataStage) Name() string           { return Metadata }
func (s *MetadataStage) Dependencies() []string { return []string{Interpret} }
func (s *MetadataStage) Icon() string           { return "🏷️" }
func (s *MetadataStage) Description() string    { return "Map book metadata into ID3, NFO and Plex targets" }
func (s *MetadataStage) Artifact() string       { return MetadataFile }

func (s *MetadataStage) GetStatus(ctx context.Context, bk *pipeline.Book) (pipeline.StageStatus, error) {
	return artifactStatus(bk, MetadataFile), nil
}

func (s *MetadataStage) Load(ctx context.Context, bk *pipeline.Book) error {
	var mapped metadata.Mapped
	if err := artifact.Read(bk.Path(MetadataFile), artifact.KindMetadata, &mapped); err != nil {
		return err
	}
	bk.SetMapped(&mapped)
	return nil
}

func (s *MetadataStage) Run(ctx context.Context, bk *pipeline.Book) error {
	gb := bk.General()
	if gb == nil {
		return fmt.Errorf("no general book loaded")
	}
	logger := svcctx.LoggerFrom(ctx)

	mcfg, err := MappingConfig(svcctx.ConfigFrom(ctx), svcctx.HomeFrom(ctx))
	if err != nil {
		return err
	}
	mapped, err := metadata.Map(ctx, gb.Metadata, mcfg, metadata.Options{Logger: logger})
	if err != nil {
		return err
	}
	if err := artifact.Write(bk.Path(MetadataFile), mapped); err != nil {
		return fmt.Errorf("write %s: %w", MetadataFile, err)
	}

	written, err := metadata.Export(filepath.Join(bk.Dir, ExportsDir), mapped)
	if err != nil {
		return err
	}
	logger.Debug("metadata exported", "files", len(written))

	bk.SetMapped(mapped)
	return nil
}
