package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// RunOptions controls a pipeline run.
type RunOptions struct {
	// Until stops after the named stage and its dependencies. Empty runs
	// every stage.
	Until string
	// Force recomputes stages whose artifacts already exist.
	Force bool
	// Rerun names stages to recompute even when their artifacts exist.
	Rerun  []string
	Logger *slog.Logger
}

// StageResult records what happened to one stage.
type StageResult struct {
	Name     string        `json:"name"`
	Resumed  bool          `json:"resumed"`
	Duration time.Duration `json:"duration"`
}

// Run executes the registered stages level by level. Stages within a level
// run concurrently; a stage whose artifact already exists is loaded instead
// of recomputed unless forced. The first failure cancels the level and
// stops the run.
func Run(ctx context.Context, reg *Registry, bk *Book, opts RunOptions) ([]StageResult, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	levels, err := reg.Levels()
	if err != nil {
		return nil, err
	}

	var selected map[string]bool
	if opts.Until != "" {
		if selected, err = reg.Closure(opts.Until); err != nil {
			return nil, err
		}
	}
	rerun := make(map[string]bool, len(opts.Rerun))
	for _, name := range opts.Rerun {
		if _, ok := reg.Get(name); !ok {
			return nil, fmt.Errorf("%w: %s", ErrStageNotFound, name)
		}
		rerun[name] = true
	}

	var (
		mu      sync.Mutex
		results []StageResult
		// A recomputed stage invalidates everything downstream of it.
		dirty = make(map[string]bool)
	)

	for _, level := range levels {
		g, gctx := errgroup.WithContext(ctx)
		for _, stage := range level {
			if selected != nil && !selected[stage.Name()] {
				continue
			}
			force := opts.Force || rerun[stage.Name()]
			for _, dep := range stage.Dependencies() {
				if dirty[dep] {
					force = true
				}
			}

			g.Go(func() error {
				res, err := runStage(gctx, stage, bk, force, logger)
				if err != nil {
					return fmt.Errorf("stage %s: %w", stage.Name(), err)
				}
				mu.Lock()
				results = append(results, res)
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return results, err
		}
		for _, res := range results {
			if !res.Resumed {
				dirty[res.Name] = true
			}
		}
	}
	return results, nil
}

func runStage(ctx context.Context, stage Stage, bk *Book, force bool, logger *slog.Logger) (StageResult, error) {
	start := time.Now()
	res := StageResult{Name: stage.Name()}
	log := logger.With("stage", stage.Name())

	if !force {
		status, err := stage.GetStatus(ctx, bk)
		if err != nil {
			return res, err
		}
		if status.IsComplete() {
			err := stage.Load(ctx, bk)
			if err == nil {
				res.Resumed = true
				res.Duration = time.Since(start)
				log.Info("stage resumed from artifact", "artifact", stage.Artifact())
				return res, nil
			}
			log.Warn("artifact unusable, recomputing", "artifact", stage.Artifact(), "error", err)
		}
	}

	log.Info("stage starting", "description", stage.Description())
	if err := stage.Run(ctx, bk); err != nil {
		return res, err
	}
	res.Duration = time.Since(start)
	log.Info("stage complete", "duration", res.Duration)
	return res, nil
}
