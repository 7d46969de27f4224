package pipeline

import (
	"context"
	"errors"
	"testing"
)

func chain() (*Registry, map[string]*mockStage) {
	stages := map[string]*mockStage{
		"interpret":  newMockStage("interpret"),
		"ssml":       newMockStage("ssml", "interpret"),
		"metadata":   newMockStage("metadata", "interpret"),
		"finalize":   newMockStage("finalize", "ssml", "metadata"),
		"synthesize": newMockStage("synthesize", "finalize"),
	}
	r := NewRegistry()
	for _, name := range []string{"interpret", "ssml", "metadata", "finalize", "synthesize"} {
		r.Register(stages[name])
	}
	return r, stages
}

func TestRun(t *testing.T) {
	t.Run("runs every stage once", func(t *testing.T) {
		r, stages := chain()
		results, err := Run(context.Background(), r, NewBook("in.epub", t.TempDir()), RunOptions{})
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if len(results) != 5 {
			t.Fatalf("got %d results, want 5", len(results))
		}
		for name, s := range stages {
			if runs, _ := s.counts(); runs != 1 {
				t.Errorf("%s ran %d times", name, runs)
			}
		}
	})

	t.Run("until stops after dependencies", func(t *testing.T) {
		r, stages := chain()
		if _, err := Run(context.Background(), r, NewBook("in.epub", t.TempDir()), RunOptions{Until: "finalize"}); err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if runs, _ := stages["synthesize"].counts(); runs != 0 {
			t.Errorf("synthesize should not run, ran %d times", runs)
		}
		if runs, _ := stages["finalize"].counts(); runs != 1 {
			t.Errorf("finalize ran %d times", runs)
		}
	})

	t.Run("complete stages are loaded", func(t *testing.T) {
		r, stages := chain()
		stages["interpret"].complete = true
		stages["ssml"].complete = true
		stages["metadata"].complete = true

		results, err := Run(context.Background(), r, NewBook("in.epub", t.TempDir()), RunOptions{})
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		runs, loads := stages["interpret"].counts()
		if runs != 0 || loads != 1 {
			t.Errorf("interpret runs=%d loads=%d", runs, loads)
		}
		resumed := 0
		for _, res := range results {
			if res.Resumed {
				resumed++
			}
		}
		if resumed != 3 {
			t.Errorf("expected 3 resumed stages, got %d", resumed)
		}
	})

	t.Run("rerun invalidates downstream", func(t *testing.T) {
		r, stages := chain()
		for _, s := range stages {
			s.complete = true
		}

		if _, err := Run(context.Background(), r, NewBook("in.epub", t.TempDir()), RunOptions{Rerun: []string{"metadata"}}); err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		for name, wantRun := range map[string]bool{
			"interpret": false, "ssml": false, "metadata": true, "finalize": true, "synthesize": true,
		} {
			runs, _ := stages[name].counts()
			if (runs == 1) != wantRun {
				t.Errorf("%s runs=%d, want run=%v", name, runs, wantRun)
			}
		}
	})

	t.Run("unusable artifact is recomputed", func(t *testing.T) {
		r, stages := chain()
		stages["interpret"].complete = true
		stages["interpret"].loadErr = errors.New("corrupt")

		if _, err := Run(context.Background(), r, NewBook("in.epub", t.TempDir()), RunOptions{Until: "interpret"}); err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if runs, loads := stages["interpret"].counts(); runs != 1 || loads != 1 {
			t.Errorf("interpret runs=%d loads=%d", runs, loads)
		}
	})

	t.Run("failure stops later levels", func(t *testing.T) {
		r, stages := chain()
		boom := errors.New("boom")
		stages["ssml"].runErr = boom

		_, err := Run(context.Background(), r, NewBook("in.epub", t.TempDir()), RunOptions{})
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
		if runs, _ := stages["finalize"].counts(); runs != 0 {
			t.Errorf("finalize should not run after a failure")
		}
	})

	t.Run("unknown rerun stage", func(t *testing.T) {
		r, _ := chain()
		_, err := Run(context.Background(), r, NewBook("in.epub", t.TempDir()), RunOptions{Rerun: []string{"nope"}})
		if !errors.Is(err, ErrStageNotFound) {
			t.Fatalf("expected ErrStageNotFound, got %v", err)
		}
	})
}

func TestBookState(t *testing.T) {
	bk := NewBook("in.epub", "/out")
	if got := bk.Path("book.json"); got != "/out/book.json" {
		t.Errorf("Path() = %q", got)
	}
	if bk.General() != nil || bk.Jobs() != nil {
		t.Error("expected empty state")
	}
}
