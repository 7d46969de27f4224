package pipeline

import (
	"context"
)

// Stage is the interface that all pipeline stages must implement.
// Each stage transforms the artifacts of its dependencies into its own.
type Stage interface {
	// Identity
	Name() string           // e.g., "interpret", "finalize"
	Dependencies() []string // Stages that must complete first

	// Metadata
	Icon() string
	Description() string

	// Artifact is the file the stage writes, relative to the book
	// directory. Empty when the stage has no single resumable artifact.
	Artifact() string

	// GetStatus reports whether the stage's output already exists for bk.
	GetStatus(ctx context.Context, bk *Book) (StageStatus, error)

	// Load restores a completed stage's output into bk without recomputing.
	Load(ctx context.Context, bk *Book) error

	// Run computes the stage's output, stores it in bk and writes its
	// artifact.
	Run(ctx context.Context, bk *Book) error
}

// StageStatus is implemented by each stage's status type.
// Each stage defines its own struct with stage-specific fields.
type StageStatus interface {
	// IsComplete returns whether this stage is done for this book.
	IsComplete() bool

	// Data returns stage-specific structured data.
	// The shape depends on the stage implementation.
	Data() any
}
