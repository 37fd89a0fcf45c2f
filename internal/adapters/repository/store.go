// Package repository stores datasets and allocation runs.
package repository

import (
	"context"

	"github.com/okian/placement/internal/domain/types"
)

// Store persists the current dataset and the run history.
//
// A run moves queued -> running -> terminal. Every transition is a
// compare-and-set on the current status, so at most one writer finishes a run.
type Store interface {
	// PutDataset replaces the current dataset.
	PutDataset(ctx context.Context, ds types.Dataset) error
	// Dataset returns the current dataset or ErrNoDataset.
	Dataset(ctx context.Context) (types.Dataset, error)

	// CreateRun inserts a new run. ErrRunConflict if the id exists.
	CreateRun(ctx context.Context, run types.Run) error
	// StartRun moves a queued run to running. ErrRunConflict if it is not queued.
	StartRun(ctx context.Context, id string) error
	// FinishRun writes the terminal state of an open run. ErrRunConflict if
	// the run already reached a terminal state.
	FinishRun(ctx context.Context, run types.Run) error

	// Run returns one run or ErrNotFound.
	Run(ctx context.Context, id string) (types.Run, error)
	// Runs returns up to limit runs, newest first.
	Runs(ctx context.Context, limit int) ([]types.Run, error)
	// Count returns the number of stored runs.
	Count(ctx context.Context) int

	Close() error
}
