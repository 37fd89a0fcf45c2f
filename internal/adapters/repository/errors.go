package repository

import "errors"

// Sentinel kinds for repository errors.
var (
	ErrNotFound     = errors.New("run not found")
	ErrNoDataset    = errors.New("no dataset loaded")
	ErrRunConflict  = errors.New("run state conflict")
	ErrInvalidLimit = errors.New("invalid run limit")
	ErrInvalidRun   = errors.New("invalid run")
)
