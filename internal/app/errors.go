package service

import (
	"errors"

	"github.com/okian/placement/internal/domain/types"
)

// Sentinel kinds for service errors.
var (
	ErrNotFound       = types.ErrNotFound
	ErrNotStarted     = errors.New("service not started")
	ErrDatasetChanged = errors.New("dataset replaced since submission")
)
