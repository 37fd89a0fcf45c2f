package model

import "errors"

// Sentinel kinds for model errors.
var (
	ErrUnknownGroup    = errors.New("unknown group")
	ErrUnknownQuotaKey = errors.New("unknown quota key")
)
