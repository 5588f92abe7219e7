package domain

import "errors"

var (
	// ErrNotReady is returned while the pipeline has not finished startup.
	ErrNotReady = errors.New("system not ready")

	// ErrEmptyQuestion rejects blank questions before any pipeline work.
	ErrEmptyQuestion = errors.New("question is required")

	// ErrModelUnavailable marks an unreachable or timed-out inference backend.
	ErrModelUnavailable = errors.New("language model unavailable")

	// ErrIndexCorrupt marks a persisted index that fails its self-description
	// check on load. Loading must fail loudly rather than degrade to empty results.
	ErrIndexCorrupt = errors.New("persisted index corrupt or mismatched")
)
