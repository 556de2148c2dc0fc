package bench

import "errors"

var (
	// ErrInvalidTrialCount is returned for trial counts below one.
	ErrInvalidTrialCount = errors.New("trial count must be at least 1")
	// ErrNoSamples is returned when aggregating an empty sample sequence.
	ErrNoSamples = errors.New("no samples to aggregate")
	// ErrInvalidDescriptor covers unknown operations and malformed shapes or tiles.
	ErrInvalidDescriptor = errors.New("invalid kernel descriptor")
)
