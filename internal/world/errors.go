package world

import "errors"

// Sentinel errors for the input-validation taxonomy of the external
// command surface. These are normal-mode rejections, not kernel
// invariant violations: the kernel state is left untouched.
var (
	ErrDuplicateID  = errors.New("world: duplicate drone id")
	ErrOutOfBounds  = errors.New("world: coordinates out of grid bounds")
	ErrUnknownDrone = errors.New("world: unknown drone id")
	ErrNegativeDt   = errors.New("world: dt must be positive")
)
