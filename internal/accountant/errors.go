package accountant

import "errors"

var (
	ErrUnknownTier = errors.New("unknown tier")
	// ErrAborted is the cancellation cause seen by producers when background work is aborted.
	ErrAborted = errors.New("background operations aborted")
)
