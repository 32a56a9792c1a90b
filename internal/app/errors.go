package app

import "errors"

// Error kinds shared by every service. Callers classify failures with
// errors.Is and map them to transport codes; details are attached by
// wrapping, e.g. fmt.Errorf("embed query: %w", ErrUpstream).
var (
	// ErrValidation marks malformed input rejected before any side effect.
	ErrValidation = errors.New("invalid input")
	// ErrNotFound marks an absent entity or an ownership mismatch. Both look
	// identical to the caller so existence is never disclosed across tenants.
	ErrNotFound = errors.New("not found")
	// ErrUpstream marks a failing external capability (embedding, generation).
	ErrUpstream = errors.New("upstream capability failed")
	// ErrPersistence marks a store read or write failure.
	ErrPersistence = errors.New("persistence failed")
)
