package sim

import "errors"

var (
	// ErrInvariant marks a caller error detected before a step mutates the world:
	// wrong action for the phase, negative or non-finite bids and weights, unknown
	// servers or tasks, or a task outside its [AuctionTime, Deadline] window.
	ErrInvariant = errors.New("invariant violation")

	// ErrCorruptEnv is returned when an environment file cannot be decoded or is inconsistent.
	ErrCorruptEnv = errors.New("environment file is corrupted")

	// ErrIncompatibleEnv is returned when an environment file has an unknown schema version.
	ErrIncompatibleEnv = errors.New("environment schema version is incompatible")
)
