package stats

import "errors"

var (
	// ErrInvalidPath reports a stat path that is not "<Category>.<Name>".
	ErrInvalidPath = errors.New("invalid stat path")
	// ErrNotFound reports configuration applied to a stat that has never
	// been given a base value.
	ErrNotFound = errors.New("stat not found")
	// ErrInvalidConfig reports a modifier or stack option that fails
	// validation.
	ErrInvalidConfig = errors.New("invalid config")
)
