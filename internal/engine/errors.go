package engine

import "errors"

var (
	// ErrInvalidScenario indicates a Scenario failed validation.
	ErrInvalidScenario = errors.New("invalid scenario")
	// ErrAlreadyMounted is returned by Mount on a widget that has already started.
	ErrAlreadyMounted = errors.New("widget already mounted")
	// ErrUnmounted is returned by operations on a torn-down widget.
	ErrUnmounted = errors.New("widget unmounted")
	// ErrNotMounted is returned by operations that need a running widget.
	ErrNotMounted = errors.New("widget not mounted")
)
