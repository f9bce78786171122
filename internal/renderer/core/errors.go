// Package core provides error kinds shared by the render pipeline.
// This package breaks import cycles between renderer, compose and their helpers.
package core

import (
	"errors"
	"fmt"
)

// Render pipeline errors.
var (
	// ErrInvalidParameter indicates a nil, zero-sized or out-of-range argument.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrNotInitialized indicates an operation attempted before setup.
	ErrNotInitialized = errors.New("not initialized")

	// ErrOutOfMemory indicates an allocation could not be satisfied.
	ErrOutOfMemory = errors.New("out of memory")

	// ErrBufferTooSmall indicates the destination cannot hold the result.
	// Results are never silently truncated.
	ErrBufferTooSmall = errors.New("buffer too small")

	// ErrLayerNotReady indicates a collaborator failed to supply content.
	ErrLayerNotReady = errors.New("layer not ready")

	// ErrCompositionFailed indicates an internal composition invariant was violated.
	ErrCompositionFailed = errors.New("composition failed")

	// ErrCacheInvalid indicates a corrupt or missing cache slot.
	ErrCacheInvalid = errors.New("cache invalid")
)

// ComponentError represents an error from a specific pipeline component.
type ComponentError struct {
	Component string // Component name (e.g., "compose", "renderer", "cache")
	Action    string // Action being performed
	Err       error  // Underlying error
}

// NewComponentError creates a new ComponentError.
func NewComponentError(component, action string, err error) *ComponentError {
	return &ComponentError{
		Component: component,
		Action:    action,
		Err:       err,
	}
}

func (e *ComponentError) Error() string {
	if e == nil {
		return ""
	}

	if e.Action != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %v", e.Component, e.Action, e.Err)
		}
		return fmt.Sprintf("%s: %s", e.Component, e.Action)
	}

	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Component, e.Err)
	}

	return e.Component
}

func (e *ComponentError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is implements errors.Is for ComponentError.
// Matches both the wrapper itself and the wrapped error.
func (e *ComponentError) Is(target error) bool {
	if e == nil {
		return false
	}
	if t, ok := target.(*ComponentError); ok {
		return e == t
	}
	return errors.Is(e.Err, target)
}

// Errorf wraps err as a ComponentError with a formatted action.
// Returns nil if err is nil.
func Errorf(component string, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return NewComponentError(component, fmt.Sprintf(format, args...), err)
}
