package orchestrator

import (
	"errors"
	"fmt"

	"github.com/RevCBH/loadnode/internal/precheck"
)

var (
	// ErrInvalidRequest is returned for run requests that fail validation.
	ErrInvalidRequest = errors.New("invalid run request")

	// ErrImageCatalogEmpty is returned when the runtime knows no images at all.
	ErrImageCatalogEmpty = errors.New("image catalog is empty")

	// ErrImageNotFound is returned when no local image carries the requested tag.
	ErrImageNotFound = errors.New("image not found")
)

// LaunchError reports a runtime rejection while creating or starting a
// run's container.
type LaunchError struct {
	Op    string // "create" or "start"
	RunID string
	Err   error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch %s: %s container: %v", e.RunID, e.Op, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// IsPrecondition reports whether err stopped a start before anything was
// launched: the dependency was unreachable or the image is unavailable.
func IsPrecondition(err error) bool {
	return errors.Is(err, precheck.ErrUnreachable) ||
		errors.Is(err, ErrImageCatalogEmpty) ||
		errors.Is(err, ErrImageNotFound)
}
