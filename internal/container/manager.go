package container

import (
	"context"
	"io"
)

// Manager provides container lifecycle management.
// Implementations must be safe for concurrent use.
type Manager interface {
	// Images lists the runtime's local image catalog.
	Images(ctx context.Context) ([]Image, error)

	// List returns containers in any state that pass the filter.
	List(ctx context.Context, filter ListFilter) ([]Summary, error)

	// Create creates a new container but does not start it.
	// Returns the container ID on success.
	Create(ctx context.Context, cfg ContainerConfig) (ContainerID, error)

	// Start starts a previously created container.
	Start(ctx context.Context, id ContainerID) error

	// Wait blocks until the container is no longer running and returns the exit code.
	// Returns an error if the container doesn't exist or wait fails.
	Wait(ctx context.Context, id ContainerID) (exitCode int, err error)

	// Logs returns a stream of container logs (stdout and stderr combined),
	// from the first line, following new output until the container stops
	// or ctx is cancelled. The caller must close the returned ReadCloser.
	Logs(ctx context.Context, id ContainerID) (io.ReadCloser, error)

	// Remove force-removes a container, killing it if it is running.
	// Removing a container that no longer exists is not an error.
	Remove(ctx context.Context, id ContainerID) error
}
