package container

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// ErrNoRuntime is returned when no container runtime is found.
var ErrNoRuntime = errors.New("no container runtime found (need docker or podman)")

// Backend names accepted by Open.
const (
	BackendAPI    = "api"
	BackendDocker = "docker"
	BackendPodman = "podman"
	BackendAuto   = "auto"
)

// DetectRuntime finds an available container runtime.
// Checks docker first, then podman. Verifies the binary actually works
// by running `<runtime> version`.
func DetectRuntime() (string, error) {
	for _, bin := range []string{"docker", "podman"} {
		if _, err := exec.LookPath(bin); err != nil {
			continue
		}
		cmd := exec.Command(bin, "version")
		if err := cmd.Run(); err != nil {
			continue
		}
		return bin, nil
	}
	return "", ErrNoRuntime
}

// Open returns a Manager for the named backend. "auto" prefers the Docker
// Engine API and falls back to whichever CLI DetectRuntime finds.
func Open(ctx context.Context, backend, dockerHost string) (Manager, error) {
	switch backend {
	case BackendAPI:
		return NewDockerManager(ctx, dockerHost)
	case BackendDocker, BackendPodman:
		if _, err := exec.LookPath(backend); err != nil {
			return nil, fmt.Errorf("%s binary not found: %w", backend, err)
		}
		return NewCLIManager(backend), nil
	case BackendAuto, "":
		if m, err := NewDockerManager(ctx, dockerHost); err == nil {
			return m, nil
		}
		bin, err := DetectRuntime()
		if err != nil {
			return nil, err
		}
		return NewCLIManager(bin), nil
	default:
		return nil, fmt.Errorf("unknown container backend %q", backend)
	}
}
