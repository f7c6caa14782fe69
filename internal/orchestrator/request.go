package orchestrator

import (
	"fmt"
	"strings"

	"github.com/RevCBH/loadnode/internal/workspace"
)

// RunRequest identifies one execution attempt.
type RunRequest struct {
	// RunID names both the workspace directory and the container.
	RunID string

	// Image is the exact image reference to run, e.g. "jmeter-master:5.4.1".
	Image string

	// Env is passed to the container as-is, plus the heap setting.
	Env map[string]string

	// TestDefinition is written to <RunID>.jmx.
	TestDefinition string

	// DataFiles are written as text files named by key.
	DataFiles map[string]string

	// BinaryFiles are written as byte files named by key.
	BinaryFiles map[string][]byte
}

// Validate checks the fields that must hold before any precondition runs.
func (r RunRequest) Validate() error {
	if !workspace.ValidRunID(r.RunID) {
		return fmt.Errorf("%w: run id %q is empty or not filesystem/container-name safe", ErrInvalidRequest, r.RunID)
	}
	if strings.TrimSpace(r.Image) == "" {
		return fmt.Errorf("%w: image is required", ErrInvalidRequest)
	}
	return nil
}

func validateRunID(runID string) error {
	if !workspace.ValidRunID(runID) {
		return fmt.Errorf("%w: run id %q", ErrInvalidRequest, runID)
	}
	return nil
}
