// Package workspace materializes the per-run directory that is bind-mounted
// into a run's container.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// DefinitionExt is the extension of the test definition file.
const DefinitionExt = ".jmx"

var (
	// ErrInvalidName is returned for run IDs or file names that are not
	// safe to use as a single path element.
	ErrInvalidName = errors.New("invalid name")

	validIDRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)
)

// ValidRunID reports whether id is usable both as a directory name and as a
// container name.
func ValidRunID(id string) bool {
	return validIDRe.MatchString(id)
}

// Manager owns the directories below a fixed root.
type Manager struct {
	root string
}

// NewManager returns a Manager rooted at root.
func NewManager(root string) *Manager {
	return &Manager{root: root}
}

// Root returns the directory under which workspaces are created.
func (m *Manager) Root() string {
	return m.root
}

// Path returns the workspace directory for runID without touching disk.
func (m *Manager) Path(runID string) string {
	return filepath.Join(m.root, runID)
}

// Prepare creates the run's directory and writes the test definition as
// <runID>.jmx, then every data file as text and every binary file as bytes.
// Existing files are overwritten. A failed write leaves earlier files in
// place; Destroy removes the whole directory.
func (m *Manager) Prepare(runID, definition string, dataFiles map[string]string, binaryFiles map[string][]byte) (string, error) {
	if !ValidRunID(runID) {
		return "", fmt.Errorf("%w: run id %q", ErrInvalidName, runID)
	}
	for name := range dataFiles {
		if err := checkFileName(name); err != nil {
			return "", err
		}
	}
	for name := range binaryFiles {
		if err := checkFileName(name); err != nil {
			return "", err
		}
	}

	dir := m.Path(runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create workspace %s: %w", dir, err)
	}

	if err := writeFile(dir, runID+DefinitionExt, []byte(definition)); err != nil {
		return dir, err
	}
	for name, content := range dataFiles {
		if err := writeFile(dir, name, []byte(content)); err != nil {
			return dir, err
		}
	}
	for name, content := range binaryFiles {
		if err := writeFile(dir, name, content); err != nil {
			return dir, err
		}
	}

	return dir, nil
}

// Destroy recursively removes a workspace directory. A directory that is
// already partially or fully gone is not an error.
func (m *Manager) Destroy(path string) error {
	if err := os.RemoveAll(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove workspace %s: %w", path, err)
	}
	return nil
}

func writeFile(dir, name string, content []byte) error {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func checkFileName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || name != filepath.Base(name) {
		return fmt.Errorf("%w: file name %q", ErrInvalidName, name)
	}
	return nil
}
