package container

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

// CLIManager implements Manager using docker/podman CLI.
type CLIManager struct {
	runtime string // "docker" or "podman"

	// run executes the runtime binary and returns stdout; stderr is folded
	// into the returned error. Swapped out in tests.
	run func(ctx context.Context, args ...string) ([]byte, error)
}

// NewCLIManager creates a Manager using the specified runtime.
// Use DetectRuntime() to find an available runtime first.
func NewCLIManager(runtime string) *CLIManager {
	m := &CLIManager{runtime: runtime}
	m.run = m.exec
	return m
}

func (m *CLIManager) exec(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, m.runtime, args...)
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return output, fmt.Errorf("%s %s: %s", m.runtime, args[0], strings.TrimSpace(string(exitErr.Stderr)))
		}
		return output, err
	}
	return output, nil
}

const (
	imagesFormat = "{{.ID}}\t{{.Repository}}:{{.Tag}}"
	psFormat     = "{{.ID}}\t{{.Names}}\t{{.Image}}\t{{.State}}\t{{.Status}}"
)

// Images lists the local image catalog.
func (m *CLIManager) Images(ctx context.Context) ([]Image, error) {
	output, err := m.run(ctx, "images", "--no-trunc", "--format", imagesFormat)
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}
	return parseImages(output), nil
}

// List returns containers in any state that pass the filter.
func (m *CLIManager) List(ctx context.Context, filter ListFilter) ([]Summary, error) {
	args := []string{"ps", "-a", "--no-trunc", "--format", psFormat}
	if filter.Name != "" {
		args = append(args, "--filter", "name=^"+regexp.QuoteMeta(filter.Name)+"$")
	}
	for _, st := range filter.States {
		args = append(args, "--filter", "status="+string(st))
	}

	output, err := m.run(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	var summaries []Summary
	for _, s := range parseContainers(output) {
		if filter.Matches(s) {
			summaries = append(summaries, s)
		}
	}
	return summaries, nil
}

// Create creates a new container but does not start it.
func (m *CLIManager) Create(ctx context.Context, cfg ContainerConfig) (ContainerID, error) {
	args := []string{"create", "--name", cfg.Name}

	// Add environment variables
	for _, kv := range envList(cfg.Env) {
		args = append(args, "-e", kv)
	}

	for _, b := range cfg.Binds {
		args = append(args, "-v", b.String())
	}

	// Set working directory if specified
	if cfg.WorkDir != "" {
		args = append(args, "-w", cfg.WorkDir)
	}

	// Image and command come last
	args = append(args, cfg.Image)
	args = append(args, cfg.Cmd...)

	output, err := m.run(ctx, args...)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}

	return ContainerID(strings.TrimSpace(string(output))), nil
}

// Start starts a previously created container.
func (m *CLIManager) Start(ctx context.Context, id ContainerID) error {
	if _, err := m.run(ctx, "start", string(id)); err != nil {
		return fmt.Errorf("failed to start container: %w", err)
	}
	return nil
}

// Wait blocks until the container exits and returns the exit code.
func (m *CLIManager) Wait(ctx context.Context, id ContainerID) (int, error) {
	output, err := m.run(ctx, "wait", string(id))
	if err != nil {
		return -1, fmt.Errorf("failed to wait for container: %w", err)
	}

	exitCode, err := strconv.Atoi(strings.TrimSpace(string(output)))
	if err != nil {
		return -1, fmt.Errorf("failed to parse exit code: %w", err)
	}

	return exitCode, nil
}

// Logs returns a stream of container logs (stdout and stderr combined).
func (m *CLIManager) Logs(ctx context.Context, id ContainerID) (io.ReadCloser, error) {
	// -f follows the log output until container exits
	cmd := exec.CommandContext(ctx, m.runtime, "logs", "-f", string(id))

	// The CLI replays container stderr on its own stderr; merge both.
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		_ = pw.Close()
		return nil, fmt.Errorf("failed to start log streaming: %w", err)
	}

	go func() {
		pw.CloseWithError(cmd.Wait())
	}()

	// When ctx is canceled, the command will be killed and pipe will close
	return pr, nil
}

// Remove force-removes a container. A missing container is not an error.
func (m *CLIManager) Remove(ctx context.Context, id ContainerID) error {
	if _, err := m.run(ctx, "rm", "-f", string(id)); err != nil {
		if isNoSuchContainer(err) {
			return nil
		}
		return fmt.Errorf("failed to remove container: %w", err)
	}
	return nil
}

func isNoSuchContainer(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no such container") ||
		strings.Contains(msg, "no container with name or id") ||
		strings.Contains(msg, "is already in progress")
}

// parseImages groups "<id>\t<repo>:<tag>" lines by image ID. Untagged
// entries ("<none>:<none>") keep the image but contribute no tag.
func parseImages(output []byte) []Image {
	byID := make(map[string]*Image)
	var order []string

	scanner := bufio.NewScanner(strings.NewReader(string(output)))
	for scanner.Scan() {
		id, ref, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "\t")
		if !ok || id == "" {
			continue
		}
		img, seen := byID[id]
		if !seen {
			img = &Image{ID: id}
			byID[id] = img
			order = append(order, id)
		}
		if !strings.Contains(ref, "<none>") {
			img.RepoTags = append(img.RepoTags, ref)
		}
	}

	images := make([]Image, 0, len(order))
	for _, id := range order {
		images = append(images, *byID[id])
	}
	return images
}

// parseContainers reads psFormat lines.
func parseContainers(output []byte) []Summary {
	var summaries []Summary

	scanner := bufio.NewScanner(strings.NewReader(string(output)))
	for scanner.Scan() {
		fields := strings.Split(strings.TrimSpace(scanner.Text()), "\t")
		if len(fields) < 5 || fields[0] == "" {
			continue
		}
		// A container may carry several comma-separated names; the first is canonical.
		name, _, _ := strings.Cut(fields[1], ",")
		summaries = append(summaries, Summary{
			ID:     ContainerID(fields[0]),
			Name:   strings.TrimPrefix(name, "/"),
			Image:  fields[2],
			State:  State(strings.ToLower(fields[3])),
			Status: fields[4],
		})
	}

	return summaries
}

// Verify CLIManager implements Manager interface
var _ Manager = (*CLIManager)(nil)
