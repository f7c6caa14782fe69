package container

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	dcontainer "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
)

// DockerManager implements Manager against the Docker Engine API.
type DockerManager struct {
	client *client.Client
}

// NewDockerManager connects to the Docker daemon. An empty host uses
// DOCKER_HOST or the platform default socket.
func NewDockerManager(ctx context.Context, host string) (*DockerManager, error) {
	opts := []client.Opt{
		client.FromEnv,
		client.WithAPIVersionNegotiation(),
	}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := cli.Ping(pingCtx); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("failed to connect to docker daemon: %w", err)
	}

	return &DockerManager{client: cli}, nil
}

// Close releases the underlying API client.
func (m *DockerManager) Close() error {
	return m.client.Close()
}

// Images lists the local image catalog.
func (m *DockerManager) Images(ctx context.Context) ([]Image, error) {
	list, err := m.client.ImageList(ctx, image.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}

	images := make([]Image, 0, len(list))
	for _, img := range list {
		images = append(images, Image{ID: img.ID, RepoTags: img.RepoTags})
	}
	return images, nil
}

// List returns containers in any state that pass the filter.
func (m *DockerManager) List(ctx context.Context, filter ListFilter) ([]Summary, error) {
	args := filters.NewArgs()
	if filter.Name != "" {
		// The engine's name filter is a regexp over "/name"; anchor it.
		args.Add("name", "^/"+regexp.QuoteMeta(filter.Name)+"$")
	}
	for _, st := range filter.States {
		args.Add("status", string(st))
	}

	list, err := m.client.ContainerList(ctx, dcontainer.ListOptions{All: true, Filters: args})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	summaries := make([]Summary, 0, len(list))
	for _, c := range list {
		s := summaryFromAPI(c)
		if filter.Matches(s) {
			summaries = append(summaries, s)
		}
	}
	return summaries, nil
}

// Create creates a new container but does not start it.
func (m *DockerManager) Create(ctx context.Context, cfg ContainerConfig) (ContainerID, error) {
	config := &dcontainer.Config{
		Image:      cfg.Image,
		Env:        envList(cfg.Env),
		Cmd:        cfg.Cmd,
		WorkingDir: cfg.WorkDir,
	}

	hostConfig := &dcontainer.HostConfig{}
	for _, b := range cfg.Binds {
		hostConfig.Binds = append(hostConfig.Binds, b.String())
	}

	resp, err := m.client.ContainerCreate(ctx, config, hostConfig, nil, nil, cfg.Name)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}
	return ContainerID(resp.ID), nil
}

// Start starts a previously created container.
func (m *DockerManager) Start(ctx context.Context, id ContainerID) error {
	if err := m.client.ContainerStart(ctx, string(id), dcontainer.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start container: %w", err)
	}
	return nil
}

// Wait blocks until the container is no longer running and returns the exit code.
func (m *DockerManager) Wait(ctx context.Context, id ContainerID) (int, error) {
	statusCh, errCh := m.client.ContainerWait(ctx, string(id), dcontainer.WaitConditionNotRunning)

	select {
	case err := <-errCh:
		return -1, fmt.Errorf("failed to wait for container: %w", err)
	case status := <-statusCh:
		if status.Error != nil {
			return int(status.StatusCode), fmt.Errorf("failed to wait for container: %s", status.Error.Message)
		}
		return int(status.StatusCode), nil
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

// Logs returns the combined stdout/stderr stream, following until the
// container stops.
func (m *DockerManager) Logs(ctx context.Context, id ContainerID) (io.ReadCloser, error) {
	info, err := m.client.ContainerInspect(ctx, string(id))
	if err != nil {
		return nil, fmt.Errorf("failed to inspect container: %w", err)
	}

	rc, err := m.client.ContainerLogs(ctx, string(id), dcontainer.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
		Tail:       "all",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get container logs: %w", err)
	}

	// TTY containers write a raw stream; everything else is multiplexed.
	if info.Config != nil && info.Config.Tty {
		return rc, nil
	}

	pr, pw := io.Pipe()
	go func() {
		_, err := stdcopy.StdCopy(pw, pw, rc)
		_ = rc.Close()
		pw.CloseWithError(err)
	}()
	return &demuxedLogs{PipeReader: pr, raw: rc}, nil
}

// Remove force-removes a container. A missing container is not an error.
func (m *DockerManager) Remove(ctx context.Context, id ContainerID) error {
	err := m.client.ContainerRemove(ctx, string(id), dcontainer.RemoveOptions{Force: true})
	if err == nil || errdefs.IsNotFound(err) || isRemovalInProgress(err) {
		return nil
	}
	return fmt.Errorf("failed to remove container: %w", err)
}

type demuxedLogs struct {
	*io.PipeReader
	raw io.Closer
}

func (d *demuxedLogs) Close() error {
	return errors.Join(d.PipeReader.Close(), d.raw.Close())
}

func summaryFromAPI(c types.Container) Summary {
	name := ""
	if len(c.Names) > 0 {
		name = strings.TrimPrefix(c.Names[0], "/")
	}
	return Summary{
		ID:      ContainerID(c.ID),
		Name:    name,
		Image:   c.Image,
		State:   State(c.State),
		Status:  c.Status,
		Created: time.Unix(c.Created, 0).UTC(),
	}
}

// isRemovalInProgress matches the conflict the engine reports when two
// callers remove the same container concurrently.
func isRemovalInProgress(err error) bool {
	return errdefs.IsConflict(err) && strings.Contains(err.Error(), "is already in progress")
}

func envList(env map[string]string) []string {
	list := make([]string, 0, len(env))
	for k, v := range env {
		list = append(list, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(list)
	return list
}

// Verify DockerManager implements Manager interface
var _ Manager = (*DockerManager)(nil)
