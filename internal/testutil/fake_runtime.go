package testutil

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/RevCBH/loadnode/internal/container"
)

// FakeRuntime is an in-memory container.Manager. Container names are unique
// like in a real engine, Wait blocks until Exit or Remove, and Logs replays
// the configured output then follows until the container stops.
type FakeRuntime struct {
	mu         sync.Mutex
	images     []container.Image
	containers map[container.ContainerID]*fakeContainer
	seq        int
	output     map[string][]string

	created []container.ContainerConfig
	removed []container.ContainerID
	waiting map[container.ContainerID]int

	// Optional failure hooks.
	CreateErr func(cfg container.ContainerConfig) error
	StartErr  func(id container.ContainerID) error
	RemoveErr func(id container.ContainerID) error
	WaitErr   func(id container.ContainerID) error
	ListErr   error
	ImagesErr error
}

type fakeContainer struct {
	summary  container.Summary
	cfg      container.ContainerConfig
	exited   chan struct{}
	exitCode int
	order    int
}

var _ container.Manager = (*FakeRuntime)(nil)

// NewFakeRuntime returns a runtime whose catalog holds the given tags, one
// image per tag.
func NewFakeRuntime(tags ...string) *FakeRuntime {
	f := &FakeRuntime{
		containers: make(map[container.ContainerID]*fakeContainer),
		output:     make(map[string][]string),
	}
	for i, tag := range tags {
		f.images = append(f.images, container.Image{ID: fmt.Sprintf("sha256:%04d", i), RepoTags: []string{tag}})
	}
	return f
}

// SetOutput sets the log lines replayed by containers later created with name.
func (f *FakeRuntime) SetOutput(name string, lines ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.output[name] = lines
}

// Seed inserts a container directly, as if left over from an earlier process.
func (f *FakeRuntime) Seed(name string, state container.State) container.ContainerID {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.newContainer(container.ContainerConfig{Name: name, Image: "seeded"})
	c.summary.State = state
	if state != container.StateRunning && state != container.StateCreated {
		close(c.exited)
	}
	return c.summary.ID
}

// Exit stops a running container with the given exit code.
func (f *FakeRuntime) Exit(id container.ContainerID, code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.containers[id]; ok {
		f.stop(c, code)
	}
}

// Containers returns the containers currently registered under name.
func (f *FakeRuntime) Containers(name string) []container.Summary {
	list, _ := f.List(context.Background(), container.ListFilter{Name: name})
	return list
}

// Waiting reports whether some caller is blocked in Wait on id.
func (f *FakeRuntime) Waiting(id container.ContainerID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.waiting[id] > 0
}

// Created returns every configuration passed to Create, in order.
func (f *FakeRuntime) Created() []container.ContainerConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]container.ContainerConfig(nil), f.created...)
}

// Removed returns the IDs removed so far, in order.
func (f *FakeRuntime) Removed() []container.ContainerID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]container.ContainerID(nil), f.removed...)
}

func (f *FakeRuntime) Images(ctx context.Context) ([]container.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ImagesErr != nil {
		return nil, f.ImagesErr
	}
	return append([]container.Image(nil), f.images...), nil
}

func (f *FakeRuntime) List(ctx context.Context, filter container.ListFilter) ([]container.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ListErr != nil {
		return nil, f.ListErr
	}

	var matched []*fakeContainer
	for _, c := range f.containers {
		if filter.Matches(c.summary) {
			matched = append(matched, c)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].order < matched[j].order })

	list := make([]container.Summary, 0, len(matched))
	for _, c := range matched {
		list = append(list, c.summary)
	}
	return list, nil
}

func (f *FakeRuntime) Create(ctx context.Context, cfg container.ContainerConfig) (container.ContainerID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		if err := f.CreateErr(cfg); err != nil {
			return "", err
		}
	}
	for _, c := range f.containers {
		if c.summary.Name == cfg.Name {
			return "", fmt.Errorf("Conflict. The container name %q is already in use by container %q", "/"+cfg.Name, c.summary.ID)
		}
	}
	f.created = append(f.created, cfg)
	return f.newContainer(cfg).summary.ID, nil
}

func (f *FakeRuntime) Start(ctx context.Context, id container.ContainerID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StartErr != nil {
		if err := f.StartErr(id); err != nil {
			return err
		}
	}
	c, ok := f.containers[id]
	if !ok {
		return fmt.Errorf("No such container: %s", id)
	}
	c.summary.State = container.StateRunning
	c.summary.Status = "Up Less than a second"
	return nil
}

func (f *FakeRuntime) Wait(ctx context.Context, id container.ContainerID) (int, error) {
	f.mu.Lock()
	if f.WaitErr != nil {
		if err := f.WaitErr(id); err != nil {
			f.mu.Unlock()
			return -1, err
		}
	}
	c, ok := f.containers[id]
	if ok {
		if f.waiting == nil {
			f.waiting = make(map[container.ContainerID]int)
		}
		f.waiting[id]++
	}
	f.mu.Unlock()
	if !ok {
		return -1, fmt.Errorf("No such container: %s", id)
	}
	defer func() {
		f.mu.Lock()
		f.waiting[id]--
		f.mu.Unlock()
	}()

	select {
	case <-c.exited:
		f.mu.Lock()
		defer f.mu.Unlock()
		return c.exitCode, nil
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

func (f *FakeRuntime) Logs(ctx context.Context, id container.ContainerID) (io.ReadCloser, error) {
	f.mu.Lock()
	c, ok := f.containers[id]
	var lines []string
	if ok {
		lines = f.output[c.summary.Name]
	}
	f.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("No such container: %s", id)
	}

	pr, pw := io.Pipe()
	go func() {
		for _, line := range lines {
			if _, err := io.WriteString(pw, line+"\n"); err != nil {
				return
			}
		}
		select {
		case <-c.exited:
			_ = pw.Close()
		case <-ctx.Done():
			pw.CloseWithError(ctx.Err())
		}
	}()
	return pr, nil
}

func (f *FakeRuntime) Remove(ctx context.Context, id container.ContainerID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RemoveErr != nil {
		if err := f.RemoveErr(id); err != nil {
			return err
		}
	}
	c, ok := f.containers[id]
	if !ok {
		return nil
	}
	f.stop(c, 137)
	delete(f.containers, id)
	f.removed = append(f.removed, id)
	return nil
}

// newContainer registers a container in the created state. Caller holds mu.
func (f *FakeRuntime) newContainer(cfg container.ContainerConfig) *fakeContainer {
	f.seq++
	id := container.ContainerID(fmt.Sprintf("%064d", f.seq))
	c := &fakeContainer{
		summary: container.Summary{
			ID:      id,
			Name:    cfg.Name,
			Image:   cfg.Image,
			State:   container.StateCreated,
			Status:  "Created",
			Created: time.Now().UTC(),
		},
		cfg:    cfg,
		exited: make(chan struct{}),
		order:  f.seq,
	}
	f.containers[id] = c
	return c
}

// stop moves a live container to exited. Caller holds mu.
func (f *FakeRuntime) stop(c *fakeContainer, code int) {
	select {
	case <-c.exited:
		return
	default:
	}
	c.exitCode = code
	c.summary.State = container.StateExited
	c.summary.Status = fmt.Sprintf("Exited (%d) Less than a second ago", code)
	close(c.exited)
}

