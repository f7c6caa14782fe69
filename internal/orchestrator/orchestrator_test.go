package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RevCBH/loadnode/internal/artifact"
	"github.com/RevCBH/loadnode/internal/container"
	"github.com/RevCBH/loadnode/internal/precheck"
	"github.com/RevCBH/loadnode/internal/testutil"
	"github.com/RevCBH/loadnode/internal/workspace"
)

const testImage = "jmeter-master:5.4.1"

type precheckFunc func(ctx context.Context, endpoints string) error

func (f precheckFunc) Check(ctx context.Context, endpoints string) error {
	return f(ctx, endpoints)
}

var reachable = precheckFunc(func(context.Context, string) error { return nil })

type harness struct {
	root    string
	runtime *testutil.FakeRuntime
	orch    *Orchestrator
	logs    *syncBuffer
}

func newHarness(t *testing.T, check Prechecker, tags ...string) *harness {
	t.Helper()
	root := t.TempDir()
	rt := testutil.NewFakeRuntime(tags...)
	logs := &syncBuffer{}
	logger := slog.New(slog.NewTextHandler(logs, nil))

	o := New(Config{Heap: "-Xmx512m"}, Deps{
		Runtime:    rt,
		Precheck:   check,
		Workspaces: workspace.NewManager(root),
		Artifacts:  artifact.NewStore(root, logger),
		Logger:     logger,
	})
	t.Cleanup(o.Close)
	return &harness{root: root, runtime: rt, orch: o, logs: logs}
}

func testRequest(runID string) RunRequest {
	return RunRequest{
		RunID: runID,
		Image: testImage,
		Env: map[string]string{
			DefaultDependencyEnvKey: "127.0.0.1:9092",
			"RATIO":                 "1",
		},
		TestDefinition: "<jmeterTestPlan/>",
		DataFiles:      map[string]string{"users.csv": "alice,bob"},
		BinaryFiles:    map[string][]byte{"plugin.jar": {0xca, 0xfe, 0xba, 0xbe}},
	}
}

func waitDone(t *testing.T, h *Handle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("reactor for %s did not finish", h.RunID)
	}
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestStart_PreparesWorkspaceAndLaunches(t *testing.T) {
	h := newHarness(t, reachable, testImage)
	req := testRequest("load-1")

	require.NoError(t, h.orch.Start(context.Background(), req))

	dir := filepath.Join(h.root, "load-1")
	assert.Equal(t, []string{"load-1.jmx", "plugin.jar", "users.csv"}, listDir(t, dir))

	def, err := os.ReadFile(filepath.Join(dir, "load-1.jmx"))
	require.NoError(t, err)
	assert.Equal(t, req.TestDefinition, string(def))
	data, err := os.ReadFile(filepath.Join(dir, "users.csv"))
	require.NoError(t, err)
	assert.Equal(t, "alice,bob", string(data))
	bin, err := os.ReadFile(filepath.Join(dir, "plugin.jar"))
	require.NoError(t, err)
	assert.Equal(t, req.BinaryFiles["plugin.jar"], bin)

	created := h.runtime.Created()
	require.Len(t, created, 1)
	cfg := created[0]
	assert.Equal(t, "load-1", cfg.Name)
	assert.Equal(t, testImage, cfg.Image)
	assert.Equal(t, "-Xmx512m", cfg.Env[HeapEnv])
	assert.Equal(t, "1", cfg.Env["RATIO"])
	assert.Equal(t, []container.Bind{{Source: dir, Target: container.MountPath}}, cfg.Binds)
	_, injected := req.Env[HeapEnv]
	assert.False(t, injected, "caller env must not be mutated")

	list := h.runtime.Containers("load-1")
	require.Len(t, list, 1)
	assert.Equal(t, container.StateRunning, list[0].State)
}

func TestStart_ReactorCleansUpOnExit(t *testing.T) {
	for _, code := range []int{0, 1} {
		h := newHarness(t, reachable, testImage)
		require.NoError(t, h.orch.Start(context.Background(), testRequest("load-1")))

		run, ok := h.orch.Run("load-1")
		require.True(t, ok)
		assert.Equal(t, ReactorRunning, run.State())
		assert.Equal(t, -1, run.ExitCode())

		h.runtime.Exit(run.ContainerID, code)
		waitDone(t, run)

		assert.Equal(t, ReactorDone, run.State())
		assert.Equal(t, code, run.ExitCode())
		assert.NoDirExists(t, filepath.Join(h.root, "load-1"))
		assert.Empty(t, h.runtime.Containers("load-1"))
		_, ok = h.orch.Run("load-1")
		assert.False(t, ok)
	}
}

func TestStart_StopThenReactorIsIdempotent(t *testing.T) {
	h := newHarness(t, reachable, testImage)
	require.NoError(t, h.orch.Start(context.Background(), testRequest("load-1")))
	run, _ := h.orch.Run("load-1")
	require.Eventually(t, func() bool { return h.runtime.Waiting(run.ContainerID) }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, h.orch.Stop(context.Background(), "load-1"))
	waitDone(t, run)

	assert.Equal(t, 137, run.ExitCode())
	assert.NoDirExists(t, run.Workspace)
	assert.Empty(t, h.runtime.Containers("load-1"))
	assert.Equal(t, []container.ContainerID{run.ContainerID}, h.runtime.Removed())
}

func TestStart_EvictsStaleContainers(t *testing.T) {
	h := newHarness(t, reachable, testImage)
	exited := h.runtime.Seed("load-1", container.StateExited)
	running := h.runtime.Seed("load-1", container.StateRunning)
	dead := h.runtime.Seed("load-1", container.StateDead)
	removing := h.runtime.Seed("load-1", container.StateRemoving)

	require.NoError(t, h.orch.Start(context.Background(), testRequest("load-1")))

	assert.ElementsMatch(t, []container.ContainerID{exited, running, dead, removing}, h.runtime.Removed())
	list := h.runtime.Containers("load-1")
	require.Len(t, list, 1)
	assert.NotContains(t, []container.ContainerID{exited, running, dead, removing}, list[0].ID)
}

func TestStart_EvictionFailureAborts(t *testing.T) {
	h := newHarness(t, reachable, testImage)
	h.runtime.Seed("load-1", container.StateExited)
	h.runtime.RemoveErr = func(container.ContainerID) error { return errors.New("device busy") }

	err := h.orch.Start(context.Background(), testRequest("load-1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device busy")
	assert.NoDirExists(t, filepath.Join(h.root, "load-1"))
	assert.Empty(t, h.runtime.Created())
}

func TestStart_RestartKeepsNewWorkspace(t *testing.T) {
	h := newHarness(t, reachable, testImage)
	require.NoError(t, h.orch.Start(context.Background(), testRequest("load-1")))
	first, _ := h.orch.Run("load-1")

	req := testRequest("load-1")
	req.DataFiles = nil
	require.NoError(t, h.orch.Start(context.Background(), req))
	waitDone(t, first)

	second, ok := h.orch.Run("load-1")
	require.True(t, ok)
	assert.NotEqual(t, first.LaunchID, second.LaunchID)
	assert.Equal(t, []string{"load-1.jmx", "plugin.jar"}, listDir(t, second.Workspace))

	list := h.runtime.Containers("load-1")
	require.Len(t, list, 1)
	assert.Equal(t, second.ContainerID, list[0].ID)
}

func TestStart_ConcurrentSameRunID(t *testing.T) {
	h := newHarness(t, reachable, testImage)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = h.orch.Start(context.Background(), testRequest("load-1"))
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Len(t, h.runtime.Created(), 2)

	list := h.runtime.Containers("load-1")
	require.Len(t, list, 1)
	assert.Equal(t, container.StateRunning, list[0].State)

	run, ok := h.orch.Run("load-1")
	require.True(t, ok)
	assert.Equal(t, list[0].ID, run.ContainerID)
	assert.DirExists(t, run.Workspace)
}

func TestStart_UnreachableDependencyCreatesNothing(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	h := newHarness(t, precheck.New(time.Second), testImage)
	req := testRequest("load-1")
	req.Env[DefaultDependencyEnvKey] = addr

	err = h.orch.Start(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, precheck.ErrUnreachable)
	assert.True(t, IsPrecondition(err))
	assert.NoDirExists(t, filepath.Join(h.root, "load-1"))
	assert.Empty(t, h.runtime.Created())
}

func TestStart_MissingDependencyEnvFails(t *testing.T) {
	h := newHarness(t, precheck.New(time.Second), testImage)
	req := testRequest("load-1")
	delete(req.Env, DefaultDependencyEnvKey)

	err := h.orch.Start(context.Background(), req)
	assert.ErrorIs(t, err, precheck.ErrUnreachable)
	assert.Empty(t, h.runtime.Created())
}

func TestStart_ImageResolution(t *testing.T) {
	t.Run("empty catalog", func(t *testing.T) {
		h := newHarness(t, reachable)
		err := h.orch.Start(context.Background(), testRequest("load-1"))
		assert.ErrorIs(t, err, ErrImageCatalogEmpty)
		assert.NotErrorIs(t, err, ErrImageNotFound)
		assert.NoDirExists(t, filepath.Join(h.root, "load-1"))
	})

	t.Run("image not found", func(t *testing.T) {
		h := newHarness(t, reachable, "jmeter-master:5.5")
		err := h.orch.Start(context.Background(), testRequest("load-1"))
		assert.ErrorIs(t, err, ErrImageNotFound)
		assert.NotErrorIs(t, err, ErrImageCatalogEmpty)
		assert.True(t, IsPrecondition(err))
		assert.NoDirExists(t, filepath.Join(h.root, "load-1"))
	})

	t.Run("exact tag only", func(t *testing.T) {
		h := newHarness(t, reachable, "registry.local/jmeter-master:5.4.1")
		err := h.orch.Start(context.Background(), testRequest("load-1"))
		assert.ErrorIs(t, err, ErrImageNotFound)
	})
}

func TestStart_InvalidRequest(t *testing.T) {
	h := newHarness(t, reachable, testImage)
	for _, id := range []string{"", "../escape", "a/b", " load"} {
		err := h.orch.Start(context.Background(), testRequest(id))
		assert.ErrorIs(t, err, ErrInvalidRequest, "run id %q", id)
	}

	req := testRequest("load-1")
	req.Image = " "
	assert.ErrorIs(t, h.orch.Start(context.Background(), req), ErrInvalidRequest)
	assert.Empty(t, h.runtime.Created())
}

func TestStart_LaunchFailureRollsBack(t *testing.T) {
	t.Run("create", func(t *testing.T) {
		h := newHarness(t, reachable, testImage)
		h.runtime.CreateErr = func(container.ContainerConfig) error { return errors.New("no space left") }

		err := h.orch.Start(context.Background(), testRequest("load-1"))
		var launchErr *LaunchError
		require.ErrorAs(t, err, &launchErr)
		assert.Equal(t, "create", launchErr.Op)
		assert.False(t, IsPrecondition(err))
		assert.NoDirExists(t, filepath.Join(h.root, "load-1"))

		h.runtime.CreateErr = nil
		require.NoError(t, h.orch.Start(context.Background(), testRequest("load-1")))
		assert.DirExists(t, filepath.Join(h.root, "load-1"))
	})

	t.Run("start", func(t *testing.T) {
		h := newHarness(t, reachable, testImage)
		h.runtime.StartErr = func(container.ContainerID) error { return errors.New("oci runtime error") }

		err := h.orch.Start(context.Background(), testRequest("load-1"))
		var launchErr *LaunchError
		require.ErrorAs(t, err, &launchErr)
		assert.Equal(t, "start", launchErr.Op)
		assert.NoDirExists(t, filepath.Join(h.root, "load-1"))
		assert.Empty(t, h.runtime.Containers("load-1"))
	})
}

func TestReactor_CleanupFailuresAreSwallowed(t *testing.T) {
	h := newHarness(t, reachable, testImage)
	require.NoError(t, h.orch.Start(context.Background(), testRequest("load-1")))
	run, _ := h.orch.Run("load-1")

	h.runtime.RemoveErr = func(container.ContainerID) error { return errors.New("removal refused") }
	h.runtime.Exit(run.ContainerID, 0)
	waitDone(t, run)

	assert.NoDirExists(t, run.Workspace)
	require.Len(t, h.runtime.Containers("load-1"), 1)
	assert.Contains(t, h.logs.String(), "failed to remove container")
}

func TestReactor_WaitErrorWhileRunningRetries(t *testing.T) {
	h := newHarness(t, reachable, testImage)
	h.orch.cfg.WaitRetry = time.Millisecond
	var calls int
	h.runtime.WaitErr = func(container.ContainerID) error {
		calls++
		if calls <= 2 {
			return errors.New("error during connect: EOF")
		}
		return nil
	}

	require.NoError(t, h.orch.Start(context.Background(), testRequest("load-1")))
	run, _ := h.orch.Run("load-1")
	require.Eventually(t, func() bool { return h.runtime.Waiting(run.ContainerID) }, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, ReactorRunning, run.State())
	assert.DirExists(t, run.Workspace)
	assert.Empty(t, h.runtime.Removed())
	list := h.runtime.Containers("load-1")
	require.Len(t, list, 1)
	assert.Equal(t, container.StateRunning, list[0].State)
	assert.Contains(t, h.logs.String(), "wait for container failed, retrying")

	h.runtime.Exit(run.ContainerID, 0)
	waitDone(t, run)

	assert.Equal(t, 0, run.ExitCode())
	assert.NoDirExists(t, run.Workspace)
	assert.Empty(t, h.runtime.Containers("load-1"))
}

func TestReactor_WaitErrorAfterExitCleansUp(t *testing.T) {
	h := newHarness(t, reachable, testImage)
	h.orch.cfg.WaitRetry = time.Millisecond
	h.runtime.WaitErr = func(container.ContainerID) error { return errors.New("error during connect: EOF") }

	require.NoError(t, h.orch.Start(context.Background(), testRequest("load-1")))
	run, _ := h.orch.Run("load-1")
	h.runtime.Exit(run.ContainerID, 3)
	waitDone(t, run)

	assert.Equal(t, ReactorDone, run.State())
	assert.Equal(t, -1, run.ExitCode())
	assert.NoDirExists(t, run.Workspace)
	assert.Empty(t, h.runtime.Containers("load-1"))
}

func TestReactor_ContainerGoneBeforeWait(t *testing.T) {
	h := newHarness(t, reachable, testImage)
	h.runtime.WaitErr = func(container.ContainerID) error { return errors.New("No such container") }

	require.NoError(t, h.orch.Start(context.Background(), testRequest("load-1")))
	run, _ := h.orch.Run("load-1")
	require.NoError(t, h.runtime.Remove(context.Background(), run.ContainerID))
	waitDone(t, run)

	assert.Equal(t, ReactorDone, run.State())
	assert.NoDirExists(t, run.Workspace)
}

func TestClose_LeavesRunsInPlace(t *testing.T) {
	h := newHarness(t, reachable, testImage)
	require.NoError(t, h.orch.Start(context.Background(), testRequest("load-1")))
	run, _ := h.orch.Run("load-1")

	h.orch.Close()
	waitDone(t, run)

	assert.Equal(t, ReactorRunning, run.State())
	assert.Equal(t, -1, run.ExitCode())
	assert.DirExists(t, run.Workspace)
	assert.Len(t, h.runtime.Containers("load-1"), 1)
}

func TestStop(t *testing.T) {
	h := newHarness(t, reachable, testImage)

	assert.NoError(t, h.orch.Stop(context.Background(), "missing"))
	assert.ErrorIs(t, h.orch.Stop(context.Background(), ""), ErrInvalidRequest)

	exited := h.runtime.Seed("load-2", container.StateExited)
	assert.NoError(t, h.orch.Stop(context.Background(), "load-2"))
	assert.NotContains(t, h.runtime.Removed(), exited)

	h.runtime.Seed("load-3", container.StateRunning)
	h.runtime.ListErr = errors.New("daemon gone")
	assert.Error(t, h.orch.Stop(context.Background(), "load-3"))
}

func TestStatus(t *testing.T) {
	h := newHarness(t, reachable, testImage)

	list, err := h.orch.Status(context.Background(), "load-1")
	require.NoError(t, err)
	assert.Empty(t, list)

	exited := h.runtime.Seed("load-1", container.StateExited)
	require.NoError(t, h.orch.Start(context.Background(), testRequest("load-2")))
	h.runtime.Seed("load-1x", container.StateRunning)

	list, err = h.orch.Status(context.Background(), "load-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, exited, list[0].ID)
	assert.Equal(t, container.StateExited, list[0].State)

	_, err = h.orch.Status(context.Background(), "bad/id")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestLogs_Snapshot(t *testing.T) {
	h := newHarness(t, reachable, testImage)
	h.runtime.SetOutput("load-1", "  summary =  10 in 1s  ", "", "\tTidying up ...")

	assert.Empty(t, h.orch.Logs(context.Background(), "load-1"))

	require.NoError(t, h.orch.Start(context.Background(), testRequest("load-1")))

	began := time.Now()
	out := h.orch.Logs(context.Background(), "load-1")
	assert.Equal(t, "summary =  10 in 1s\nTidying up ...\n", out)
	assert.Less(t, time.Since(began), 2*time.Second)

	assert.Empty(t, h.orch.Logs(context.Background(), ""))
}

func TestLogs_RelayForwardsLines(t *testing.T) {
	h := newHarness(t, reachable, testImage)
	h.runtime.SetOutput("load-1", "Creating summariser <summary>", "   ")

	require.NoError(t, h.orch.Start(context.Background(), testRequest("load-1")))

	assert.Eventually(t, func() bool {
		return bytes.Contains([]byte(h.logs.String()), []byte(`msg="Creating summariser <summary>" source=container run_id=load-1`))
	}, 2*time.Second, 10*time.Millisecond)
}

func TestLogs_RelayReportsOverlongLine(t *testing.T) {
	h := newHarness(t, reachable, testImage)
	h.runtime.SetOutput("load-1", string(bytes.Repeat([]byte("x"), maxLogLine+1)))

	require.NoError(t, h.orch.Start(context.Background(), testRequest("load-1")))

	assert.Eventually(t, func() bool {
		out := h.logs.String()
		return strings.Contains(out, "log relay stopped") && strings.Contains(out, "token too long")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestArtifacts(t *testing.T) {
	h := newHarness(t, reachable, testImage)

	assert.False(t, h.orch.DeleteArtifact("report-1"))
	assert.Empty(t, h.orch.FetchArtifact("report-1"))

	path := filepath.Join(h.root, "report-1.jtl")
	require.NoError(t, os.WriteFile(path, []byte("timeStamp,elapsed\n"), 0o644))
	assert.Equal(t, []byte("timeStamp,elapsed\n"), h.orch.FetchArtifact("report-1"))

	assert.True(t, h.orch.DeleteArtifact("report-1"))
	assert.Empty(t, h.orch.FetchArtifact("report-1"))
	assert.False(t, h.orch.DeleteArtifact("report-1"))
}

func TestKeyedMutex(t *testing.T) {
	var k keyedMutex
	unlockA := k.Lock("a")
	unlockB := k.Lock("b")

	acquired := make(chan struct{})
	go func() {
		unlock := k.Lock("a")
		close(acquired)
		unlock()
	}()

	select {
	case <-acquired:
		t.Fatal("second lock on the same key acquired while held")
	case <-time.After(50 * time.Millisecond):
	}

	unlockA()
	<-acquired
	unlockB()

	k.mu.Lock()
	defer k.mu.Unlock()
	assert.Empty(t, k.entries)
}

// syncBuffer is a bytes.Buffer safe for the concurrent writes of the relay.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

var _ io.Writer = (*syncBuffer)(nil)
