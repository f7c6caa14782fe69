package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RevCBH/loadnode/internal/api"
	"github.com/RevCBH/loadnode/internal/container"
	"github.com/RevCBH/loadnode/internal/events"
	"github.com/RevCBH/loadnode/internal/orchestrator"
)

type stubNode struct {
	stopped []string
	reports map[string][]byte
}

func (s *stubNode) Start(context.Context, orchestrator.RunRequest) error { return nil }

func (s *stubNode) Stop(_ context.Context, runID string) error {
	s.stopped = append(s.stopped, runID)
	return nil
}

func (s *stubNode) Status(_ context.Context, runID string) ([]container.Summary, error) {
	if runID == "idle" {
		return nil, nil
	}
	return []container.Summary{{ID: "abcdef", Name: runID, State: container.StateRunning, Status: "Up 1 second"}}, nil
}

func (s *stubNode) Logs(context.Context, string) string { return "summary + 10\n" }

func (s *stubNode) FetchArtifact(id string) []byte { return s.reports[id] }

func (s *stubNode) DeleteArtifact(id string) bool {
	_, ok := s.reports[id]
	delete(s.reports, id)
	return ok
}

func runCLI(t *testing.T, node *stubNode, args ...string) (string, error) {
	t.Helper()
	srv := httptest.NewServer(api.NewRouter(node, api.Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}))
	t.Cleanup(srv.Close)

	app := New()
	out := new(bytes.Buffer)
	app.rootCmd.SetOut(out)
	app.rootCmd.SetErr(io.Discard)
	app.rootCmd.SetArgs(append([]string{"--node", srv.URL}, args...))
	err := app.Execute()
	return out.String(), err
}

func TestStatusCmd(t *testing.T) {
	out, err := runCLI(t, &stubNode{}, "status", "load-1")
	require.NoError(t, err)
	assert.Contains(t, out, "abcdef")
	assert.Contains(t, out, "running")

	out, err = runCLI(t, &stubNode{}, "status", "idle")
	require.NoError(t, err)
	assert.Equal(t, "no containers named idle\n", out)

	out, err = runCLI(t, &stubNode{}, "status", "--json", "load-1")
	require.NoError(t, err)
	assert.Contains(t, out, `"state": "running"`)
}

func TestLogsCmd(t *testing.T) {
	out, err := runCLI(t, &stubNode{}, "logs", "load-1")
	require.NoError(t, err)
	assert.Equal(t, "summary + 10\n", out)
}

func TestStopCmd(t *testing.T) {
	node := &stubNode{}
	out, err := runCLI(t, node, "stop", "load-1")
	require.NoError(t, err)
	assert.Equal(t, "stopped load-1\n", out)
	assert.Equal(t, []string{"load-1"}, node.stopped)

	_, err = runCLI(t, node, "stop", "bad..id/x")
	assert.Error(t, err)
}

func TestJTLCmds(t *testing.T) {
	node := &stubNode{reports: map[string][]byte{"rep-1": []byte("timeStamp\n")}}
	dir := t.TempDir()

	out, err := runCLI(t, node, "jtl", "get", "rep-1", "-o", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "rep-1.jtl")
	data, err := os.ReadFile(filepath.Join(dir, "rep-1.jtl"))
	require.NoError(t, err)
	assert.Equal(t, "timeStamp\n", string(data))

	out, err = runCLI(t, node, "jtl", "rm", "rep-1")
	require.NoError(t, err)
	assert.Equal(t, "deleted rep-1.jtl\n", out)

	_, err = runCLI(t, node, "jtl", "rm", "rep-1")
	assert.Error(t, err)
	_, err = runCLI(t, node, "jtl", "get", "rep-1", "-o", dir)
	assert.Error(t, err)
}

func TestEventsCmd(t *testing.T) {
	hub := events.NewHub()
	go hub.Run()
	defer hub.Stop()

	srv := httptest.NewServer(api.NewRouter(&stubNode{}, api.Options{
		Events: hub,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}))
	defer srv.Close()

	app := New()
	out := new(bytes.Buffer)
	app.rootCmd.SetOut(out)
	app.rootCmd.SetErr(io.Discard)
	app.rootCmd.SetArgs([]string{"--node", srv.URL, "events", "--json", "load-1"})

	errCh := make(chan error, 1)
	go func() { errCh <- app.Execute() }()

	require.Eventually(t, func() bool { return hub.Count() == 1 }, 2*time.Second, 5*time.Millisecond)
	hub.Publish(events.Event{Type: events.RunStarted, RunID: "load-1", ContainerID: "abc"})
	hub.Publish(events.Event{Type: events.RunStarted, RunID: "other"})
	time.Sleep(50 * time.Millisecond)
	hub.Stop()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("events command did not return")
	}
	assert.Contains(t, out.String(), `"type":"run.started"`)
	assert.Contains(t, out.String(), `"run_id":"load-1"`)
	assert.NotContains(t, out.String(), `"other"`)
}

func TestEventsCmd_Disabled(t *testing.T) {
	_, err := runCLI(t, &stubNode{}, "events")
	assert.Error(t, err)
}
