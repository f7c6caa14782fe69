package client

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RevCBH/loadnode/internal/api"
	"github.com/RevCBH/loadnode/internal/events"
)

func TestClient_Events(t *testing.T) {
	hub := events.NewHub()
	go hub.Run()
	defer hub.Stop()

	srv := httptest.NewServer(api.NewRouter(&fakeNode{}, api.Options{
		Events: hub,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}))
	defer srv.Close()

	c, err := New(srv.URL)
	require.NoError(t, err)

	got := make(chan events.Event, 4)
	errCh := make(chan error, 1)
	go func() {
		errCh <- c.Events(context.Background(), "load-1", func(e events.Event) { got <- e })
	}()

	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 5*time.Millisecond)
	code := 0
	hub.Publish(events.Event{Type: events.RunExited, RunID: "load-1", ExitCode: &code})

	select {
	case e := <-got:
		assert.Equal(t, events.RunExited, e.Type)
		require.NotNil(t, e.ExitCode)
		assert.Equal(t, 0, *e.ExitCode)
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}

	// Stopping the hub ends the stream cleanly.
	hub.Stop()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end")
	}
}

func TestClient_EventsDisabled(t *testing.T) {
	c, _ := newTestClient(t)
	err := c.Events(context.Background(), "", func(events.Event) {})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.Code)
}
