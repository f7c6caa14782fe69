// Package client talks to a running load node over its HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/RevCBH/loadnode/internal/api"
	"github.com/RevCBH/loadnode/internal/container"
)

// DefaultTimeout bounds every request unless the caller's context is shorter.
const DefaultTimeout = 30 * time.Second

// Client wraps an HTTP client bound to one node's base URL.
type Client struct {
	base *url.URL
	http *http.Client
}

// New creates a client for the node at addr. A bare host:port is treated
// as http://host:port.
func New(addr string) (*Client, error) {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("parse node address: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("parse node address: missing host in %q", addr)
	}
	return &Client{base: u, http: &http.Client{Timeout: DefaultTimeout}}, nil
}

// Close releases idle connections.
// It is safe to call Close multiple times.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// Start submits a run.
func (c *Client) Start(ctx context.Context, req api.StartRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodPost, "/jmeter/container/start", bytes.NewReader(body))
	return err
}

// Stop force-removes the run's running containers.
func (c *Client) Stop(ctx context.Context, runID string) error {
	_, err := c.do(ctx, http.MethodGet, "/jmeter/container/stop/"+url.PathEscape(runID), nil)
	return err
}

// Status lists the containers named runID.
func (c *Client) Status(ctx context.Context, runID string) ([]container.Summary, error) {
	data, err := c.do(ctx, http.MethodGet, "/jmeter/task/status/"+url.PathEscape(runID), nil)
	if err != nil {
		return nil, err
	}
	var list []container.Summary
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("decode status: %w", err)
	}
	return list, nil
}

// Logs returns the node's log snapshot for runID.
func (c *Client) Logs(ctx context.Context, runID string) (string, error) {
	data, err := c.do(ctx, http.MethodGet, "/jmeter/container/log/"+url.PathEscape(runID), nil)
	return string(data), err
}

// FetchArtifact downloads the report's result file. An empty result means
// the node has none.
func (c *Client) FetchArtifact(ctx context.Context, reportID string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, "/jmeter/download/jtl/"+url.PathEscape(reportID), nil)
}

// DeleteArtifact removes the report's result file and reports success.
func (c *Client) DeleteArtifact(ctx context.Context, reportID string) (bool, error) {
	data, err := c.do(ctx, http.MethodGet, "/jmeter/delete/jtl/"+url.PathEscape(reportID), nil)
	if err != nil {
		return false, err
	}
	var ok bool
	if err := json.Unmarshal(data, &ok); err != nil {
		return false, fmt.Errorf("decode delete result: %w", err)
	}
	return ok, nil
}

// Health checks the node's liveness endpoint.
func (c *Client) Health(ctx context.Context) (api.HealthResponse, error) {
	var resp api.HealthResponse
	data, err := c.do(ctx, http.MethodGet, "/status", nil)
	if err != nil {
		return resp, err
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return resp, fmt.Errorf("decode health: %w", err)
	}
	return resp, nil
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("node returned %d: %s", e.Code, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	u := c.base.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	}
	return data, nil
}
