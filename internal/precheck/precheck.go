// Package precheck verifies that a run's required network dependency is
// reachable before any workspace or container is allocated for it.
package precheck

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// ErrUnreachable is returned when any endpoint of the dependency cannot be
// parsed, dialed or written to.
var ErrUnreachable = errors.New("dependency unreachable")

// DefaultTimeout bounds each endpoint's connect attempt.
const DefaultTimeout = time.Second

// probePayload is written to every endpoint once connected.
var probePayload = []byte("1010")

// Checker dials a comma-separated list of host:port endpoints in sequence.
type Checker struct {
	Timeout time.Duration

	dial func(ctx context.Context, network, addr string) (net.Conn, error)
}

// New returns a Checker with the given per-endpoint timeout.
// A non-positive timeout uses DefaultTimeout.
func New(timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	d := &net.Dialer{}
	return &Checker{Timeout: timeout, dial: d.DialContext}
}

// Check succeeds only if every endpoint in the list accepts a connection
// and the probe write. It stops at the first failure. An empty list fails.
func (c *Checker) Check(ctx context.Context, endpoints string) error {
	addrs, err := ParseEndpoints(endpoints)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	for _, addr := range addrs {
		if err := c.probe(ctx, addr); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrUnreachable, addr, err)
		}
	}
	return nil
}

func (c *Checker) probe(ctx context.Context, addr string) error {
	dialCtx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	conn, err := c.dial(dialCtx, "tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	_ = conn.SetWriteDeadline(time.Now().Add(c.Timeout))
	if _, err := conn.Write(probePayload); err != nil {
		return fmt.Errorf("write probe: %w", err)
	}
	return nil
}

// ParseEndpoints splits "h1:p1,h2:p2" into validated host:port addresses.
// Blank entries are skipped.
func ParseEndpoints(raw string) ([]string, error) {
	var addrs []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		host, port, err := net.SplitHostPort(part)
		if err != nil {
			return nil, fmt.Errorf("invalid endpoint %q: %w", part, err)
		}
		if host == "" {
			return nil, fmt.Errorf("invalid endpoint %q: missing host", part)
		}
		if n, err := strconv.Atoi(port); err != nil || n < 1 || n > 65535 {
			return nil, fmt.Errorf("invalid endpoint %q: bad port", part)
		}
		addrs = append(addrs, net.JoinHostPort(host, port))
	}
	if len(addrs) == 0 {
		return nil, errors.New("no endpoints configured")
	}
	return addrs, nil
}
