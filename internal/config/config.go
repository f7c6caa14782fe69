// Package config resolves the load node settings once at startup.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Runtime backend names.
const (
	BackendAPI    = "api"
	BackendDocker = "docker"
	BackendPodman = "podman"
	BackendAuto   = "auto"
)

// Config holds all configuration for a load node.
// It is immutable after creation via LoadConfig().
type Config struct {
	// DataRoot holds every run workspace (<root>/<runId>/) and every
	// result file (<root>/<reportId>.jtl)
	DataRoot string `yaml:"data_root" toml:"data_root"`

	// Heap is passed to each run container as HEAP
	Heap string `yaml:"heap" toml:"heap"`

	// ListenAddr is the HTTP API address
	ListenAddr string `yaml:"listen_addr" toml:"listen_addr"`

	// AllowedOrigins enables CORS for browser callers when non-empty
	AllowedOrigins []string `yaml:"allowed_origins,omitempty" toml:"allowed_origins,omitempty"`

	// Runtime selects the container engine client
	Runtime RuntimeConfig `yaml:"runtime" toml:"runtime"`

	// Precheck controls the dependency reachability check
	Precheck PrecheckConfig `yaml:"precheck" toml:"precheck"`

	// Logs controls on-demand log capture
	Logs LogsConfig `yaml:"logs" toml:"logs"`

	// Telemetry controls OpenTelemetry signals
	Telemetry TelemetryConfig `yaml:"telemetry" toml:"telemetry"`

	// LogLevel controls log verbosity (debug, info, warn, error)
	LogLevel string `yaml:"log_level" toml:"log_level"`
}

// RuntimeConfig selects and addresses the container engine.
type RuntimeConfig struct {
	// Backend is "api" (Engine API), "docker" or "podman" (CLI), or "auto"
	Backend string `yaml:"backend" toml:"backend"`

	// DockerHost overrides DOCKER_HOST for the api backend
	DockerHost string `yaml:"docker_host,omitempty" toml:"docker_host,omitempty"`

	// MountPath is where the workspace appears inside a run container
	MountPath string `yaml:"mount_path" toml:"mount_path"`
}

// PrecheckConfig controls the reachability precheck.
type PrecheckConfig struct {
	// EnvKey names the request env entry holding the endpoint list
	EnvKey string `yaml:"env_key" toml:"env_key"`

	// Timeout is the per-endpoint connect timeout
	Timeout string `yaml:"timeout" toml:"timeout"`
}

// LogsConfig controls log snapshots.
type LogsConfig struct {
	// SnapshotWindow bounds how long a log request collects output
	SnapshotWindow string `yaml:"snapshot_window" toml:"snapshot_window"`
}

// TelemetryConfig controls which OpenTelemetry signals are produced.
type TelemetryConfig struct {
	Metrics     bool   `yaml:"metrics" toml:"metrics"`
	Traces      bool   `yaml:"traces" toml:"traces"`
	ServiceName string `yaml:"service_name" toml:"service_name"`
}

// PrecheckTimeoutDuration parses the precheck timeout as a Duration.
func (c *Config) PrecheckTimeoutDuration() (time.Duration, error) {
	return time.ParseDuration(c.Precheck.Timeout)
}

// SnapshotWindowDuration parses the log snapshot window as a Duration.
func (c *Config) SnapshotWindowDuration() (time.Duration, error) {
	return time.ParseDuration(c.Logs.SnapshotWindow)
}

// LoadConfig loads configuration from path.
// It applies defaults, then file values, then environment overrides,
// then resolves the data root and validates.
//
// An empty path skips the file. A path that does not exist is not an error.
// Files ending in .toml are parsed as TOML, everything else as YAML.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := decode(path, data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if cfg.DataRoot != "" {
		abs, err := filepath.Abs(cfg.DataRoot)
		if err != nil {
			return nil, fmt.Errorf("resolve data_root: %w", err)
		}
		cfg.DataRoot = abs
	}

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return toml.Unmarshal(data, cfg)
	}
	return yaml.Unmarshal(data, cfg)
}
