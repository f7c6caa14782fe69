package config

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
)

// ValidationError contains details about what failed validation.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config.%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// validateConfig checks all config values for validity.
// Returns nil if valid, or joined errors for all validation failures.
func validateConfig(cfg *Config) error {
	var errs []error

	if cfg.DataRoot == "" {
		errs = append(errs, &ValidationError{
			Field:   "data_root",
			Value:   cfg.DataRoot,
			Message: "must not be empty",
		})
	}

	if strings.TrimSpace(cfg.Heap) == "" {
		errs = append(errs, &ValidationError{
			Field:   "heap",
			Value:   cfg.Heap,
			Message: "must not be empty",
		})
	}

	if cfg.ListenAddr == "" {
		errs = append(errs, &ValidationError{
			Field:   "listen_addr",
			Value:   cfg.ListenAddr,
			Message: "must not be empty",
		})
	}

	switch cfg.Runtime.Backend {
	case BackendAPI, BackendDocker, BackendPodman, BackendAuto:
	default:
		errs = append(errs, &ValidationError{
			Field:   "runtime.backend",
			Value:   cfg.Runtime.Backend,
			Message: "must be one of: api, docker, podman, auto",
		})
	}

	// Container paths are always slash-separated.
	if !path.IsAbs(cfg.Runtime.MountPath) {
		errs = append(errs, &ValidationError{
			Field:   "runtime.mount_path",
			Value:   cfg.Runtime.MountPath,
			Message: "must be an absolute container path",
		})
	}

	if cfg.Precheck.EnvKey == "" {
		errs = append(errs, &ValidationError{
			Field:   "precheck.env_key",
			Value:   cfg.Precheck.EnvKey,
			Message: "must not be empty",
		})
	}

	if d, err := time.ParseDuration(cfg.Precheck.Timeout); err != nil {
		errs = append(errs, &ValidationError{
			Field:   "precheck.timeout",
			Value:   cfg.Precheck.Timeout,
			Message: fmt.Sprintf("invalid duration: %v", err),
		})
	} else if d <= 0 {
		errs = append(errs, &ValidationError{
			Field:   "precheck.timeout",
			Value:   cfg.Precheck.Timeout,
			Message: "must be positive",
		})
	}

	if d, err := time.ParseDuration(cfg.Logs.SnapshotWindow); err != nil {
		errs = append(errs, &ValidationError{
			Field:   "logs.snapshot_window",
			Value:   cfg.Logs.SnapshotWindow,
			Message: fmt.Sprintf("invalid duration: %v", err),
		})
	} else if d <= 0 {
		errs = append(errs, &ValidationError{
			Field:   "logs.snapshot_window",
			Value:   cfg.Logs.SnapshotWindow,
			Message: "must be positive",
		})
	}

	// LogLevel must be one of: debug, info, warn, error (case-sensitive)
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		errs = append(errs, &ValidationError{
			Field:   "log_level",
			Value:   cfg.LogLevel,
			Message: "must be one of: debug, info, warn, error",
		})
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
