package app

import (
	"errors"
	"time"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	// WorkflowPath is a workflow file or a directory of workflow files.
	WorkflowPath string

	// Workers is the concurrency limit: at most this many jobs are ever
	// provisioning or running simultaneously.
	Workers int
	// GracePeriod bounds how long a cancelled step may linger before its
	// subprocess is forcibly reclaimed.
	GracePeriod time.Duration

	LogFormat       string
	LogLevel        string
	HealthcheckPort int
}

// NewConfig validates and returns the configuration.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.WorkflowPath == "" {
		return nil, errors.New("WorkflowPath is a required configuration field and cannot be empty")
	}
	if cfg.Workers < 1 {
		return nil, errors.New("Workers must be at least 1")
	}
	if cfg.GracePeriod < 0 {
		return nil, errors.New("GracePeriod cannot be negative")
	}
	return &cfg, nil
}
