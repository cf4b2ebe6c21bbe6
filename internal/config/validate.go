package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks configuration invariants that would otherwise surface as
// confusing runtime failures deep in the pipeline.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Paths.DataDir) == "" {
		problems = append(problems, "paths.data_dir must not be empty")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		problems = append(problems, "paths.log_dir must not be empty")
	}
	if c.Worker.PollInterval <= 0 {
		problems = append(problems, "worker.poll_interval must be positive")
	}
	if c.Worker.ErrorRetryInterval <= 0 {
		problems = append(problems, "worker.error_retry_interval must be positive")
	}
	if c.Worker.HeartbeatInterval <= 0 {
		problems = append(problems, "worker.heartbeat_interval must be positive")
	}
	if c.Worker.HeartbeatTimeout <= c.Worker.HeartbeatInterval {
		problems = append(problems, "worker.heartbeat_timeout must exceed worker.heartbeat_interval")
	}
	if c.LLM.TimeoutSeconds < 0 {
		problems = append(problems, "llm.timeout_seconds must not be negative")
	}
	if c.Storage.Endpoint != "" {
		if strings.TrimSpace(c.Storage.AccessKey) == "" {
			problems = append(problems, "storage.access_key required when storage.endpoint is set")
		}
		if strings.TrimSpace(c.Storage.SecretKey) == "" {
			problems = append(problems, "storage.secret_key required when storage.endpoint is set")
		}
	}
	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format: unsupported value %q", c.Logging.Format))
	}

	if len(problems) == 0 {
		return nil
	}
	return errors.New("invalid configuration: " + strings.Join(problems, "; "))
}
