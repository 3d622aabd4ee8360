package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateBridge(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateBridge() error {
	if c.Bridge.Command == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/tunesync/config.toml"
		}
		return fmt.Errorf("bridge.command is required. Edit %s (create with 'tunesync config init')", defaultPath)
	}
	return nil
}

func (c *Config) validateSync() error {
	if c.Sync.MatchThreshold < 0 || c.Sync.MatchThreshold > 1 {
		return errors.New("sync.match_threshold must be between 0 and 1")
	}
	if c.Sync.SearchLimit <= 0 || c.Sync.SearchLimit > 50 {
		return errors.New("sync.search_limit must be between 1 and 50")
	}
	if c.Sync.MaxConcurrentRuns <= 0 {
		return errors.New("sync.max_concurrent_runs must be positive")
	}
	if c.Sync.RunDeadlineSeconds <= 0 {
		return errors.New("sync.run_deadline_seconds must be positive")
	}
	if c.Sync.StepTimeoutSeconds <= 0 {
		return errors.New("sync.step_timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
