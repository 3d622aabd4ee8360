package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeBridge()
	c.normalizeLLM()
	c.normalizeSync()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	return nil
}

func (c *Config) normalizeBridge() {
	c.Bridge.Command = strings.TrimSpace(c.Bridge.Command)
	if c.Bridge.StartupSeconds <= 0 {
		c.Bridge.StartupSeconds = defaultBridgeStartup
	}
}

func (c *Config) normalizeLLM() {
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		if env := strings.TrimSpace(os.Getenv("TUNESYNC_LLM_API_KEY")); env != "" {
			c.LLM.APIKey = env
		}
	}
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
}

func (c *Config) normalizeSync() {
	if c.Sync.MatchThreshold == 0 {
		c.Sync.MatchThreshold = defaultMatchThreshold
	}
	if c.Sync.SearchLimit <= 0 {
		c.Sync.SearchLimit = defaultSearchLimit
	}
	if c.Sync.MaxConcurrentRuns <= 0 {
		c.Sync.MaxConcurrentRuns = defaultMaxConcurrentRuns
	}
	if c.Sync.RunDeadlineSeconds <= 0 {
		c.Sync.RunDeadlineSeconds = defaultRunDeadlineSeconds
	}
	if c.Sync.StepTimeoutSeconds <= 0 {
		c.Sync.StepTimeoutSeconds = defaultStepTimeoutSeconds
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
