// Package config loads the daemon configuration file and the processing
// tree (single document or directory hierarchy) into the ruleconf DTOs.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete tornado-match configuration.
type Config struct {
	Agent      AgentConfig      `yaml:"agent"`
	Spool      SpoolConfig      `yaml:"spool"`
	Processing ProcessingConfig `yaml:"processing"`
	State      StateConfig      `yaml:"state"`
}

// AgentConfig contains agent-level settings.
type AgentConfig struct {
	ID       string `yaml:"id"`
	StateDir string `yaml:"state_dir"`
	LogLevel string `yaml:"log_level"`
}

// SpoolConfig defines the event spool settings.
type SpoolConfig struct {
	Dir           string        `yaml:"dir"`
	ArchiveDir    string        `yaml:"archive_dir"`
	StabilityWait time.Duration `yaml:"stability_wait"`
}

// ProcessingConfig defines the processing tree settings.
type ProcessingConfig struct {
	Path     string `yaml:"path"`
	Workers  int    `yaml:"workers"`
	ReloadOn string `yaml:"reload_on"`
}

// StateConfig defines the collector cursor database settings.
type StateConfig struct {
	CursorPath string `yaml:"cursor_path"`
}

// Load reads and parses the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for optional fields.
func (c *Config) applyDefaults() {
	if c.Agent.ID == "" {
		hostname, _ := os.Hostname()
		c.Agent.ID = hostname
	}
	if c.Agent.StateDir == "" {
		c.Agent.StateDir = "/var/lib/tornado-match"
	}
	if c.Agent.LogLevel == "" {
		c.Agent.LogLevel = "info"
	}

	if c.Spool.Dir == "" {
		c.Spool.Dir = "/var/spool/tornado-match"
	}
	if c.Spool.StabilityWait == 0 {
		c.Spool.StabilityWait = 2 * time.Second
	}

	if c.Processing.Path == "" {
		c.Processing.Path = "/etc/tornado-match/rules.d"
	}
	if c.Processing.Workers == 0 {
		c.Processing.Workers = 4
	}
	if c.Processing.ReloadOn == "" {
		c.Processing.ReloadOn = "SIGHUP"
	}

	if c.State.CursorPath == "" {
		c.State.CursorPath = filepath.Join(c.Agent.StateDir, "cursor.db")
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Agent.ID == "" {
		return fmt.Errorf("agent.id is required")
	}
	if len(c.Agent.ID) > 255 {
		return fmt.Errorf("agent.id too long (max 255 characters)")
	}
	if !isValidLogLevel(c.Agent.LogLevel) {
		return fmt.Errorf("invalid log level: %s", c.Agent.LogLevel)
	}
	if !filepath.IsAbs(c.Agent.StateDir) {
		return fmt.Errorf("agent.state_dir must be an absolute path")
	}

	if !filepath.IsAbs(c.Spool.Dir) {
		return fmt.Errorf("spool.dir must be an absolute path")
	}
	if c.Spool.ArchiveDir != "" && !filepath.IsAbs(c.Spool.ArchiveDir) {
		return fmt.Errorf("spool.archive_dir must be an absolute path")
	}
	if c.Spool.StabilityWait < 0 {
		return fmt.Errorf("spool.stability_wait cannot be negative")
	}
	if c.Spool.StabilityWait > 60*time.Second {
		return fmt.Errorf("spool.stability_wait too large (max 60s)")
	}

	if !filepath.IsAbs(c.Processing.Path) {
		return fmt.Errorf("processing.path must be an absolute path")
	}
	if c.Processing.Workers < 0 {
		return fmt.Errorf("processing.workers cannot be negative")
	}
	if c.Processing.Workers > 1024 {
		return fmt.Errorf("processing.workers too large (max 1024)")
	}

	if !filepath.IsAbs(c.State.CursorPath) {
		return fmt.Errorf("state.cursor_path must be an absolute path")
	}

	return nil
}

func isValidLogLevel(level string) bool {
	level = strings.ToLower(level)
	return level == "debug" || level == "info" || level == "warn" || level == "error"
}
