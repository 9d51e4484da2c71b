// Package config loads the project-level runner configuration from
// .conveyor/config.yaml and merges it with CLI flags (flags win).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/walther/conveyor/internal/logger"
)

// HistoryConfig controls the run history database.
type HistoryConfig struct {
	// Enabled turns run recording on or off.
	Enabled bool `yaml:"enabled"`

	// DBPath is the SQLite database location, relative to the project
	// directory unless absolute.
	DBPath string `yaml:"db_path"`

	// KeepDays prunes runs older than this many days (0 = keep forever).
	KeepDays int `yaml:"keep_days"`

	// MaxRuns caps the number of stored runs (0 = unlimited).
	MaxRuns int `yaml:"max_runs"`
}

// Config holds the runner options for one project.
type Config struct {
	// RunsDir is where run workspaces are created.
	RunsDir string `yaml:"runs_dir"`

	// LogLevel sets console verbosity (trace, debug, info, warn, error).
	LogLevel string `yaml:"log_level"`

	// LogDir is where run log files are written.
	LogDir string `yaml:"log_dir"`

	// Timeout caps the whole run (0 = no limit).
	Timeout time.Duration `yaml:"timeout"`

	// Shell executes run: steps that do not name their own shell.
	Shell string `yaml:"shell"`

	// MaxParallel bounds concurrent branches per job (0 = one worker
	// per branch).
	MaxParallel int `yaml:"max_parallel"`

	// ToolchainDirs are extra directories searched for interpreter
	// installations, ahead of PATH.
	ToolchainDirs []string `yaml:"toolchain_dirs"`

	// EnvFiles are dotenv files injected into every step. When unset,
	// a .env in the project directory is loaded if present.
	EnvFiles []string `yaml:"env_files"`

	// KeepWorkspaces leaves every branch workspace on disk.
	KeepWorkspaces bool `yaml:"keep_workspaces"`

	// KeepFailedWorkspaces leaves workspaces of failed branches on disk.
	KeepFailedWorkspaces bool `yaml:"keep_failed_workspaces"`

	// History controls the run history database.
	History HistoryConfig `yaml:"history"`
}

// DefaultConfig returns a Config with the default values.
func DefaultConfig() *Config {
	return &Config{
		RunsDir:              filepath.Join(".conveyor", "runs"),
		LogLevel:             "info",
		LogDir:               filepath.Join(".conveyor", "logs"),
		Timeout:              0,
		Shell:                "sh",
		MaxParallel:          0,
		KeepWorkspaces:       false,
		KeepFailedWorkspaces: true,
		History: HistoryConfig{
			Enabled:  true,
			DBPath:   filepath.Join(".conveyor", "history.db"),
			KeepDays: 90,
			MaxRuns:  100,
		},
	}
}

// yamlConfig mirrors Config for parsing: the timeout is a duration
// string, and fields whose zero value is meaningful are pointers so an
// absent key keeps the default.
type yamlConfig struct {
	RunsDir              string      `yaml:"runs_dir"`
	LogLevel             string      `yaml:"log_level"`
	LogDir               string      `yaml:"log_dir"`
	Timeout              string      `yaml:"timeout"`
	Shell                string      `yaml:"shell"`
	MaxParallel          int         `yaml:"max_parallel"`
	ToolchainDirs        []string    `yaml:"toolchain_dirs"`
	EnvFiles             []string    `yaml:"env_files"`
	KeepWorkspaces       *bool       `yaml:"keep_workspaces"`
	KeepFailedWorkspaces *bool       `yaml:"keep_failed_workspaces"`
	History              yamlHistory `yaml:"history"`
}

type yamlHistory struct {
	Enabled  *bool  `yaml:"enabled"`
	DBPath   string `yaml:"db_path"`
	KeepDays *int   `yaml:"keep_days"`
	MaxRuns  *int   `yaml:"max_runs"`
}

// LoadConfig loads configuration from path. A missing file returns the
// defaults without error; a malformed file is an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if yamlCfg.RunsDir != "" {
		cfg.RunsDir = yamlCfg.RunsDir
	}
	if yamlCfg.LogLevel != "" {
		cfg.LogLevel = yamlCfg.LogLevel
	}
	if yamlCfg.LogDir != "" {
		cfg.LogDir = yamlCfg.LogDir
	}
	if yamlCfg.Timeout != "" {
		timeout, err := time.ParseDuration(yamlCfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout format %q: %w", yamlCfg.Timeout, err)
		}
		cfg.Timeout = timeout
	}
	if yamlCfg.Shell != "" {
		cfg.Shell = yamlCfg.Shell
	}
	if yamlCfg.MaxParallel != 0 {
		cfg.MaxParallel = yamlCfg.MaxParallel
	}
	if yamlCfg.ToolchainDirs != nil {
		cfg.ToolchainDirs = yamlCfg.ToolchainDirs
	}
	if yamlCfg.EnvFiles != nil {
		cfg.EnvFiles = yamlCfg.EnvFiles
	}
	if yamlCfg.KeepWorkspaces != nil {
		cfg.KeepWorkspaces = *yamlCfg.KeepWorkspaces
	}
	if yamlCfg.KeepFailedWorkspaces != nil {
		cfg.KeepFailedWorkspaces = *yamlCfg.KeepFailedWorkspaces
	}
	if yamlCfg.History.Enabled != nil {
		cfg.History.Enabled = *yamlCfg.History.Enabled
	}
	if yamlCfg.History.DBPath != "" {
		cfg.History.DBPath = yamlCfg.History.DBPath
	}
	if yamlCfg.History.KeepDays != nil {
		cfg.History.KeepDays = *yamlCfg.History.KeepDays
	}
	if yamlCfg.History.MaxRuns != nil {
		cfg.History.MaxRuns = *yamlCfg.History.MaxRuns
	}

	return cfg, nil
}

// LoadConfigFromDir loads .conveyor/config.yaml from the given project
// directory, falling back to defaults when absent.
func LoadConfigFromDir(dir string) (*Config, error) {
	return LoadConfig(filepath.Join(dir, ".conveyor", "config.yaml"))
}

// MergeWithFlags overrides configuration values with CLI flags. Nil
// means the flag was not given.
func (c *Config) MergeWithFlags(timeout *time.Duration, maxParallel *int, logLevel, logDir *string, keepWorkspaces, noHistory *bool) {
	if timeout != nil {
		c.Timeout = *timeout
	}
	if maxParallel != nil {
		c.MaxParallel = *maxParallel
	}
	if logLevel != nil {
		c.LogLevel = *logLevel
	}
	if logDir != nil {
		c.LogDir = *logDir
	}
	if keepWorkspaces != nil {
		c.KeepWorkspaces = *keepWorkspaces
	}
	if noHistory != nil && *noHistory {
		c.History.Enabled = false
	}
}

// Validate checks the configuration values.
func (c *Config) Validate() error {
	if c.RunsDir == "" {
		return fmt.Errorf("runs_dir cannot be empty")
	}
	if !logger.ValidLevel(c.LogLevel) {
		return fmt.Errorf("invalid log_level %q, must be one of: trace, debug, info, warn, error", c.LogLevel)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must be >= 0, got %v", c.Timeout)
	}
	if c.Shell == "" {
		return fmt.Errorf("shell cannot be empty")
	}
	if c.MaxParallel < 0 {
		return fmt.Errorf("max_parallel must be >= 0, got %d", c.MaxParallel)
	}
	if c.History.Enabled {
		if c.History.DBPath == "" {
			return fmt.Errorf("history.db_path cannot be empty when history is enabled")
		}
		if c.History.KeepDays < 0 {
			return fmt.Errorf("history.keep_days must be >= 0, got %d", c.History.KeepDays)
		}
		if c.History.MaxRuns < 0 {
			return fmt.Errorf("history.max_runs must be >= 0, got %d", c.History.MaxRuns)
		}
	}
	return nil
}

// LoadEnvFiles reads the configured dotenv files and returns the merged
// variables, later files overriding earlier ones. When no env_files are
// configured, a .env in the project directory is loaded if present;
// explicitly listed files must exist.
func (c *Config) LoadEnvFiles(projectDir string) (map[string]string, error) {
	files := c.EnvFiles
	implicit := false
	if files == nil {
		files = []string{".env"}
		implicit = true
	}

	merged := make(map[string]string)
	for _, file := range files {
		path := file
		if !filepath.IsAbs(path) {
			path = filepath.Join(projectDir, file)
		}

		vars, err := godotenv.Read(path)
		if err != nil {
			if implicit && os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("env file %s: %w", file, err)
		}
		for k, v := range vars {
			merged[k] = v
		}
	}
	return merged, nil
}
