// Package config handles configuration loading and validation for redline.
//
// Values come from three layers, later layers winning: built-in defaults,
// a YAML file, and REDLINE_* environment variables (a .env file in the
// working directory is loaded into the environment first).
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hay-kot/criterio"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	ServiceURL     string        `yaml:"service_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	UndoWindow     time.Duration `yaml:"undo_window"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
	BatchWorkers   int           `yaml:"batch_workers"`
	Listen         string        `yaml:"listen"`
	Theme          string        `yaml:"theme"`
	LogLevel       string        `yaml:"log_level"`
	LogFile        string        `yaml:"log_file"`
	DenyList       []string      `yaml:"deny_list"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ServiceURL:     "http://localhost:5000/api",
		RequestTimeout: 120 * time.Second,
		UndoWindow:     5 * time.Second,
		MaxUploadBytes: 16 * 1024 * 1024,
		BatchWorkers:   3,
		Listen:         "127.0.0.1:6143",
		Theme:          "dracula",
		LogLevel:       "info",
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "redline", "config.yaml")
}

// Load reads configuration from the given path, then applies environment
// overrides. A missing file is not an error.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			data, err := os.ReadFile(configPath)
			if err != nil {
				return nil, fmt.Errorf("read config file: %w", err)
			}
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	// Best-effort: load .env from current directory
	_ = godotenv.Load()

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// applyEnv overrides fields from REDLINE_* variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get("REDLINE_SERVICE_URL"); ok {
		c.ServiceURL = v
	}
	if v, ok := get("REDLINE_LISTEN"); ok {
		c.Listen = v
	}
	if v, ok := get("REDLINE_THEME"); ok {
		c.Theme = v
	}
	if v, ok := get("REDLINE_LOG_LEVEL"); ok {
		c.LogLevel = v
	}
	if v, ok := get("REDLINE_LOG_FILE"); ok {
		c.LogFile = v
	}
	if v, ok := get("REDLINE_DENY_LIST"); ok {
		c.DenyList = splitList(v)
	}

	if v, ok := get("REDLINE_REQUEST_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("REDLINE_REQUEST_TIMEOUT: %w", err)
		}
		c.RequestTimeout = d
	}
	if v, ok := get("REDLINE_UNDO_WINDOW"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("REDLINE_UNDO_WINDOW: %w", err)
		}
		c.UndoWindow = d
	}
	if v, ok := get("REDLINE_MAX_UPLOAD_BYTES"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("REDLINE_MAX_UPLOAD_BYTES: %w", err)
		}
		c.MaxUploadBytes = n
	}
	if v, ok := get("REDLINE_BATCH_WORKERS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("REDLINE_BATCH_WORKERS: %w", err)
		}
		c.BatchWorkers = n
	}
	return nil
}

// applyDefaults sets default values for any unset configuration options.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()
	if c.ServiceURL == "" {
		c.ServiceURL = defaults.ServiceURL
	}
	if c.Theme == "" {
		c.Theme = defaults.Theme
	}
	if c.LogLevel == "" {
		c.LogLevel = defaults.LogLevel
	}
	if c.Listen == "" {
		c.Listen = defaults.Listen
	}
	c.ServiceURL = strings.TrimRight(c.ServiceURL, "/")
}

// Validate checks that the configuration is valid. Problems are reported
// per field as criterio.FieldErrors.
func (c *Config) Validate() error {
	var errs criterio.FieldErrorsBuilder
	if c.RequestTimeout <= 0 {
		errs = errs.Append("request_timeout", fmt.Errorf("must be positive"))
	}
	if c.UndoWindow <= 0 {
		errs = errs.Append("undo_window", fmt.Errorf("must be positive"))
	}
	if c.MaxUploadBytes <= 0 {
		errs = errs.Append("max_upload_bytes", fmt.Errorf("must be positive"))
	}
	if c.BatchWorkers < 1 {
		errs = errs.Append("batch_workers", fmt.Errorf("must be at least 1"))
	}
	for i, term := range c.DenyList {
		if strings.TrimSpace(term) == "" {
			errs = errs.Append(fmt.Sprintf("deny_list[%d]", i), fmt.Errorf("term is empty"))
		}
	}

	return criterio.ValidateStruct(
		criterio.Run("service_url", c.ServiceURL, httpURL),
		criterio.Run("log_file", c.LogFile, parentDirExists),
		errs.ToError(),
	)
}

func httpURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%q must be an http(s) URL", raw)
	}
	return nil
}

// parentDirExists validates that a file can be created at path.
func parentDirExists(path string) error {
	if path == "" {
		return nil
	}
	info, err := os.Stat(filepath.Dir(path))
	if err != nil {
		return fmt.Errorf("cannot access directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", filepath.Dir(path))
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
