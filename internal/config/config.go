package config

import (
	_ "embed"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Log severities, lowest first.
const (
	TRACE   = "TRACE"
	DEBUG   = "DEBUG"
	INFO    = "INFO"
	WARNING = "WARNING"
	ERROR   = "ERROR"
	OFF     = "OFF"
)

var severities = []LogSeverity{TRACE, DEBUG, INFO, WARNING, ERROR, OFF}

// LogSeverity is a severity name. Decoding is case-insensitive.
type LogSeverity string

func (s *LogSeverity) UnmarshalText(text []byte) error {
	*s = LogSeverity(strings.ToUpper(string(text)))
	return nil
}

// ─── YAML schema ───────────────────────────────────────────────────────────

type SourceConfig struct {
	Dir     string `yaml:"dir"`
	Ext     string `yaml:"ext"`     // only files with this extension are tasks; empty accepts all
	Watch   bool   `yaml:"watch"`   // keep watching Dir after the initial scan
	Consume bool   `yaml:"consume"` // remove descriptor files once read
}

type SinkConfig struct {
	Dir string `yaml:"dir"`
}

type LogRotateConfig struct {
	MaxFileSizeMB   int  `yaml:"max-file-size-mb"`
	BackupFileCount int  `yaml:"backup-file-count"`
	Compress        bool `yaml:"compress"`
}

type LoggingConfig struct {
	Severity  LogSeverity     `yaml:"severity"`
	Format    string          `yaml:"format"`
	FilePath  string          `yaml:"file-path"`
	LogRotate LogRotateConfig `yaml:"log-rotate"`
}

type MetricsConfig struct {
	PrometheusPort int `yaml:"prometheus-port"`
}

type Config struct {
	Workers  int           `yaml:"workers"`
	Capacity int           `yaml:"capacity"`
	Source   SourceConfig  `yaml:"source"`
	Sink     SinkConfig    `yaml:"sink"`
	Logging  LoggingConfig `yaml:"logging"`
	Metrics  MetricsConfig `yaml:"metrics"`
}

// ─── embedded defaults ─────────────────────────────────────────────────────

//go:embed config.yml
var raw []byte

// Default unmarshals the embedded YAML into Config.
func Default() (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("decoding built-in defaults: %w", err)
	}
	return &c, nil
}

// DefaultLogRotateConfig is the rotation used when none is configured.
func DefaultLogRotateConfig() LogRotateConfig {
	return LogRotateConfig{MaxFileSizeMB: 512, BackupFileCount: 10, Compress: true}
}

// Resolve fills in values that depend on the host.
func (c *Config) Resolve() {
	if c.Workers == 0 {
		c.Workers = runtime.NumCPU()
	}
}

// Validate reports the first setting that would keep the daemon from starting.
func (c *Config) Validate() error {
	switch {
	case c.Workers <= 0:
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	case c.Capacity <= 0:
		return fmt.Errorf("capacity must be positive, got %d", c.Capacity)
	case c.Source.Dir == "":
		return errors.New("source dir is required")
	case c.Sink.Dir == "":
		return errors.New("sink dir is required")
	case !slices.Contains(severities, c.Logging.Severity):
		return fmt.Errorf("unknown log severity %q, want one of %v", c.Logging.Severity, severities)
	case c.Logging.Format != "text" && c.Logging.Format != "json":
		return fmt.Errorf("unknown log format %q, want text or json", c.Logging.Format)
	case c.Logging.LogRotate.MaxFileSizeMB <= 0:
		return fmt.Errorf("log-rotate max-file-size-mb must be positive, got %d", c.Logging.LogRotate.MaxFileSizeMB)
	case c.Logging.LogRotate.BackupFileCount < 0:
		return fmt.Errorf("log-rotate backup-file-count must not be negative, got %d", c.Logging.LogRotate.BackupFileCount)
	case c.Metrics.PrometheusPort < 0 || c.Metrics.PrometheusPort > 65535:
		return fmt.Errorf("prometheus-port %d out of range", c.Metrics.PrometheusPort)
	}
	return nil
}
