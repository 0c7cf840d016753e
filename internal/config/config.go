// Package config handles scanjob paths and the config.yaml file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/d2verb/scanjob/internal/layer"
	"github.com/d2verb/scanjob/internal/logging"
	"github.com/d2verb/scanjob/internal/pathutil"
)

// HomeEnv overrides the scanjob home directory.
const HomeEnv = "SCANJOB_HOME"

// Scancard defaults.
const (
	DefaultHost       = "localhost"
	DefaultPort       = 50000
	DefaultTimeout    = 5 * time.Second
	DefaultRetries    = 3
	DefaultRetryDelay = time.Second
	DefaultReadBuffer = 1024
)

// Paths holds common paths used by scanjob.
type Paths struct {
	Home      string
	Config    string
	Socket    string
	PID       string
	States    string
	Logs      string
	DaemonLog string
	LaserLog  string
	HookLog   string
}

// GetPaths returns the paths for the current user. $SCANJOB_HOME replaces
// the default ~/.scanjob.
func GetPaths() (*Paths, error) {
	if home := os.Getenv(HomeEnv); home != "" {
		return PathsAt(home), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return PathsAt(filepath.Join(home, ".scanjob")), nil
}

// PathsAt returns the layout rooted at home.
func PathsAt(home string) *Paths {
	logsDir := filepath.Join(home, "logs")
	return &Paths{
		Home:      home,
		Config:    filepath.Join(home, "config.yaml"),
		Socket:    filepath.Join(home, "scanjob.sock"),
		PID:       filepath.Join(home, "scanjob.pid"),
		States:    filepath.Join(home, "states"),
		Logs:      logsDir,
		DaemonLog: filepath.Join(logsDir, "daemon.log"),
		LaserLog:  filepath.Join(logsDir, "laser.log"),
		HookLog:   filepath.Join(logsDir, "hooks.log"),
	}
}

// EnsureDirectories creates the required directories if they don't exist.
func (p *Paths) EnsureDirectories() error {
	dirs := []string{p.Home, p.States, p.Logs}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// DeviceConfig addresses the scancard.
type DeviceConfig struct {
	Host       string        `yaml:"host"`
	Port       int           `yaml:"port"`
	Timeout    time.Duration `yaml:"timeout"`
	Retries    int           `yaml:"retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
	ReadBuffer int           `yaml:"read_buffer"`
}

// JobConfig tunes the print job loop and layer discovery.
type JobConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	SettleDelay  time.Duration `yaml:"settle_delay"`
	Pattern      string        `yaml:"pattern"`
	Extension    string        `yaml:"extension"`
	// StatusFailureLimit fails a layer after this many consecutive
	// unanswered status polls. 0 polls until the card answers.
	StatusFailureLimit int `yaml:"status_failure_limit"`
}

// HooksConfig holds the external commands run at job milestones.
// Each hook is an argv; an empty argv disables it.
type HooksConfig struct {
	Setup    []string      `yaml:"setup,omitempty"`
	Recoat   []string      `yaml:"recoat,omitempty"`
	Finalize []string      `yaml:"finalize,omitempty"`
	Timeout  time.Duration `yaml:"timeout"`
}

type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Config is the contents of config.yaml.
type Config struct {
	Device  DeviceConfig  `yaml:"device"`
	Job     JobConfig     `yaml:"job"`
	Hooks   HooksConfig   `yaml:"hooks"`
	Metrics MetricsConfig `yaml:"metrics"`
	Log     LogConfig     `yaml:"log"`
}

// DefaultConfig returns the configuration used when config.yaml is absent.
func DefaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			Host:       DefaultHost,
			Port:       DefaultPort,
			Timeout:    DefaultTimeout,
			Retries:    DefaultRetries,
			RetryDelay: DefaultRetryDelay,
			ReadBuffer: DefaultReadBuffer,
		},
		Job: JobConfig{
			PollInterval: time.Second,
			SettleDelay:  time.Second,
			Pattern:      string(layer.PatternImage),
			Extension:    layer.DefaultExtension,
		},
		Hooks: HooksConfig{
			Timeout: 10 * time.Minute,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// ValidationError reports an invalid config field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid config: %s %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Load reads config.yaml at path. Missing keys keep their defaults and a
// missing file yields the defaults. Relative hook commands are resolved
// against the file's directory.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	baseDir := filepath.Dir(path)
	for _, argv := range [][]string{cfg.Hooks.Setup, cfg.Hooks.Recoat, cfg.Hooks.Finalize} {
		if len(argv) == 0 || !pathLike(argv[0]) {
			continue
		}
		resolved, err := pathutil.ResolvePath(argv[0], baseDir)
		if err != nil {
			return nil, fmt.Errorf("resolve hook command: %w", err)
		}
		argv[0] = resolved
	}
	return cfg, nil
}

// pathLike reports whether a hook command names a file rather than a
// program looked up in $PATH.
func pathLike(cmd string) bool {
	return strings.ContainsRune(cmd, filepath.Separator) || strings.HasPrefix(cmd, "~/")
}

// Validate checks every field and returns the first problem found.
func (c *Config) Validate() error {
	d := c.Device
	switch {
	case d.Host == "":
		return &ValidationError{Field: "device.host", Reason: "is required"}
	case d.Port < 1 || d.Port > 65535:
		return &ValidationError{Field: "device.port", Reason: fmt.Sprintf("must be between 1 and 65535, got %d", d.Port)}
	case d.Timeout <= 0:
		return &ValidationError{Field: "device.timeout", Reason: "must be positive"}
	case d.Retries < 1:
		return &ValidationError{Field: "device.retries", Reason: fmt.Sprintf("must be at least 1, got %d", d.Retries)}
	case d.RetryDelay < 0:
		return &ValidationError{Field: "device.retry_delay", Reason: "must not be negative"}
	case d.ReadBuffer < 64:
		return &ValidationError{Field: "device.read_buffer", Reason: fmt.Sprintf("must be at least 64 bytes, got %d", d.ReadBuffer)}
	}

	j := c.Job
	switch {
	case j.PollInterval <= 0:
		return &ValidationError{Field: "job.poll_interval", Reason: "must be positive"}
	case j.SettleDelay < 0:
		return &ValidationError{Field: "job.settle_delay", Reason: "must not be negative"}
	case j.StatusFailureLimit < 0:
		return &ValidationError{Field: "job.status_failure_limit", Reason: fmt.Sprintf("must not be negative, got %d", j.StatusFailureLimit)}
	case !strings.HasPrefix(j.Extension, "."):
		return &ValidationError{Field: "job.extension", Reason: fmt.Sprintf("must start with a dot, got %q", j.Extension)}
	}
	if _, err := layer.ParsePattern(j.Pattern); err != nil {
		return &ValidationError{Field: "job.pattern", Reason: err.Error()}
	}

	if c.Hooks.Timeout < 0 {
		return &ValidationError{Field: "hooks.timeout", Reason: "must not be negative"}
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return &ValidationError{Field: "log.level", Reason: err.Error()}
	}
	return nil
}

// Address returns the scancard host:port.
func (d DeviceConfig) Address() string {
	return fmt.Sprintf("%s:%d", d.Host, d.Port)
}

// WriteDefault writes the default config to path unless a file exists.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
