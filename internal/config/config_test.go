package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestGetPaths(t *testing.T) {
	t.Setenv(HomeEnv, "")
	paths, err := GetPaths()
	if err != nil {
		t.Fatalf("GetPaths() error = %v", err)
	}

	home, _ := os.UserHomeDir()
	scanjobHome := filepath.Join(home, ".scanjob")
	logsDir := filepath.Join(scanjobHome, "logs")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"Home", paths.Home, scanjobHome},
		{"Config", paths.Config, filepath.Join(scanjobHome, "config.yaml")},
		{"Socket", paths.Socket, filepath.Join(scanjobHome, "scanjob.sock")},
		{"PID", paths.PID, filepath.Join(scanjobHome, "scanjob.pid")},
		{"States", paths.States, filepath.Join(scanjobHome, "states")},
		{"Logs", paths.Logs, logsDir},
		{"DaemonLog", paths.DaemonLog, filepath.Join(logsDir, "daemon.log")},
		{"LaserLog", paths.LaserLog, filepath.Join(logsDir, "laser.log")},
		{"HookLog", paths.HookLog, filepath.Join(logsDir, "hooks.log")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestGetPaths_HomeOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(HomeEnv, dir)

	paths, err := GetPaths()
	if err != nil {
		t.Fatalf("GetPaths() error = %v", err)
	}
	if paths.Home != dir {
		t.Errorf("Home = %q, want %q", paths.Home, dir)
	}
	if !strings.HasPrefix(paths.States, dir) {
		t.Errorf("States should be under the override: %q", paths.States)
	}
}

func TestPaths_EnsureDirectories(t *testing.T) {
	paths := PathsAt(filepath.Join(t.TempDir(), ".scanjob"))

	if _, err := os.Stat(paths.Home); !os.IsNotExist(err) {
		t.Fatal("Home directory should not exist before EnsureDirectories")
	}

	if err := paths.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories() error = %v", err)
	}

	for _, dir := range []string{paths.Home, paths.States, paths.Logs} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Errorf("Directory %q should exist: %v", dir, err)
			continue
		}
		if !info.IsDir() {
			t.Errorf("%q should be a directory", dir)
		}
	}

	if err := paths.EnsureDirectories(); err != nil {
		t.Errorf("EnsureDirectories() second call error = %v", err)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Run("missing file gives defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.Device.Port != DefaultPort || cfg.Device.Host != DefaultHost {
			t.Errorf("Device = %+v", cfg.Device)
		}
		if cfg.Job.Pattern != "img" || cfg.Job.Extension != ".emd" {
			t.Errorf("Job = %+v", cfg.Job)
		}
	})

	t.Run("partial file keeps other defaults", func(t *testing.T) {
		path := writeConfig(t, `
device:
  host: 192.168.1.50
  retry_delay: 250ms
job:
  pattern: layer
  poll_interval: 500ms
  status_failure_limit: 30
metrics:
  listen: 127.0.0.1:9464
`)
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.Device.Host != "192.168.1.50" || cfg.Device.Port != DefaultPort {
			t.Errorf("Device = %+v", cfg.Device)
		}
		if cfg.Device.RetryDelay != 250*time.Millisecond {
			t.Errorf("RetryDelay = %v", cfg.Device.RetryDelay)
		}
		if cfg.Device.Address() != "192.168.1.50:50000" {
			t.Errorf("Address() = %q", cfg.Device.Address())
		}
		if cfg.Job.Pattern != "layer" || cfg.Job.PollInterval != 500*time.Millisecond || cfg.Job.StatusFailureLimit != 30 {
			t.Errorf("Job = %+v", cfg.Job)
		}
		if cfg.Metrics.Listen != "127.0.0.1:9464" {
			t.Errorf("Metrics.Listen = %q", cfg.Metrics.Listen)
		}
	})

	t.Run("hook paths resolved against config dir", func(t *testing.T) {
		path := writeConfig(t, `
hooks:
  recoat: [./bin/recoat, --layer-height, "0.05"]
  finalize: [motionctl, final-recoat]
`)
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		want := filepath.Join(filepath.Dir(path), "bin/recoat")
		if cfg.Hooks.Recoat[0] != want {
			t.Errorf("Recoat[0] = %q, want %q", cfg.Hooks.Recoat[0], want)
		}
		if cfg.Hooks.Finalize[0] != "motionctl" {
			t.Errorf("Finalize[0] = %q, want PATH lookup name kept", cfg.Hooks.Finalize[0])
		}
	})

	t.Run("malformed yaml", func(t *testing.T) {
		if _, err := Load(writeConfig(t, "device: [")); err == nil {
			t.Error("Load() error = nil, want parse error")
		}
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantField string
	}{
		{"defaults", func(*Config) {}, ""},
		{"empty host", func(c *Config) { c.Device.Host = "" }, "device.host"},
		{"port out of range", func(c *Config) { c.Device.Port = 70000 }, "device.port"},
		{"zero timeout", func(c *Config) { c.Device.Timeout = 0 }, "device.timeout"},
		{"no attempts", func(c *Config) { c.Device.Retries = 0 }, "device.retries"},
		{"negative retry delay", func(c *Config) { c.Device.RetryDelay = -time.Second }, "device.retry_delay"},
		{"tiny read buffer", func(c *Config) { c.Device.ReadBuffer = 8 }, "device.read_buffer"},
		{"zero poll interval", func(c *Config) { c.Job.PollInterval = 0 }, "job.poll_interval"},
		{"negative status failure limit", func(c *Config) { c.Job.StatusFailureLimit = -1 }, "job.status_failure_limit"},
		{"extension without dot", func(c *Config) { c.Job.Extension = "emd" }, "job.extension"},
		{"unknown pattern", func(c *Config) { c.Job.Pattern = "glob" }, "job.pattern"},
		{"unknown log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()

			if tt.wantField == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			ve, ok := err.(*ValidationError)
			if !ok {
				t.Fatalf("Validate() error = %v, want ValidationError", err)
			}
			if ve.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", ve.Field, tt.wantField)
			}
		})
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() of written defaults error = %v", err)
	}
	if cfg.Device.Timeout != DefaultTimeout || cfg.Job.SettleDelay != time.Second {
		t.Errorf("round-tripped config = %+v", cfg)
	}

	if err := os.WriteFile(path, []byte("device:\n  port: 6000\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := WriteDefault(path); err != nil {
		t.Fatal(err)
	}
	cfg, _ = Load(path)
	if cfg.Device.Port != 6000 {
		t.Error("WriteDefault() overwrote an existing config")
	}
}
