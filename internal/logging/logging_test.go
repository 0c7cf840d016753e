package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	// Arrange
	path := "/var/log/scanjob/laser.log"

	// Act
	cfg := DefaultConfig(path)

	// Assert
	if cfg.Path != path {
		t.Errorf("Path = %q, want %q", cfg.Path, path)
	}
	if cfg.MaxSizeMB != 50 || cfg.MaxBackups != 3 || cfg.MaxAgeDays != 7 {
		t.Errorf("rotation = %d MB, %d backups, %d days", cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays)
	}
	if !cfg.Compress {
		t.Error("Compress = false, want true")
	}
}

func TestNewRotatingWriter(t *testing.T) {
	// Arrange
	logPath := filepath.Join(t.TempDir(), "laser.log")
	writer := NewRotatingWriter(Config{Path: logPath, MaxSizeMB: 1, MaxBackups: 1, MaxAgeDays: 1})
	defer writer.Close()

	// Act
	logger := NewLogger(writer, slog.LevelInfo)
	logger.Info("command sent", "command", "start_mark")

	// Assert
	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "command=start_mark") {
		t.Errorf("log file = %q", data)
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name      string
		level     slog.Level
		wantDebug bool
		wantInfo  bool
	}{
		{"info level", slog.LevelInfo, false, true},
		{"debug level", slog.LevelDebug, true, true},
		{"error level", slog.LevelError, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(&buf, tt.level)

			logger.Debug("poll", "status", "Marking")
			logger.Info("layer done", "layer", 3)

			out := buf.String()
			if got := strings.Contains(out, "level=DEBUG"); got != tt.wantDebug {
				t.Errorf("debug record present = %v, want %v: %q", got, tt.wantDebug, out)
			}
			if got := strings.Contains(out, "layer=3"); got != tt.wantInfo {
				t.Errorf("info record present = %v, want %v: %q", got, tt.wantInfo, out)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	Component(NewLogger(&buf, slog.LevelInfo), "device").Info("ready")

	if !strings.Contains(buf.String(), "component=device") {
		t.Errorf("output = %q", buf.String())
	}
}
