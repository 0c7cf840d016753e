package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/d2verb/scanjob/internal/config"
	"github.com/d2verb/scanjob/internal/daemon"
	"github.com/d2verb/scanjob/internal/device"
	"github.com/d2verb/scanjob/internal/hook"
	"github.com/d2verb/scanjob/internal/jobstate"
	"github.com/d2verb/scanjob/internal/layer"
	"github.com/d2verb/scanjob/internal/logging"
	"github.com/d2verb/scanjob/internal/printjob"
	"github.com/d2verb/scanjob/internal/scancard"
	"github.com/d2verb/scanjob/internal/ui"
)

// shutdownTimeout bounds how long an active job gets to abort on stop.
const shutdownTimeout = 30 * time.Second

type StartCmd struct {
	Daemon bool `name:"daemon" hidden:"" help:"Run daemon process (internal)"`
}

func (c *StartCmd) Run() error {
	paths, err := getPaths()
	if err != nil {
		return err
	}

	// Check if already running
	status, err := daemon.GetDaemonStatus(paths.PID, paths.Socket)
	if err != nil && !errors.Is(err, daemon.ErrPIDFileNotFound) {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	if status.Running {
		ui.PrintInfo(fmt.Sprintf("Daemon is already running (PID: %d)", status.PID))
		return nil
	}

	if status.Stale() {
		ui.PrintWarning("Cleaning up stale daemon files...")
		if err := daemon.CleanupStale(status, paths.PID, paths.Socket); err != nil {
			return err
		}
	}

	if err := paths.EnsureDirectories(); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}

	// Validate the config up front so the user sees the error, not the log.
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Internal daemon mode: run the actual daemon process
	if c.Daemon {
		return runDaemon(paths, cfg)
	}

	return startBackground(paths)
}

func startBackground(paths *config.Paths) error {
	// Re-exec ourselves with internal daemon flag
	cmd := exec.Command(os.Args[0], "start", "--daemon")
	cmd.Env = os.Environ()

	// Detach from controlling terminal (Unix-like systems)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	// Wait for daemon to become ready (max 5 seconds)
	for range 50 {
		time.Sleep(100 * time.Millisecond)
		if daemon.IsSocketAvailable(paths.Socket) {
			ui.PrintSuccess(fmt.Sprintf("Daemon started (PID: %d)", cmd.Process.Pid))
			ui.PrintInfo(fmt.Sprintf("Logs: %s", paths.DaemonLog))
			return nil
		}
	}

	return fmt.Errorf("daemon did not start within 5 seconds, check logs: %s", paths.DaemonLog)
}

func runDaemon(paths *config.Paths, cfg *config.Config) error {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}

	daemonLogWriter := logging.NewRotatingWriter(logging.DefaultConfig(paths.DaemonLog))
	defer daemonLogWriter.Close()

	laserLogWriter := logging.NewRotatingWriter(logging.DefaultConfig(paths.LaserLog))
	defer laserLogWriter.Close()

	hookLogWriter := logging.NewRotatingWriter(logging.DefaultConfig(paths.HookLog))
	defer hookLogWriter.Close()

	logger := logging.NewLogger(daemonLogWriter, level)

	if err := daemon.WritePIDFile(paths.PID); err != nil {
		return fmt.Errorf("write PID file: %w", err)
	}
	defer daemon.RemovePIDFile(paths.PID)

	d, closeDevice := newDaemon(paths, cfg, logger, logging.NewLogger(laserLogWriter, level), hookLogWriter)
	defer closeDevice()

	server := daemon.NewServer(d, paths.Socket)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	logger.Info("daemon started", "socket", paths.Socket, "scancard", cfg.Device.Address())

	if cfg.Metrics.Listen != "" {
		ms, err := daemon.StartMetrics(cfg.Metrics.Listen, logger)
		if err != nil {
			logger.Error("failed to start metrics server", "error", err)
		} else {
			defer ms.Shutdown(context.Background())
		}
	}

	<-ctx.Done()
	logger.Info("shutting down")

	if err := server.Stop(); err != nil {
		return fmt.Errorf("stop server: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := d.Shutdown(shutdownCtx); err != nil {
		logger.Warn("job did not stop cleanly", "error", err)
	}
	return nil
}

// newDaemon wires the scancard, the snapshot store, the layer queue and the
// print job together. The returned func closes the device connection.
func newDaemon(paths *config.Paths, cfg *config.Config, logger, laserLogger *slog.Logger, hookOutput io.Writer) (*daemon.Daemon, func()) {
	card := scancard.NewClient(cfg.Device.Host, cfg.Device.Port, cfg.Device.Timeout, cfg.Device.ReadBuffer)
	serializer := device.NewSerializer(card,
		device.WithLogger(laserLogger),
		device.WithRetry(cfg.Device.Retries, cfg.Device.RetryDelay),
	)

	pattern, _ := layer.ParsePattern(cfg.Job.Pattern) // validated by config.Load
	queue := layer.NewQueue(
		layer.WithPattern(pattern),
		layer.WithExtension(cfg.Job.Extension),
		layer.WithLogger(logging.Component(logger, "layer")),
	)
	store := jobstate.NewStore(paths.States, jobstate.WithLogger(logging.Component(logger, "jobstate")))

	hooks := hook.NewRunner(cfg.Hooks.Timeout,
		hook.WithLogWriter(hookOutput),
		hook.WithLogger(logging.Component(logger, "hook")),
	)
	events := daemon.NewEventLog(daemon.DefaultEventHistory)

	job := printjob.New(printjob.SerializerDevice(serializer), store, queue,
		printjob.WithPollInterval(cfg.Job.PollInterval),
		printjob.WithSettleDelay(cfg.Job.SettleDelay),
		printjob.WithStatusFailureLimit(cfg.Job.StatusFailureLimit),
		printjob.WithHooks(printjob.Hooks{
			Setup:    hooks.Func("setup", cfg.Hooks.Setup),
			Recoat:   hooks.LayerFunc("recoat", cfg.Hooks.Recoat, queue.Files),
			Finalize: hooks.Func("finalize", cfg.Hooks.Finalize),
		}),
		printjob.WithLogger(logging.Component(logger, "printjob")),
		printjob.WithEventHandler(events.Record),
	)

	d := daemon.New(job, store, daemon.NewSerializerDevice(serializer), events, logger)
	return d, func() { serializer.Close() }
}
