package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/d2verb/scanjob/internal/daemon"
	"github.com/d2verb/scanjob/internal/ui"
)

// stopTimeout leaves room for an active job to abort before SIGKILL.
const stopTimeout = shutdownTimeout + 5*time.Second

type StopCmd struct{}

func (c *StopCmd) Run() error {
	paths, err := getPaths()
	if err != nil {
		return err
	}

	status, err := daemon.GetDaemonStatus(paths.PID, paths.Socket)
	if err != nil && !errors.Is(err, daemon.ErrPIDFileNotFound) {
		ui.PrintWarning(fmt.Sprintf("Stale daemon state detected: %v", err))
	}

	if !status.Running {
		ui.PrintInfo("Daemon is not running")
		if status.Stale() {
			return daemon.CleanupStale(status, paths.PID, paths.Socket)
		}
		return nil
	}

	ui.PrintInfo("Stopping daemon...")
	forced, err := daemon.StopProcess(status.PID, stopTimeout)
	if err != nil {
		return err
	}
	if forced {
		ui.PrintWarning("Daemon did not stop gracefully, killed it")
	}

	if err := daemon.CleanupStale(&daemon.DaemonStatus{}, paths.PID, paths.Socket); err != nil {
		return err
	}
	ui.PrintSuccess("Daemon stopped")
	return nil
}
