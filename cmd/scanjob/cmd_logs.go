package main

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

type LogsCmd struct {
	Follow bool `short:"f" help:"Follow log output in real-time (tail -f)"`
	Daemon bool `short:"d" help:"Show daemon logs (default)" xor:"source"`
	Laser  bool `short:"l" help:"Show scancard command logs" xor:"source"`
	Hooks  bool `help:"Show setup, recoat and finalize hook output" xor:"source"`
}

func (c *LogsCmd) Run() error {
	paths, err := getPaths()
	if err != nil {
		return err
	}

	logPath := paths.DaemonLog
	switch {
	case c.Laser:
		logPath = paths.LaserLog
	case c.Hooks:
		logPath = paths.HookLog
	}

	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		return fmt.Errorf("log file not found: %s\nHint: Start the daemon first with 'scanjob start'", logPath)
	}

	args := []string{"tail"}
	if c.Follow {
		args = append(args, "-f")
	}
	args = append(args, logPath)

	tailPath, err := exec.LookPath("tail")
	if err != nil {
		return fmt.Errorf("tail command not found in PATH (install coreutils or similar)")
	}

	return syscall.Exec(tailPath, args, os.Environ())
}
