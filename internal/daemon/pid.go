package daemon

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"
)

var (
	// ErrPIDFileNotFound is returned when the PID file does not exist.
	ErrPIDFileNotFound = errors.New("PID file not found")
	// ErrInvalidPIDFile is returned when the PID file contains invalid data.
	ErrInvalidPIDFile = errors.New("invalid PID file")
)

// DaemonStatus is what the PID file and socket say about the daemon.
type DaemonStatus struct {
	Running      bool
	PID          int
	SocketExists bool
}

// WritePIDFile writes the current process ID to the specified file.
func WritePIDFile(path string) error {
	pid := os.Getpid()
	data := []byte(strconv.Itoa(pid))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write PID file: %w", err)
	}
	return nil
}

// ReadPIDFile reads the process ID from the specified file.
// Returns ErrPIDFileNotFound if the file doesn't exist.
// Returns ErrInvalidPIDFile if the file contains invalid data.
func ReadPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrPIDFileNotFound
		}
		return 0, fmt.Errorf("read PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidPIDFile, err)
	}

	if pid <= 0 {
		return 0, fmt.Errorf("%w: invalid PID %d", ErrInvalidPIDFile, pid)
	}

	return pid, nil
}

// IsProcessRunning probes pid with signal 0.
func IsProcessRunning(pid int) (bool, error) {
	if pid <= 0 {
		return false, fmt.Errorf("invalid PID: %d", pid)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false, fmt.Errorf("find process: %w", err)
	}

	err = process.Signal(syscall.Signal(0))
	switch {
	case err == nil, errors.Is(err, syscall.EPERM):
		// EPERM: alive but owned by someone else.
		return true, nil
	case errors.Is(err, syscall.ESRCH), errors.Is(err, os.ErrProcessDone):
		return false, nil
	default:
		return false, fmt.Errorf("check process: %w", err)
	}
}

// IsSocketAvailable checks if the daemon socket is accessible.
func IsSocketAvailable(socketPath string) bool {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// GetDaemonStatus checks the daemon status by examining both the PID file
// and socket availability. This provides a unified view of daemon state.
func GetDaemonStatus(pidPath, socketPath string) (*DaemonStatus, error) {
	status := &DaemonStatus{}

	// Check socket first (quick check)
	status.SocketExists = IsSocketAvailable(socketPath)

	// Read PID file
	pid, err := ReadPIDFile(pidPath)
	if err != nil {
		if errors.Is(err, ErrPIDFileNotFound) {
			// No PID file, daemon not running
			return status, nil
		}
		// Invalid PID file, might be corrupted
		return status, fmt.Errorf("read PID: %w", err)
	}

	status.PID = pid

	// Check if process is running
	running, err := IsProcessRunning(pid)
	if err != nil {
		return status, fmt.Errorf("check process %d: %w", pid, err)
	}

	status.Running = running

	// Consistency check: if socket exists but process not running,
	// or if process running but socket doesn't exist, something is wrong
	if status.SocketExists && !status.Running {
		return status, fmt.Errorf("socket exists but process %d not running (stale socket?)", pid)
	}

	return status, nil
}

// RemovePIDFile removes the PID file. It's safe to call even if the file doesn't exist.
func RemovePIDFile(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove PID file: %w", err)
	}
	return nil
}

// Stale reports whether a PID file or socket was left behind by a daemon
// that is no longer running.
func (s *DaemonStatus) Stale() bool {
	return !s.Running && (s.PID > 0 || s.SocketExists)
}

// CleanupStale removes the PID file and socket of a daemon that exited
// without cleaning up. It does nothing while the daemon runs.
func CleanupStale(status *DaemonStatus, pidPath, socketPath string) error {
	if status.Running {
		return nil
	}
	if err := RemovePIDFile(pidPath); err != nil {
		return err
	}
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove socket: %w", err)
	}
	return nil
}

// StopProcess sends SIGTERM to pid and waits up to timeout for it to exit,
// then sends SIGKILL. forced reports whether SIGKILL was needed.
func StopProcess(pid int, timeout time.Duration) (forced bool, err error) {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false, fmt.Errorf("find process: %w", err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return false, fmt.Errorf("send SIGTERM: %w", err)
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		time.Sleep(100 * time.Millisecond)
		running, err := IsProcessRunning(pid)
		if err != nil {
			return false, fmt.Errorf("check process: %w", err)
		}
		if !running {
			return false, nil
		}
	}

	if err := process.Kill(); err != nil {
		return true, fmt.Errorf("kill daemon: %w", err)
	}
	return true, nil
}
