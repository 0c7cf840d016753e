package main

import (
	"fmt"

	"github.com/d2verb/scanjob/internal/protocol"
)

// Exit codes for CLI commands.
const (
	exitSuccess          = 0
	exitError            = 1
	exitDaemonNotRunning = 2
	exitJobActive        = 3
	exitNoSnapshot       = 4
	exitDeviceFailed     = 5
)

// ExitError represents an error that should cause the process to exit with a specific code.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string { return e.Message }

func errDaemonNotRunning() *ExitError {
	return &ExitError{
		Code:    exitDaemonNotRunning,
		Message: "Daemon is not running.\nRun: scanjob start",
	}
}

func errJobActive(message string) *ExitError {
	return &ExitError{
		Code:    exitJobActive,
		Message: fmt.Sprintf("%s\nRun: scanjob abort (or wait for the job to finish)", message),
	}
}

func errNoSnapshot(message string) *ExitError {
	return &ExitError{
		Code:    exitNoSnapshot,
		Message: fmt.Sprintf("%s\nRun: scanjob snapshots list", message),
	}
}

func errDeviceFailed(message string) *ExitError {
	return &ExitError{
		Code:    exitDeviceFailed,
		Message: fmt.Sprintf("Scancard error: %s", message),
	}
}

// responseError converts a daemon error response into a CLI error.
func responseError(resp *protocol.Response) error {
	switch resp.ErrorCode {
	case protocol.ErrCodeJobActive:
		return errJobActive(resp.Error)
	case protocol.ErrCodeNoSnapshot, protocol.ErrCodeInvalidSnapshot:
		return errNoSnapshot(resp.Error)
	case protocol.ErrCodeDeviceFailed:
		return errDeviceFailed(resp.Error)
	case protocol.ErrCodeNoLayers:
		return fmt.Errorf("%s\nCheck the folder and the job.pattern / job.extension settings", resp.Error)
	default:
		return fmt.Errorf("%s", resp.Error)
	}
}
