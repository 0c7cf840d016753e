package main

import (
	"errors"
	"strings"
	"testing"

	"github.com/d2verb/scanjob/internal/protocol"
)

func TestExitErrorUnwrapWithErrorsAs(t *testing.T) {
	var wrapped error = &ExitError{Code: 2, Message: "daemon not running"}

	var exitErr *ExitError
	if !errors.As(wrapped, &exitErr) {
		t.Fatal("errors.As did not match ExitError")
	}
	if exitErr.Code != 2 {
		t.Errorf("Code = %d, want 2", exitErr.Code)
	}
}

func TestErrDaemonNotRunning(t *testing.T) {
	err := errDaemonNotRunning()

	if err.Code != exitDaemonNotRunning {
		t.Errorf("Code = %d, want %d", err.Code, exitDaemonNotRunning)
	}
	if !strings.Contains(err.Message, "scanjob start") {
		t.Errorf("Message = %q, want a start hint", err.Message)
	}
}

func TestResponseError(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		wantCode int
	}{
		{"job active", protocol.ErrCodeJobActive, exitJobActive},
		{"no snapshot", protocol.ErrCodeNoSnapshot, exitNoSnapshot},
		{"invalid snapshot", protocol.ErrCodeInvalidSnapshot, exitNoSnapshot},
		{"device failed", protocol.ErrCodeDeviceFailed, exitDeviceFailed},
		{"no layers", protocol.ErrCodeNoLayers, exitError},
		{"no code", "", exitError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := protocol.NewErrorResponseWithCode(tt.code, "boom")

			err := responseError(resp)

			if got := exitCodeOf(err); got != tt.wantCode {
				t.Errorf("exit code = %d, want %d", got, tt.wantCode)
			}
			if !strings.Contains(err.Error(), "boom") {
				t.Errorf("error %q does not carry the daemon message", err)
			}
		})
	}
}

func exitCodeOf(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return exitError
}
