// Package protocol defines the JSON protocol spoken between the scanjob CLI
// and its daemon.
package protocol

// Request is a command sent to the daemon.
type Request struct {
	Command string         `json:"command"`
	Args    map[string]any `json:"args,omitempty"`
}

// Response is the daemon's reply.
type Response struct {
	Status    string         `json:"status"` // "ok" or "error"
	Data      map[string]any `json:"data,omitempty"`
	Error     string         `json:"error,omitempty"`
	ErrorCode string         `json:"error_code,omitempty"`
}

// Job commands
const (
	CmdStatus   = "status"
	CmdLoad     = "load"
	CmdStart    = "start"
	CmdResume   = "resume"
	CmdPause    = "pause"
	CmdContinue = "continue"
	CmdAbort    = "abort"
)

// Snapshot commands
const (
	CmdListSnapshots  = "list_snapshots"
	CmdDeleteSnapshot = "delete_snapshot"
)

// Device commands
const (
	CmdDeviceStatus     = "device_status"
	CmdDeviceStopMark   = "device_stop_mark"
	CmdDeviceLastError  = "device_last_error"
	CmdDeviceClearError = "device_clear_error"
	CmdApplyParams      = "apply_params"
)

// Status values
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Error codes for programmatic error handling
const (
	ErrCodeJobActive       = "job_active"
	ErrCodeNoLayers        = "no_layers"
	ErrCodeNoSnapshot      = "no_snapshot"
	ErrCodeInvalidSnapshot = "invalid_snapshot"
	ErrCodeDeviceFailed    = "device_failed"
)

// NewRequest creates a new request with the given command and args.
func NewRequest(command string, args map[string]any) *Request {
	return &Request{
		Command: command,
		Args:    args,
	}
}

// NewOKResponse creates a successful response with data.
func NewOKResponse(data map[string]any) *Response {
	return &Response{
		Status: StatusOK,
		Data:   data,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(err string) *Response {
	return &Response{
		Status: StatusError,
		Error:  err,
	}
}

// NewErrorResponseWithCode creates an error response the client can match
// on by code.
func NewErrorResponseWithCode(code, err string) *Response {
	return &Response{
		Status:    StatusError,
		Error:     err,
		ErrorCode: code,
	}
}
