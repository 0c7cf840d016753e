package hook

import (
	"errors"
	"fmt"
)

// ProcessOp represents a hook process operation.
type ProcessOp string

const (
	ProcessOpStart   ProcessOp = "start"
	ProcessOpWait    ProcessOp = "wait"
	ProcessOpTimeout ProcessOp = "timeout"
)

// ProcessError indicates a hook process failed to start, exited non-zero,
// or overran its timeout.
type ProcessError struct {
	Hook string
	Op   ProcessOp
	Err  error
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("%s hook %s: %v", e.Op, e.Hook, e.Err)
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}

// IsProcessError reports whether err indicates a hook process failure.
func IsProcessError(err error) bool {
	var pe *ProcessError
	return errors.As(err, &pe)
}
