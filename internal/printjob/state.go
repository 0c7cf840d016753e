package printjob

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"
)

// State is the lifecycle state of a print job.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StatePaused    State = "paused"
	StateAborting  State = "aborting"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// States lists every state, in lifecycle order.
var States = []State{StateIdle, StateRunning, StatePaused, StateAborting, StateCompleted, StateFailed}

// Active reports whether a run loop owns the job in this state.
func (s State) Active() bool {
	return s == StateRunning || s == StatePaused || s == StateAborting
}

var (
	// ErrJobActive rejects start and resume while a job is running.
	ErrJobActive = errors.New("a job is already active")
	// ErrNoLayers rejects a start on a folder without layer files.
	ErrNoLayers = errors.New("no layer files found")
	// ErrNoSnapshot fails a resume when nothing has been saved.
	ErrNoSnapshot = errors.New("no saved snapshot found")
)

// TransitionError reports an operation the state machine refused or could
// not carry out.
type TransitionError struct {
	From State
	Op   string
	Err  error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s from %s: %v", e.Op, e.From, e.Err)
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}

// IsTransition reports whether err is a TransitionError.
func IsTransition(err error) bool {
	var te *TransitionError
	return errors.As(err, &te)
}

// Layer steps reported by LayerError.
const (
	StepOpen   = "open"
	StepMark   = "mark"
	StepStatus = "status"
	StepRecoat = "recoat"
)

// LayerError reports a failure while processing one layer, as opposed to a
// failure of the job as a whole.
type LayerError struct {
	Index int
	File  string
	Step  string
	Err   error
}

func (e *LayerError) Error() string {
	return fmt.Sprintf("layer %d (%s) %s: %v", e.Index+1, filepath.Base(e.File), e.Step, e.Err)
}

func (e *LayerError) Unwrap() error {
	return e.Err
}

// IsLayer reports whether err is a LayerError.
func IsLayer(err error) bool {
	var le *LayerError
	return errors.As(err, &le)
}

// Status is a consistent view of the job.
type Status struct {
	State        State     `json:"state"`
	RunID        string    `json:"run_id,omitempty"`
	Folder       string    `json:"folder,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	CurrentIndex int       `json:"current_index"`
	CurrentFile  string    `json:"current_file,omitempty"`
	TotalLayers  int       `json:"total_layers"`
	Progress     int       `json:"progress"`
	Snapshot     string    `json:"snapshot,omitempty"`
	StartedAt    time.Time `json:"started_at,omitzero"`
}
