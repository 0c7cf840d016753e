// Package daemon implements the scanjob daemon: it owns the print job, the
// snapshot store and the scancard connection, and serves them to the CLI.
package daemon

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/d2verb/scanjob/internal/device"
	"github.com/d2verb/scanjob/internal/jobstate"
	"github.com/d2verb/scanjob/internal/printjob"
	"github.com/d2verb/scanjob/internal/scancard"
)

// jobRunner drives the print job.
type jobRunner interface {
	Status() printjob.Status
	Load(folder string) ([]string, error)
	Start(ctx context.Context, folder string) error
	Resume(ctx context.Context, path string) error
	Pause() bool
	Continue() bool
	Abort() bool
	Wait(ctx context.Context) error
}

// snapshotCatalog lists and removes saved snapshots.
type snapshotCatalog interface {
	List() ([]jobstate.Meta, error)
	Delete(path string) error
}

// deviceController is the part of the scancard exposed for manual control.
type deviceController interface {
	WorkingStatus(ctx context.Context) (scancard.WorkingStatus, error)
	StopMark(ctx context.Context) error
	LastError(ctx context.Context) (int, string, error)
	ClearError(ctx context.Context) error
	ApplyParameters(ctx context.Context, layers []int, mark, fill map[string]any) (*device.ParameterReport, error)
}

// DefaultEventHistory is how many job events the daemon keeps for status.
const DefaultEventHistory = 20

// Daemon ties the job, the snapshot store and the device together.
type Daemon struct {
	job       jobRunner
	snapshots snapshotCatalog
	device    deviceController
	events    *EventLog
	logger    *slog.Logger

	// ctx outlives individual requests and bounds running jobs.
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a daemon. events may be nil when nothing records job events.
func New(job jobRunner, snapshots snapshotCatalog, dev deviceController, events *EventLog, logger *slog.Logger) *Daemon {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if events == nil {
		events = NewEventLog(DefaultEventHistory)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Daemon{
		job:       job,
		snapshots: snapshots,
		device:    dev,
		events:    events,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Status returns the job status.
func (d *Daemon) Status() printjob.Status {
	return d.job.Status()
}

// RecentEvents returns the latest job events, oldest first.
func (d *Daemon) RecentEvents() []printjob.Event {
	return d.events.Recent()
}

// Load previews the layer files of folder without starting a job.
func (d *Daemon) Load(folder string) ([]string, error) {
	d.logger.Info("load requested", "folder", folder)
	return d.job.Load(folder)
}

// Start starts a job over folder, or over the loaded queue when folder is
// empty.
func (d *Daemon) Start(folder string) error {
	d.logger.Info("start requested", "folder", folder)
	return d.job.Start(d.ctx, folder)
}

// Resume resumes from path, or from the preferred snapshot when path is
// empty.
func (d *Daemon) Resume(path string) error {
	d.logger.Info("resume requested", "snapshot", path)
	return d.job.Resume(d.ctx, path)
}

func (d *Daemon) Pause() bool {
	d.logger.Info("pause requested")
	return d.job.Pause()
}

func (d *Daemon) Continue() bool {
	d.logger.Info("continue requested")
	return d.job.Continue()
}

func (d *Daemon) Abort() bool {
	d.logger.Info("abort requested")
	return d.job.Abort()
}

// ListSnapshots returns saved snapshots, newest first.
func (d *Daemon) ListSnapshots() ([]jobstate.Meta, error) {
	return d.snapshots.List()
}

// DeleteSnapshot removes a saved snapshot.
func (d *Daemon) DeleteSnapshot(path string) error {
	d.logger.Info("delete snapshot requested", "snapshot", path)
	return d.snapshots.Delete(path)
}

// DeviceStatus queries the scancard working status.
func (d *Daemon) DeviceStatus(ctx context.Context) (scancard.WorkingStatus, error) {
	return d.device.WorkingStatus(ctx)
}

// StopMark stops marking on the scancard. It does not abort the job.
func (d *Daemon) StopMark(ctx context.Context) error {
	d.logger.Warn("stop mark requested")
	return d.device.StopMark(ctx)
}

// LastError returns the scancard error state.
func (d *Daemon) LastError(ctx context.Context) (int, string, error) {
	return d.device.LastError(ctx)
}

// ClearError clears the scancard error state.
func (d *Daemon) ClearError(ctx context.Context) error {
	d.logger.Info("clear error requested")
	return d.device.ClearError(ctx)
}

// ApplyParameters writes mark and fill parameters to layers. It is refused
// while a job is active.
func (d *Daemon) ApplyParameters(ctx context.Context, layers []int, mark, fill map[string]any) (*device.ParameterReport, error) {
	if st := d.job.Status(); st.State.Active() {
		return nil, &printjob.TransitionError{From: st.State, Op: "apply parameters", Err: printjob.ErrJobActive}
	}
	d.logger.Info("apply parameters requested", "layers", len(layers))
	return d.device.ApplyParameters(ctx, layers, mark, fill)
}

// Shutdown aborts an active job and waits for it to exit. Once ctx is done
// the job is cancelled outright.
func (d *Daemon) Shutdown(ctx context.Context) error {
	defer d.cancel()
	if !d.job.Status().State.Active() {
		return nil
	}
	d.logger.Info("aborting job for shutdown")
	d.job.Abort()
	if err := d.job.Wait(ctx); err != nil {
		d.logger.Warn("job did not stop before shutdown deadline", "error", err)
		return err
	}
	return nil
}

// EventLog keeps the most recent job events.
type EventLog struct {
	mu     sync.Mutex
	size   int
	events []printjob.Event
}

// NewEventLog returns a log holding at most size events.
func NewEventLog(size int) *EventLog {
	if size < 1 {
		size = 1
	}
	return &EventLog{size: size}
}

// Record appends ev, dropping the oldest event when full. It matches
// printjob.EventHandler.
func (l *EventLog) Record(ev printjob.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.events) == l.size {
		copy(l.events, l.events[1:])
		l.events = l.events[:l.size-1]
	}
	l.events = append(l.events, ev)
}

// Recent returns a copy of the recorded events, oldest first.
func (l *EventLog) Recent() []printjob.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]printjob.Event, len(l.events))
	copy(out, l.events)
	return out
}
