// Package printjob drives a multi-layer print job through the scancard:
// open each layer file, mark it, wait for the device to go idle, recoat and
// persist progress, honoring pause and abort requests along the way.
package printjob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/d2verb/scanjob/internal/device"
	"github.com/d2verb/scanjob/internal/jobstate"
	"github.com/d2verb/scanjob/internal/layer"
	"github.com/d2verb/scanjob/internal/metrics"
	"github.com/d2verb/scanjob/internal/scancard"
)

// Device is the part of the scancard a print job drives.
type Device interface {
	OpenFile(ctx context.Context, path string) error
	StartMark(ctx context.Context) error
	WorkingStatus(ctx context.Context) (scancard.WorkingStatus, error)
}

// snapshotStore persists job progress.
type snapshotStore interface {
	Save(snap jobstate.Snapshot) (string, error)
	Load(path string) (*jobstate.Snapshot, error)
	Latest() (string, error)
}

// Hooks are caller-supplied steps run at fixed points of a job.
// Nil hooks are skipped.
type Hooks struct {
	// Setup runs once before the first layer of a started job.
	// Resumed jobs skip it.
	Setup func(ctx context.Context) error
	// Recoat runs after a layer has marked and the device is idle.
	Recoat func(ctx context.Context, index int) error
	// Finalize runs after the last layer unless the job was aborted.
	Finalize func(ctx context.Context) error
}

// DefaultPollInterval is how often pause and device status are re-checked.
const DefaultPollInterval = time.Second

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPollInterval sets the pause and device status polling interval.
func WithPollInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithStatusFailureLimit ends the job after n consecutive status polls fail
// to reach the device. n <= 0 keeps polling until the device answers or the
// job is aborted.
func WithStatusFailureLimit(n int) Option {
	return func(o *Orchestrator) { o.statusFailureLimit = n }
}

// WithSettleDelay sets how long to wait after start_mark before the first
// status query, so the device has left Waiting.
func WithSettleDelay(d time.Duration) Option {
	return func(o *Orchestrator) { o.settleDelay = d }
}

// WithHooks sets the job hooks.
func WithHooks(h Hooks) Option {
	return func(o *Orchestrator) { o.hooks = h }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithEventHandler registers the receiver of job events.
func WithEventHandler(h EventHandler) Option {
	return func(o *Orchestrator) { o.onEvent = h }
}

type jobSnapshot struct {
	state     State
	runID     string
	folder    string
	reason    string
	snapshot  string
	startedAt time.Time
}

// Orchestrator is the print job state machine. Control methods may be called
// from any goroutine; the job itself runs on a goroutine of its own.
type Orchestrator struct {
	// mu serializes state transitions. Reads go through snapshot.
	mu       sync.Mutex
	snapshot atomic.Pointer[jobSnapshot]
	done     chan struct{} // closed when the current run exits; protected by mu

	paused  atomic.Bool
	aborted atomic.Bool
	wake    chan struct{}

	dev   Device
	store snapshotStore
	queue *layer.Queue

	hooks        Hooks
	pollInterval time.Duration
	settleDelay  time.Duration
	logger       *slog.Logger

	statusFailureLimit int
	// cancelHooks interrupts the running hook on Abort; protected by mu.
	cancelHooks context.CancelFunc
	onEvent      EventHandler
	now          func() time.Time
}

// New returns an idle orchestrator. The queue is owned by the orchestrator
// from now on.
func New(dev Device, store snapshotStore, queue *layer.Queue, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		dev:          dev,
		store:        store,
		queue:        queue,
		wake:         make(chan struct{}, 1),
		pollInterval: DefaultPollInterval,
		settleDelay:  DefaultPollInterval,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	done := make(chan struct{})
	close(done)
	o.done = done
	o.snapshot.Store(&jobSnapshot{state: StateIdle})
	metrics.SetJobState(stateNames, string(StateIdle))
	return o
}

var stateNames = func() []string {
	names := make([]string, len(States))
	for i, s := range States {
		names[i] = string(s)
	}
	return names
}()

// State returns the current job state.
func (o *Orchestrator) State() State {
	return o.snapshot.Load().state
}

// Status returns the job state together with the queue position.
func (o *Orchestrator) Status() Status {
	snap := o.snapshot.Load()
	files, cursor := o.queue.State()
	st := Status{
		State:        snap.state,
		RunID:        snap.runID,
		Folder:       snap.folder,
		Reason:       snap.reason,
		CurrentIndex: cursor,
		TotalLayers:  len(files),
		Progress:     o.queue.Progress(),
		Snapshot:     snap.snapshot,
		StartedAt:    snap.startedAt,
	}
	if cursor >= 0 && cursor < len(files) {
		st.CurrentFile = files[cursor]
	}
	return st
}

// Files returns the queued layer files.
func (o *Orchestrator) Files() []string {
	return o.queue.Files()
}

// Wait blocks until the current run has exited or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context) error {
	o.mu.Lock()
	done := o.done
	o.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// update replaces the snapshot with a modified copy. mu must be held.
func (o *Orchestrator) update(fn func(s *jobSnapshot)) {
	cur := o.snapshot.Load()
	next := *cur
	fn(&next)
	o.snapshot.Store(&next)

	if next.state != cur.state {
		o.logger.Info("job state changed", "from", cur.state, "to", next.state, "run_id", next.runID)
		metrics.SetJobState(stateNames, string(next.state))
	}
}

func (o *Orchestrator) emit(ev Event) {
	if o.onEvent == nil {
		return
	}
	if ev.RunID == "" {
		ev.RunID = o.snapshot.Load().runID
	}
	ev.Time = o.now()
	o.onEvent(ev)
}

func (o *Orchestrator) reject(op string, from State, err error) error {
	o.logger.Warn("job request rejected", "op", op, "state", from, "error", err)
	o.emit(Event{Type: EventRejected, Layer: -1, Message: err.Error()})
	return &TransitionError{From: from, Op: op, Err: err}
}

// Load replaces the queue with the layer files in folder without starting a
// job. A later Start with an empty folder runs the loaded queue.
func (o *Orchestrator) Load(folder string) ([]string, error) {
	o.mu.Lock()
	cur := o.snapshot.Load()
	if cur.state.Active() {
		o.mu.Unlock()
		return nil, o.reject("load", cur.state, ErrJobActive)
	}
	files, err := o.queue.Load(folder)
	if err != nil {
		o.mu.Unlock()
		return nil, o.reject("load", cur.state, err)
	}
	o.update(func(s *jobSnapshot) { s.folder = folder })
	o.mu.Unlock()
	return files, nil
}

// Start runs a job over the layer files in folder. An empty folder reuses
// the queue from the last Load. ctx bounds the whole job, not only the call.
func (o *Orchestrator) Start(ctx context.Context, folder string) error {
	o.mu.Lock()

	cur := o.snapshot.Load()
	if cur.state.Active() {
		o.mu.Unlock()
		return o.reject("start", cur.state, ErrJobActive)
	}

	var files []string
	if folder == "" {
		o.queue.Reset()
		files = o.queue.Files()
		folder = cur.folder
	} else {
		loaded, err := o.queue.Load(folder)
		if err != nil {
			o.mu.Unlock()
			return o.reject("start", cur.state, err)
		}
		files = loaded
	}
	if len(files) == 0 {
		o.mu.Unlock()
		return o.reject("start", cur.state, ErrNoLayers)
	}

	runID := o.resetFlags()
	path := o.persist(-1, files)
	o.update(func(s *jobSnapshot) {
		*s = jobSnapshot{state: StateRunning, runID: runID, folder: folder, snapshot: path, startedAt: o.now()}
	})
	done := make(chan struct{})
	o.done = done
	o.mu.Unlock()

	metrics.JobProgressPercent.Set(0)
	o.emit(Event{Type: EventStarted, Layer: -1, Total: len(files), Message: "Starting print process"})
	go o.run(ctx, runID, true, done)
	return nil
}

// Resume runs a job from a saved snapshot. With an empty path it prefers the
// snapshot this orchestrator last wrote, then the newest in the store.
// A missing or invalid snapshot leaves the job Failed.
func (o *Orchestrator) Resume(ctx context.Context, path string) error {
	o.mu.Lock()

	cur := o.snapshot.Load()
	if cur.state.Active() {
		o.mu.Unlock()
		return o.reject("resume", cur.state, ErrJobActive)
	}

	if path == "" {
		path = o.resumeCandidate(cur.snapshot)
	}
	if path == "" {
		err := o.failResume(cur.state, ErrNoSnapshot, "No saved states found")
		o.mu.Unlock()
		o.emit(Event{Type: EventFailed, Layer: -1, Message: "No saved states found"})
		return err
	}

	snap, err := o.store.Load(path)
	if err == nil && len(snap.LayerFiles) == 0 {
		err = ErrNoLayers
	}
	if err == nil {
		err = o.queue.Restore(snap.LayerFiles, snap.CurrentLayerIndex)
	}
	if err != nil {
		reason := fmt.Sprintf("Failed to load state: %v", err)
		terr := o.failResume(cur.state, err, reason)
		o.mu.Unlock()
		o.emit(Event{Type: EventFailed, Layer: -1, Message: reason})
		return terr
	}

	runID := o.resetFlags()
	o.update(func(s *jobSnapshot) {
		*s = jobSnapshot{
			state:     StateRunning,
			runID:     runID,
			folder:    filepath.Dir(snap.LayerFiles[0]),
			snapshot:  path,
			startedAt: o.now(),
		}
	})
	done := make(chan struct{})
	o.done = done
	o.mu.Unlock()

	msg := "Resuming print from the first layer"
	if snap.CurrentLayerIndex >= 0 {
		msg = fmt.Sprintf("Resuming print after layer %d of %d", snap.CurrentLayerIndex+1, len(snap.LayerFiles))
	}
	o.logger.Info("resuming job", "snapshot", path, "layer", snap.CurrentLayerIndex, "run_id", runID)
	progress := o.queue.Progress()
	metrics.JobProgressPercent.Set(float64(progress))
	o.emit(Event{Type: EventResumed, Layer: snap.CurrentLayerIndex, Total: len(snap.LayerFiles), Progress: progress, Message: msg})
	go o.run(ctx, runID, false, done)
	return nil
}

// resumeCandidate picks the snapshot to resume when none is named.
func (o *Orchestrator) resumeCandidate(current string) string {
	if current != "" {
		if _, err := os.Stat(current); err == nil {
			return current
		}
	}
	latest, err := o.store.Latest()
	if err != nil {
		if !errors.Is(err, jobstate.ErrNoSnapshots) {
			o.logger.Warn("failed to look up latest snapshot", "error", err)
		}
		return ""
	}
	return latest
}

// failResume moves to Failed after a resume that could not start. mu must be
// held.
func (o *Orchestrator) failResume(from State, err error, reason string) error {
	o.logger.Error("resume failed", "error", err)
	o.update(func(s *jobSnapshot) {
		s.state = StateFailed
		s.reason = reason
	})
	return &TransitionError{From: from, Op: "resume", Err: err}
}

// resetFlags clears pause and abort for a new run. mu must be held.
func (o *Orchestrator) resetFlags() string {
	o.paused.Store(false)
	o.aborted.Store(false)
	select {
	case <-o.wake:
	default:
	}
	return uuid.NewString()
}

// Pause holds the job before its next layer. It is a no-op unless Running.
func (o *Orchestrator) Pause() bool {
	o.mu.Lock()
	if o.snapshot.Load().state != StateRunning {
		o.mu.Unlock()
		return false
	}
	o.paused.Store(true)
	o.update(func(s *jobSnapshot) { s.state = StatePaused })
	o.mu.Unlock()

	o.emit(Event{Type: EventPaused, Layer: o.queue.Cursor(), Message: "Print paused"})
	return true
}

// Continue releases a paused job. It is a no-op unless Paused.
func (o *Orchestrator) Continue() bool {
	o.mu.Lock()
	if o.snapshot.Load().state != StatePaused {
		o.mu.Unlock()
		return false
	}
	o.paused.Store(false)
	o.update(func(s *jobSnapshot) { s.state = StateRunning })
	o.signal()
	o.mu.Unlock()

	o.emit(Event{Type: EventContinued, Layer: o.queue.Cursor(), Message: "Print resumed"})
	return true
}

// Abort asks a running or paused job to stop. The command in flight is
// allowed to finish; the job observes the request at its next check and
// ends Failed. A running hook has its context cancelled, and a job aborted
// during Finalize ends aborted rather than Completed.
func (o *Orchestrator) Abort() bool {
	o.mu.Lock()
	state := o.snapshot.Load().state
	if state != StateRunning && state != StatePaused {
		o.mu.Unlock()
		return false
	}
	o.aborted.Store(true)
	o.update(func(s *jobSnapshot) { s.state = StateAborting })
	o.signal()
	if o.cancelHooks != nil {
		o.cancelHooks()
	}
	o.mu.Unlock()

	o.emit(Event{Type: EventStatus, Layer: o.queue.Cursor(), Message: "Aborting print"})
	return true
}

func (o *Orchestrator) signal() {
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

// abortError ends a run as aborted rather than failed.
type abortError struct {
	reason string
}

func (e *abortError) Error() string {
	return e.reason
}

func (o *Orchestrator) abortRequested(ctx context.Context) bool {
	return o.aborted.Load() || ctx.Err() != nil
}

func (o *Orchestrator) abort(ctx context.Context, reason string) error {
	if !o.aborted.Load() && ctx.Err() != nil {
		reason = fmt.Sprintf("Aborted: %v", ctx.Err())
	}
	return &abortError{reason: reason}
}

func (o *Orchestrator) run(ctx context.Context, runID string, fresh bool, done chan struct{}) {
	defer close(done)
	defer func() {
		if p := recover(); p != nil {
			o.logger.Error("print job panicked", "panic", p, "run_id", runID)
			o.finish(runID, StateFailed, EventFailed, fmt.Sprintf("Error: %v", p))
		}
	}()

	err := o.execute(ctx, fresh)

	var ae *abortError
	switch {
	case errors.As(err, &ae):
		o.finish(runID, StateFailed, EventAborted, ae.reason)
	case err != nil:
		o.logger.Error("print job failed", "error", err, "layer_error", IsLayer(err), "run_id", runID)
		o.finish(runID, StateFailed, EventFailed, fmt.Sprintf("Error: %v", err))
	default:
		o.finish(runID, StateCompleted, EventCompleted, "")
	}
}

// hookContext returns a context for hooks that is also cancelled by Abort.
func (o *Orchestrator) hookContext(ctx context.Context) (context.Context, context.CancelFunc) {
	hctx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.cancelHooks = cancel
	if o.aborted.Load() {
		cancel()
	}
	o.mu.Unlock()
	return hctx, func() {
		o.mu.Lock()
		o.cancelHooks = nil
		o.mu.Unlock()
		cancel()
	}
}

func (o *Orchestrator) execute(ctx context.Context, fresh bool) error {
	hctx, cancel := o.hookContext(ctx)
	defer cancel()

	if fresh && o.hooks.Setup != nil {
		o.emit(Event{Type: EventStatus, Layer: -1, Message: "Performing initial setup"})
		if err := o.hooks.Setup(hctx); err != nil {
			if o.abortRequested(ctx) {
				return o.abort(ctx, "Aborted during initial setup")
			}
			return fmt.Errorf("initial setup: %w", err)
		}
		if o.abortRequested(ctx) {
			return o.abort(ctx, "Aborted during initial setup")
		}
	}

	for {
		file, ok := o.queue.Advance()
		if !ok {
			break
		}
		if o.abortRequested(ctx) {
			return o.abort(ctx, "Aborted by user")
		}
		if err := o.waitWhilePaused(ctx); err != nil {
			return err
		}
		if err := o.processLayer(ctx, hctx, o.queue.Cursor(), file); err != nil {
			return err
		}
	}

	if o.abortRequested(ctx) {
		return o.abort(ctx, "Aborted by user")
	}
	if o.hooks.Finalize != nil {
		o.emit(Event{Type: EventStatus, Layer: -1, Message: "Finalizing print"})
		err := o.hooks.Finalize(hctx)
		if o.abortRequested(ctx) {
			return o.abort(ctx, "Aborted during finalize")
		}
		if err != nil {
			return fmt.Errorf("finalize: %w", err)
		}
	}
	return nil
}

func (o *Orchestrator) waitWhilePaused(ctx context.Context) error {
	logged := false
	for o.paused.Load() {
		if o.abortRequested(ctx) {
			return o.abort(ctx, "Aborted during pause")
		}
		if !logged {
			o.logger.Info("job paused before layer", "layer", o.queue.Cursor()+1)
			logged = true
		}
		o.sleep(ctx, o.pollInterval)
	}
	if o.abortRequested(ctx) {
		return o.abort(ctx, "Aborted during pause")
	}
	return nil
}

func (o *Orchestrator) processLayer(ctx, hctx context.Context, index int, file string) error {
	total := o.queue.Total()
	progress := o.queue.Progress()
	metrics.JobProgressPercent.Set(float64(progress))
	o.emit(Event{Type: EventProgress, Layer: index, Total: total, Progress: progress})
	o.emit(Event{Type: EventLayerChanged, Layer: index, File: file, Total: total, Progress: progress})
	o.emit(Event{Type: EventStatus, Layer: index, Message: fmt.Sprintf("Processing layer %d of %d", index+1, total)})
	o.logger.Info("processing layer", "layer", index+1, "total", total, "file", file)

	if err := o.dev.OpenFile(ctx, file); err != nil {
		return &LayerError{Index: index, File: file, Step: StepOpen, Err: err}
	}
	if err := o.dev.StartMark(ctx); err != nil {
		return &LayerError{Index: index, File: file, Step: StepMark, Err: err}
	}
	if err := o.waitForIdle(ctx, index, file); err != nil {
		return err
	}
	if o.hooks.Recoat != nil {
		if err := o.hooks.Recoat(hctx, index); err != nil {
			if o.abortRequested(ctx) {
				return o.abort(ctx, "Aborted during recoat")
			}
			return &LayerError{Index: index, File: file, Step: StepRecoat, Err: err}
		}
	}

	files, cursor := o.queue.State()
	if path := o.persist(cursor, files); path != "" {
		o.mu.Lock()
		o.update(func(s *jobSnapshot) { s.snapshot = path })
		o.mu.Unlock()
	}
	metrics.LayersMarkedTotal.Inc()
	return nil
}

// waitForIdle polls the device until it reports Waiting. An abort ends the
// wait without persisting the layer. A poll that cannot reach the device
// counts as not idle yet.
func (o *Orchestrator) waitForIdle(ctx context.Context, index int, file string) error {
	o.sleep(ctx, o.settleDelay)
	failures := 0
	for {
		if o.abortRequested(ctx) {
			return o.abort(ctx, "Aborted by user")
		}
		status, err := o.dev.WorkingStatus(ctx)
		switch {
		case err == nil:
			failures = 0
			if status == scancard.StatusWaiting {
				return nil
			}
		case o.abortRequested(ctx):
			return o.abort(ctx, "Aborted by user")
		case unreachable(err):
			failures++
			o.logger.Warn("status poll failed, still waiting for layer", "layer", index+1, "failures", failures, "error", err)
			if o.statusFailureLimit > 0 && failures >= o.statusFailureLimit {
				return &LayerError{Index: index, File: file, Step: StepStatus, Err: err}
			}
		default:
			return &LayerError{Index: index, File: file, Step: StepStatus, Err: err}
		}
		o.sleep(ctx, o.pollInterval)
	}
}

// unreachable reports whether err means the device gave no usable reply.
func unreachable(err error) bool {
	var ce *device.CommandError
	return errors.As(err, &ce) || scancard.IsTransport(err) || scancard.IsDecode(err)
}

// sleep waits for d, an abort or continue signal, or ctx.
func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-o.wake:
	case <-t.C:
	}
}

// persist saves the queue state and returns the snapshot path, or "" when
// the write failed. A failed write does not stop the job.
func (o *Orchestrator) persist(cursor int, files []string) string {
	path, err := o.store.Save(jobstate.Snapshot{
		CurrentLayerIndex: cursor,
		TotalLayers:       len(files),
		LayerFiles:        files,
	})
	if err != nil {
		metrics.SnapshotsSavedTotal.WithLabelValues("false").Inc()
		o.logger.Warn("failed to save job snapshot", "layer", cursor, "error", err)
		return ""
	}
	metrics.SnapshotsSavedTotal.WithLabelValues("true").Inc()
	return path
}

func (o *Orchestrator) finish(runID string, state State, ev EventType, reason string) {
	o.mu.Lock()
	if o.snapshot.Load().runID != runID {
		o.mu.Unlock()
		return
	}
	o.update(func(s *jobSnapshot) {
		s.state = state
		s.reason = reason
	})
	o.mu.Unlock()

	switch ev {
	case EventCompleted:
		o.logger.Info("print completed", "run_id", runID)
		o.emit(Event{Type: ev, Layer: o.queue.Cursor(), Progress: o.queue.Progress(), Message: "Print completed"})
	default:
		o.logger.Warn("print ended", "run_id", runID, "reason", reason)
		o.emit(Event{Type: ev, Layer: o.queue.Cursor(), Progress: o.queue.Progress(), Message: reason})
	}
	o.emit(Event{Type: EventStatus, Layer: -1, Message: "Print process ended"})
}
