package daemon

import (
	"context"
	"sync"

	"github.com/d2verb/scanjob/internal/device"
	"github.com/d2verb/scanjob/internal/jobstate"
	"github.com/d2verb/scanjob/internal/printjob"
	"github.com/d2verb/scanjob/internal/scancard"
)

type stubJob struct {
	mu       sync.Mutex
	status   printjob.Status
	files    []string
	err      error
	toggleOK bool

	started   string
	resumed   string
	aborted   bool
	startCtx  context.Context
	waitErr   error
	waitCalls int
}

func (s *stubJob) Status() printjob.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *stubJob) Load(folder string) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.files, nil
}

func (s *stubJob) Start(ctx context.Context, folder string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = folder
	s.startCtx = ctx
	if s.err != nil {
		return s.err
	}
	s.status.State = printjob.StateRunning
	s.status.RunID = "run-1"
	s.status.TotalLayers = len(s.files)
	return nil
}

func (s *stubJob) Resume(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resumed = path
	if s.err != nil {
		return s.err
	}
	s.status.State = printjob.StateRunning
	return nil
}

func (s *stubJob) Pause() bool    { return s.toggleOK }
func (s *stubJob) Continue() bool { return s.toggleOK }

func (s *stubJob) Abort() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aborted = true
	return s.toggleOK
}

func (s *stubJob) Wait(ctx context.Context) error {
	s.mu.Lock()
	s.waitCalls++
	s.mu.Unlock()
	return s.waitErr
}

type stubSnapshots struct {
	metas   []jobstate.Meta
	listErr error
	deleted []string
	delErr  error
}

func (s *stubSnapshots) List() ([]jobstate.Meta, error) {
	return s.metas, s.listErr
}

func (s *stubSnapshots) Delete(path string) error {
	s.deleted = append(s.deleted, path)
	return s.delErr
}

type stubDevice struct {
	status     scancard.WorkingStatus
	err        error
	errCode    int
	stopped    bool
	cleared    bool
	report     *device.ParameterReport
	applyErr   error
	gotLayers  []int
	gotMark    map[string]any
	gotFill    map[string]any
	applyCalls int
}

func (s *stubDevice) WorkingStatus(ctx context.Context) (scancard.WorkingStatus, error) {
	return s.status, s.err
}

func (s *stubDevice) StopMark(ctx context.Context) error {
	s.stopped = true
	return s.err
}

func (s *stubDevice) LastError(ctx context.Context) (int, string, error) {
	if s.err != nil {
		return device.RetFailed, "", s.err
	}
	return s.errCode, scancard.ErrorDescription(s.errCode), nil
}

func (s *stubDevice) ClearError(ctx context.Context) error {
	s.cleared = true
	return s.err
}

func (s *stubDevice) ApplyParameters(ctx context.Context, layers []int, mark, fill map[string]any) (*device.ParameterReport, error) {
	s.applyCalls++
	s.gotLayers, s.gotMark, s.gotFill = layers, mark, fill
	return s.report, s.applyErr
}

func newTestDaemon(job *stubJob, snaps *stubSnapshots, dev *stubDevice) *Daemon {
	return New(job, snaps, dev, nil, nil)
}

func newTestServer(job *stubJob, snaps *stubSnapshots, dev *stubDevice) (*Server, *Daemon) {
	d := newTestDaemon(job, snaps, dev)
	return NewServer(d, "/tmp/scanjob-test.sock"), d
}
