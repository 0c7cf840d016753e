package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"github.com/d2verb/scanjob/internal/device"
	"github.com/d2verb/scanjob/internal/jobstate"
	"github.com/d2verb/scanjob/internal/printjob"
	"github.com/d2verb/scanjob/internal/protocol"
	"github.com/d2verb/scanjob/internal/scancard"
)

// Server handles Unix socket communication.
type Server struct {
	daemon     *Daemon
	socketPath string
	listener   net.Listener
	logger     *slog.Logger
}

// NewServer creates a new daemon server.
func NewServer(daemon *Daemon, socketPath string) *Server {
	return &Server{
		daemon:     daemon,
		socketPath: socketPath,
		logger:     daemon.logger,
	}
}

// Start starts listening on the Unix socket.
func (s *Server) Start(ctx context.Context) error {
	// Remove existing socket file
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return err
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return err
	}
	s.listener = listener

	// Set socket permissions to owner-only (0600)
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return err
	}

	go s.acceptLoop(ctx)
	return nil
}

// Stop stops the server.
func (s *Server) Stop() error {
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}
		go s.handleConnection(ctx, conn)
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewReader(conn)
	line, err := reader.ReadBytes('\n')
	if err != nil {
		return
	}

	var req protocol.Request
	if err := json.Unmarshal(line, &req); err != nil {
		s.writeResponse(conn, protocol.NewErrorResponse("invalid request"))
		return
	}

	resp := s.handleRequest(ctx, &req)
	s.writeResponse(conn, resp)
}

func (s *Server) handleRequest(ctx context.Context, req *protocol.Request) *protocol.Response {
	switch req.Command {
	case protocol.CmdStatus:
		return s.handleStatus()
	case protocol.CmdLoad:
		return s.handleLoad(req)
	case protocol.CmdStart:
		return s.handleStart(req)
	case protocol.CmdResume:
		return s.handleResume(req)
	case protocol.CmdPause:
		return s.handleToggle(s.daemon.Pause, "job is not running")
	case protocol.CmdContinue:
		return s.handleToggle(s.daemon.Continue, "job is not paused")
	case protocol.CmdAbort:
		return s.handleToggle(s.daemon.Abort, "no active job to abort")
	case protocol.CmdListSnapshots:
		return s.handleListSnapshots()
	case protocol.CmdDeleteSnapshot:
		return s.handleDeleteSnapshot(req)
	case protocol.CmdDeviceStatus:
		return s.handleDeviceStatus(ctx)
	case protocol.CmdDeviceStopMark:
		return s.handleDeviceCall(ctx, s.daemon.StopMark)
	case protocol.CmdDeviceLastError:
		return s.handleDeviceLastError(ctx)
	case protocol.CmdDeviceClearError:
		return s.handleDeviceCall(ctx, s.daemon.ClearError)
	case protocol.CmdApplyParams:
		return s.handleApplyParams(ctx, req)
	default:
		return protocol.NewErrorResponse("unknown command")
	}
}

func (s *Server) handleStatus() *protocol.Response {
	st := s.daemon.Status()
	data := map[string]any{
		"state":         string(st.State),
		"current_index": st.CurrentIndex,
		"total_layers":  st.TotalLayers,
		"progress":      st.Progress,
	}
	optional := map[string]string{
		"run_id":       st.RunID,
		"folder":       st.Folder,
		"reason":       st.Reason,
		"current_file": st.CurrentFile,
		"snapshot":     st.Snapshot,
	}
	for k, v := range optional {
		if v != "" {
			data[k] = v
		}
	}
	if !st.StartedAt.IsZero() {
		data["started_at"] = st.StartedAt.Format(time.RFC3339)
	}

	events := []map[string]any{}
	for _, ev := range s.daemon.RecentEvents() {
		events = append(events, map[string]any{
			"type":     string(ev.Type),
			"time":     ev.Time.Format(time.RFC3339),
			"layer":    ev.Layer,
			"progress": ev.Progress,
			"message":  ev.Message,
		})
	}
	data["events"] = events
	return protocol.NewOKResponse(data)
}

func (s *Server) handleLoad(req *protocol.Request) *protocol.Response {
	folder, ok := req.Args["folder"].(string)
	if !ok || folder == "" {
		return protocol.NewErrorResponse("folder required")
	}
	files, err := s.daemon.Load(folder)
	if err != nil {
		return errorResponse(err)
	}
	return protocol.NewOKResponse(map[string]any{
		"folder": folder,
		"files":  files,
		"total":  len(files),
	})
}

func (s *Server) handleStart(req *protocol.Request) *protocol.Response {
	folder, _ := req.Args["folder"].(string)
	if err := s.daemon.Start(folder); err != nil {
		return errorResponse(err)
	}
	st := s.daemon.Status()
	return protocol.NewOKResponse(map[string]any{
		"run_id":       st.RunID,
		"total_layers": st.TotalLayers,
	})
}

func (s *Server) handleResume(req *protocol.Request) *protocol.Response {
	path, _ := req.Args["snapshot"].(string)
	if err := s.daemon.Resume(path); err != nil {
		return errorResponse(err)
	}
	st := s.daemon.Status()
	return protocol.NewOKResponse(map[string]any{
		"run_id":        st.RunID,
		"snapshot":      st.Snapshot,
		"current_index": st.CurrentIndex,
		"total_layers":  st.TotalLayers,
		"progress":      st.Progress,
	})
}

// handleToggle runs a pause/continue/abort request. A refused request is not
// an error for the daemon but is reported so the CLI can say why.
func (s *Server) handleToggle(fn func() bool, refused string) *protocol.Response {
	if !fn() {
		return protocol.NewErrorResponse(refused)
	}
	return protocol.NewOKResponse(map[string]any{
		"state": string(s.daemon.Status().State),
	})
}

func (s *Server) handleListSnapshots() *protocol.Response {
	metas, err := s.daemon.ListSnapshots()
	if err != nil {
		return protocol.NewErrorResponse(err.Error())
	}

	list := []map[string]any{}
	for _, m := range metas {
		list = append(list, map[string]any{
			"file_path":     m.Path,
			"timestamp":     m.Timestamp,
			"current_layer": m.CurrentLayer,
			"total_layers":  m.TotalLayers,
			"save_time":     m.SaveTime,
		})
	}
	return protocol.NewOKResponse(map[string]any{
		"snapshots": list,
	})
}

func (s *Server) handleDeleteSnapshot(req *protocol.Request) *protocol.Response {
	path, ok := req.Args["path"].(string)
	if !ok || path == "" {
		return protocol.NewErrorResponse("path required")
	}
	if err := s.daemon.DeleteSnapshot(path); err != nil {
		return errorResponse(err)
	}
	return protocol.NewOKResponse(nil)
}

func (s *Server) handleDeviceStatus(ctx context.Context) *protocol.Response {
	status, err := s.daemon.DeviceStatus(ctx)
	if err != nil {
		return errorResponse(err)
	}
	return protocol.NewOKResponse(map[string]any{
		"code":   int(status),
		"status": status.String(),
	})
}

func (s *Server) handleDeviceLastError(ctx context.Context) *protocol.Response {
	code, desc, err := s.daemon.LastError(ctx)
	if err != nil {
		return errorResponse(err)
	}
	return protocol.NewOKResponse(map[string]any{
		"code":        code,
		"description": desc,
	})
}

func (s *Server) handleDeviceCall(ctx context.Context, fn func(context.Context) error) *protocol.Response {
	if err := fn(ctx); err != nil {
		return errorResponse(err)
	}
	return protocol.NewOKResponse(nil)
}

func (s *Server) handleApplyParams(ctx context.Context, req *protocol.Request) *protocol.Response {
	layers, err := intSlice(req.Args["layers"])
	if err != nil || len(layers) == 0 {
		return protocol.NewErrorResponse("layers required")
	}
	mark, _ := req.Args["mark"].(map[string]any)
	fill, _ := req.Args["fill"].(map[string]any)
	if len(mark) == 0 && len(fill) == 0 {
		return protocol.NewErrorResponse("mark or fill parameters required")
	}

	report, err := s.daemon.ApplyParameters(ctx, layers, mark, fill)
	if err != nil {
		if errors.Is(err, device.ErrNoValidLayers) && report != nil {
			reasons := make([]string, 0, len(report.Invalid))
			for _, ve := range report.Invalid {
				reasons = append(reasons, ve.Error())
			}
			return protocol.NewErrorResponse(fmt.Sprintf("%v: %s", err, strings.Join(reasons, "; ")))
		}
		return errorResponse(err)
	}

	invalid := []map[string]any{}
	for _, ve := range report.Invalid {
		invalid = append(invalid, map[string]any{
			"layer":  ve.LayerID,
			"reason": ve.Reason,
		})
	}
	applied := report.Applied
	if applied == nil {
		applied = []int{}
	}
	failures := report.Failures
	if failures == nil {
		failures = []string{}
	}
	return protocol.NewOKResponse(map[string]any{
		"applied":    applied,
		"invalid":    invalid,
		"failures":   failures,
		"downloaded": report.Downloaded,
	})
}

// intSlice converts a JSON array of numbers to ints.
func intSlice(v any) ([]int, error) {
	raw, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected array, got %T", v)
	}
	out := make([]int, 0, len(raw))
	for _, item := range raw {
		f, ok := item.(float64)
		if !ok || f != float64(int(f)) {
			return nil, fmt.Errorf("invalid layer %v", item)
		}
		out = append(out, int(f))
	}
	return out, nil
}

// errorResponse builds an error response carrying the code that matches err.
func errorResponse(err error) *protocol.Response {
	code := classifyError(err)
	if code == "" {
		return protocol.NewErrorResponse(err.Error())
	}
	return protocol.NewErrorResponseWithCode(code, err.Error())
}

// classifyError determines the error code based on the error type.
func classifyError(err error) string {
	switch {
	case errors.Is(err, printjob.ErrJobActive):
		return protocol.ErrCodeJobActive
	case errors.Is(err, printjob.ErrNoLayers):
		return protocol.ErrCodeNoLayers
	case errors.Is(err, printjob.ErrNoSnapshot), errors.Is(err, jobstate.ErrSnapshotNotFound):
		return protocol.ErrCodeNoSnapshot
	case jobstate.IsInvalidSnapshot(err):
		return protocol.ErrCodeInvalidSnapshot
	case scancard.IsDevice(err), scancard.IsTransport(err), scancard.IsDecode(err):
		return protocol.ErrCodeDeviceFailed
	}
	var ce *device.CommandError
	if errors.As(err, &ce) {
		return protocol.ErrCodeDeviceFailed
	}
	return ""
}

func (s *Server) writeResponse(conn net.Conn, resp *protocol.Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("failed to encode response", "error", err)
		return
	}
	data = append(data, '\n')
	_, _ = conn.Write(data)
}
