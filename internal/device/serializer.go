// Package device serializes scancard commands so exactly one is in flight at
// a time, and exposes the scancard operations on top of that queue.
package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/d2verb/scanjob/internal/metrics"
	"github.com/d2verb/scanjob/internal/scancard"
)

const (
	// DefaultRetries is the attempt budget of a command.
	DefaultRetries = 3
	// DefaultRetryDelay is the pause between attempts.
	DefaultRetryDelay = time.Second
	// RetFailed is the ret value of a result whose command never got a reply.
	RetFailed = -1
)

// ErrClosed is returned for commands submitted to, or still queued in, a
// closed serializer.
var ErrClosed = errors.New("device serializer closed")

// sender performs one request/response exchange with the scancard.
type sender interface {
	Send(ctx context.Context, cmd scancard.Command) (*scancard.Response, error)
}

// Request is a command plus its retry budget.
type Request struct {
	Command    scancard.Command
	Retries    int
	RetryDelay time.Duration
}

// Result is the eventual outcome of a submitted command. Err is nil whenever
// the device replied, regardless of ret.
type Result struct {
	RetValue int
	Response *scancard.Response
	Err      error
}

// OK reports whether the device replied with the success sentinel.
func (r Result) OK() bool {
	return r.Err == nil && r.RetValue == scancard.RetSuccess
}

// Handle is returned by Submit and resolves once the command has finished.
type Handle struct {
	cmd    scancard.Command
	done   chan struct{}
	result Result
}

func newHandle(cmd scancard.Command) *Handle {
	return &Handle{cmd: cmd, done: make(chan struct{})}
}

func (h *Handle) resolve(r Result) {
	h.result = r
	close(h.done)
}

// Command returns the submitted command.
func (h *Handle) Command() scancard.Command {
	return h.cmd
}

// Done is closed once the result is available.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Result blocks until the command has finished.
func (h *Handle) Result() Result {
	<-h.done
	return h.result
}

// Wait blocks until the command has finished or ctx is done. The command
// itself keeps running if ctx ends first.
func (h *Handle) Wait(ctx context.Context) (Result, error) {
	select {
	case <-h.done:
		return h.result, nil
	case <-ctx.Done():
		return Result{RetValue: RetFailed, Err: ctx.Err()}, ctx.Err()
	}
}

type task struct {
	req    Request
	handle *Handle
}

// Serializer runs submitted commands one at a time, in submission order, on a
// single worker goroutine.
type Serializer struct {
	sender     sender
	logger     *slog.Logger
	retries    int
	retryDelay time.Duration

	// mu protects queue and closed.
	mu     sync.Mutex
	queue  []*task
	closed bool

	wake   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// Test hook (optional, defaults to a context-aware sleep)
	sleep func(ctx context.Context, d time.Duration)
}

// Option configures a Serializer.
type Option func(*Serializer)

// WithLogger sets the logger used for command tracing.
func WithLogger(l *slog.Logger) Option {
	return func(s *Serializer) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRetry sets the default attempt budget used by the device operations.
func WithRetry(retries int, delay time.Duration) Option {
	return func(s *Serializer) {
		if retries > 0 {
			s.retries = retries
		}
		if delay >= 0 {
			s.retryDelay = delay
		}
	}
}

// NewSerializer starts the worker. Close must be called to stop it.
func NewSerializer(snd sender, opts ...Option) *Serializer {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Serializer{
		sender:     snd,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		retries:    DefaultRetries,
		retryDelay: DefaultRetryDelay,
		wake:       make(chan struct{}, 1),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.loop()
	return s
}

// Submit queues req and returns immediately. The handle resolves with the
// device reply, or with RetValue -1 and a non-nil Err once the attempt budget
// is exhausted.
func (s *Serializer) Submit(req Request) *Handle {
	if req.Retries < 1 {
		req.Retries = 1
	}
	h := newHandle(req.Command)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		h.resolve(Result{RetValue: RetFailed, Err: ErrClosed})
		return h
	}
	s.queue = append(s.queue, &task{req: req, handle: h})
	metrics.QueuedCommands.Set(float64(len(s.queue)))
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return h
}

// Do submits cmd with the serializer's default retry budget.
func (s *Serializer) Do(cmd scancard.Command) *Handle {
	return s.Submit(Request{Command: cmd, Retries: s.retries, RetryDelay: s.retryDelay})
}

// Close stops accepting commands, cuts short any pending retry of the
// in-flight command, fails anything still queued with ErrClosed and waits for
// the worker to exit.
func (s *Serializer) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	select {
	case s.wake <- struct{}{}:
	default:
	}
	<-s.done
	return nil
}

func (s *Serializer) loop() {
	defer close(s.done)
	for {
		t, closed := s.next()
		if t == nil {
			if closed {
				return
			}
			<-s.wake
			continue
		}
		if closed {
			t.handle.resolve(Result{RetValue: RetFailed, Err: ErrClosed})
			continue
		}
		t.handle.resolve(s.execute(t.req))
		s.mu.Lock()
		metrics.QueuedCommands.Set(float64(len(s.queue)))
		s.mu.Unlock()
	}
}

// next pops the head of the queue. The popped task still counts as queued
// until it resolves.
func (s *Serializer) next() (*task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil, s.closed
	}
	t := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	return t, s.closed
}

func (s *Serializer) execute(req Request) Result {
	name := req.Command.Name
	start := time.Now()
	defer func() {
		metrics.CommandDurationSeconds.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}()

	var lastErr error
	attempts := 0
	for attempts < req.Retries {
		attempts++
		resp, err := s.sender.Send(s.ctx, req.Command)
		if err == nil {
			s.logReply(req.Command, resp)
			return Result{RetValue: resp.Ret, Response: resp}
		}
		lastErr = err

		if !scancard.IsTransport(err) && !scancard.IsDecode(err) {
			s.logger.Error("command failed", "command", name, "attempt", attempts, "error", err)
			break
		}
		s.logger.Warn("command attempt failed", "command", name, "attempt", attempts, "of", req.Retries, "error", err)
		if attempts < req.Retries {
			metrics.CommandRetriesTotal.WithLabelValues(name).Inc()
			s.sleep(s.ctx, req.RetryDelay)
		}
	}

	metrics.CommandsTotal.WithLabelValues(name, "failed").Inc()
	s.logger.Error("command abandoned", "command", name, "attempts", attempts)
	return Result{
		RetValue: RetFailed,
		Err:      &CommandError{Command: name, Attempts: attempts, Err: lastErr},
	}
}

func (s *Serializer) logReply(cmd scancard.Command, resp *scancard.Response) {
	// get_working_status overloads ret with the status vocabulary.
	if cmd.Name == scancard.CmdGetWorkingStatus {
		metrics.CommandsTotal.WithLabelValues(cmd.Name, "ok").Inc()
		s.logger.Debug("working status", "status", scancard.WorkingStatus(resp.Ret).String())
		return
	}
	if resp.OK() {
		metrics.CommandsTotal.WithLabelValues(cmd.Name, "ok").Inc()
		s.logger.Info("command ok", "command", cmd.Name)
		return
	}
	metrics.CommandsTotal.WithLabelValues(cmd.Name, "device_error").Inc()
	s.logger.Warn("command rejected", "command", cmd.Name, "ret", resp.Ret, "description", scancard.ErrorDescription(resp.Ret))
}

func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// Await waits for h and converts the outcome to an error: the command's
// failure, or a *scancard.DeviceError when ret is not success.
func Await(ctx context.Context, h *Handle) (*scancard.Response, error) {
	r, err := h.Wait(ctx)
	if err != nil {
		return nil, err
	}
	if r.Err != nil {
		return nil, r.Err
	}
	if !r.OK() {
		return r.Response, &scancard.DeviceError{Command: h.Command().Name, Ret: r.RetValue}
	}
	return r.Response, nil
}

// CommandError reports a command abandoned without a usable reply.
type CommandError struct {
	Command  string
	Attempts int
	Err      error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s failed after %d attempt(s): %v", e.Command, e.Attempts, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
