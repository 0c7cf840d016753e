// Package hook runs the external commands a print job calls out to between
// layers: machine setup, powder recoating and the final recoat.
package hook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"syscall"
	"time"
)

const (
	// GracefulShutdownTimeout is how long a hook gets to exit after SIGTERM.
	GracefulShutdownTimeout = 10 * time.Second

	// Environment passed to every hook.
	EnvHook       = "SCANJOB_HOOK"
	EnvLayerIndex = "SCANJOB_LAYER_INDEX"
	EnvLayerFile  = "SCANJOB_LAYER_FILE"
)

// Runner executes hook commands with a per-run timeout.
type Runner struct {
	timeout   time.Duration
	grace     time.Duration
	logWriter io.Writer
	logger    *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogWriter sets where hook stdout and stderr go.
// If not set, output is discarded.
func WithLogWriter(w io.Writer) Option {
	return func(r *Runner) { r.logWriter = w }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithGracePeriod overrides GracefulShutdownTimeout.
func WithGracePeriod(d time.Duration) Option {
	return func(r *Runner) { r.grace = d }
}

// NewRunner returns a runner whose hooks are stopped after timeout.
// A zero timeout means no limit.
func NewRunner(timeout time.Duration, opts ...Option) *Runner {
	r := &Runner{
		timeout:   timeout,
		grace:     GracefulShutdownTimeout,
		logWriter: io.Discard,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes argv and waits for it. The process gets SIGTERM when ctx is
// done or the timeout passes, then SIGKILL after the grace period.
func (r *Runner) Run(ctx context.Context, name string, argv []string, env ...string) error {
	if len(argv) == 0 {
		return nil
	}

	runCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Stdout = r.logWriter
	cmd.Stderr = r.logWriter
	cmd.Env = append(os.Environ(), EnvHook+"="+name)
	cmd.Env = append(cmd.Env, env...)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = r.grace

	start := time.Now()
	r.logger.Info("hook started", "hook", name, "command", argv[0])
	if err := cmd.Start(); err != nil {
		return &ProcessError{Hook: name, Op: ProcessOpStart, Err: err}
	}

	err := cmd.Wait()
	elapsed := time.Since(start).Round(time.Millisecond)
	if err == nil {
		r.logger.Info("hook finished", "hook", name, "elapsed", elapsed)
		return nil
	}

	r.logger.Error("hook failed", "hook", name, "elapsed", elapsed, "error", err)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return &ProcessError{Hook: name, Op: ProcessOpTimeout, Err: fmt.Errorf("exceeded %s", r.timeout)}
	}
	return &ProcessError{Hook: name, Op: ProcessOpWait, Err: err}
}

// Func binds argv to a job-level hook. Nil is returned for an empty argv so
// the job skips the step.
func (r *Runner) Func(name string, argv []string) func(ctx context.Context) error {
	if len(argv) == 0 {
		return nil
	}
	return func(ctx context.Context) error {
		return r.Run(ctx, name, argv)
	}
}

// LayerFunc binds argv to a per-layer hook. The layer index is passed in
// SCANJOB_LAYER_INDEX and, when files is non-nil, the layer file in
// SCANJOB_LAYER_FILE.
func (r *Runner) LayerFunc(name string, argv []string, files func() []string) func(ctx context.Context, index int) error {
	if len(argv) == 0 {
		return nil
	}
	return func(ctx context.Context, index int) error {
		env := []string{EnvLayerIndex + "=" + strconv.Itoa(index)}
		if files != nil {
			if f := files(); index >= 0 && index < len(f) {
				env = append(env, EnvLayerFile+"="+f[index])
			}
		}
		return r.Run(ctx, name, argv, env...)
	}
}
