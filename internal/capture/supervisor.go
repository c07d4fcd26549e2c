package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	logpkg "github.com/gojue/ecaptureQ/pkg/log"
)

const DefaultStopGrace = time.Second

var (
	ErrNotStarted     = errors.New("capture: process not started")
	ErrAlreadyStarted = errors.New("capture: process already started")
	errExited         = errors.New("exited unexpectedly")
)

// ProcessError reports a capture process that failed to start or exited
// while it was expected to run.
type ProcessError struct {
	Binary string
	Op     string
	Err    error
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("capture process %s: %s: %v", e.Binary, e.Op, e.Err)
}

func (e *ProcessError) Unwrap() error { return e.Err }

// ProcessSupervisor owns one run of the external capture process.
type ProcessSupervisor interface {
	Start(ctx context.Context, args string) error
	// RequestStop asks the process to exit and returns once it has.
	RequestStop() error
	// Wait blocks until the process exits.
	Wait() error
}

// ExecSupervisor runs a local binary with whitespace-separated arguments.
// Output is discarded. Stopping sends an interrupt and kills the process if
// it is still alive after Grace.
type ExecSupervisor struct {
	Binary string
	Grace  time.Duration
	Logger logpkg.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	done    chan struct{}
	waitErr error
}

// NewExecSupervisor runs binary. RequestStop waits grace after the interrupt
// before killing it.
func NewExecSupervisor(binary string, grace time.Duration, logger logpkg.Logger) *ExecSupervisor {
	if grace <= 0 {
		grace = DefaultStopGrace
	}
	if logger == nil {
		logger = logpkg.NewLogger(logpkg.WithOutput(logpkg.NewNullOutput()))
	}
	return &ExecSupervisor{Binary: binary, Grace: grace, Logger: logger.WithComponent("capture")}
}

func (s *ExecSupervisor) Start(_ context.Context, args string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd != nil {
		return ErrAlreadyStarted
	}
	cmd := exec.Command(s.Binary, strings.Fields(args)...)
	if err := cmd.Start(); err != nil {
		return &ProcessError{Binary: s.Binary, Op: "start", Err: err}
	}
	s.cmd = cmd
	s.done = make(chan struct{})
	go func() {
		err := cmd.Wait()
		s.mu.Lock()
		s.waitErr = err
		s.mu.Unlock()
		close(s.done)
	}()
	s.Logger.Info("capture process started",
		logpkg.Str("binary", s.Binary), logpkg.Int("pid", cmd.Process.Pid))
	return nil
}

// PID returns the process id, or 0 before Start.
func (s *ExecSupervisor) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil || s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

func (s *ExecSupervisor) Wait() error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return ErrNotStarted
	}
	<-done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waitErr
}

func (s *ExecSupervisor) RequestStop() error {
	s.mu.Lock()
	cmd, done := s.cmd, s.done
	s.mu.Unlock()
	if cmd == nil {
		return ErrNotStarted
	}
	select {
	case <-done:
		return nil
	default:
	}
	if err := cmd.Process.Signal(os.Interrupt); err != nil {
		s.Logger.Warn("interrupt failed, killing", logpkg.Err(err))
		return s.kill(cmd, done)
	}
	t := time.NewTimer(s.Grace)
	defer t.Stop()
	select {
	case <-done:
		s.Logger.Info("capture process exited after interrupt")
		return nil
	case <-t.C:
		s.Logger.Error("capture process ignored interrupt, killing", logpkg.Dur("grace", s.Grace))
		return s.kill(cmd, done)
	}
}

func (s *ExecSupervisor) kill(cmd *exec.Cmd, done <-chan struct{}) error {
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return &ProcessError{Binary: s.Binary, Op: "kill", Err: err}
	}
	<-done
	return nil
}

// Run starts the process and supervises it until ctx is cancelled, which
// stops it gracefully and returns nil, or until it exits on its own, which
// is reported as a ProcessError.
func Run(ctx context.Context, sup ProcessSupervisor, args string) error {
	if err := sup.Start(ctx, args); err != nil {
		return err
	}
	exited := make(chan error, 1)
	go func() { exited <- sup.Wait() }()

	select {
	case <-ctx.Done():
		return stop(sup, exited)
	default:
	}
	select {
	case <-ctx.Done():
		return stop(sup, exited)
	case err := <-exited:
		if err == nil {
			err = errExited
		}
		return &ProcessError{Binary: binaryOf(sup), Op: "run", Err: err}
	}
}

func stop(sup ProcessSupervisor, exited <-chan error) error {
	if err := sup.RequestStop(); err != nil {
		return err
	}
	<-exited
	return nil
}

func binaryOf(sup ProcessSupervisor) string {
	if e, ok := sup.(*ExecSupervisor); ok {
		return e.Binary
	}
	return fmt.Sprintf("%T", sup)
}
