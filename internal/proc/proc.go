// Package proc supervises a single subprocess under a wall-clock timeout and
// per-stream output caps. It knows nothing about rooms or languages.
package proc

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// killGrace bounds how long Wait may block on output pipes held open by
// orphaned descendants that escaped the process group.
const killGrace = time.Second

// Spec describes one supervised invocation.
type Spec struct {
	Command     string
	Args        []string
	Dir         string
	Timeout     time.Duration // wall clock, measured from spawn
	OutputLimit int           // byte cap applied to stdout and stderr independently
}

// Result is the structured outcome of a supervised invocation. A nil ExitCode
// means the process never produced one: timeout kill, overflow kill, missing
// binary, or signal termination. Callers disambiguate through the flags.
type Result struct {
	ExitCode         *int
	Signal           string
	Stdout           string
	Stderr           string
	TimedOut         bool
	OutputTruncated  bool
	ToolchainMissing bool
	Duration         time.Duration
}

// Execute runs the command described by spec. It never returns an error:
// spawn failures, timeouts, and output overflow are all reported through the
// Result. cleanup, if non-nil, runs on every exit path before the result is
// returned; whatever it does cannot override the result.
func Execute(ctx context.Context, spec Spec, cleanup func()) Result {
	if cleanup != nil {
		defer cleanup()
	}

	start := time.Now()
	var res Result

	runCtx, cancel := context.WithTimeout(ctx, spec.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, spec.Command, spec.Args...)
	cmd.Dir = spec.Dir

	// The child gets its own process group so that kills reap anything it
	// spawned; a backgrounded grandchild holding the output pipes must not
	// keep Wait blocked past the budget.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.WaitDelay = killGrace
	cmd.Cancel = func() error {
		err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		if err == syscall.ESRCH {
			return os.ErrProcessDone
		}
		return err
	}

	// A stream that overflows its cap kills the group immediately; a process
	// flooding output does not get to run out its timeout.
	var killOnce sync.Once
	kill := func() {
		killOnce.Do(func() {
			if cmd.Process != nil {
				_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
			}
		})
	}
	stdout := &capWriter{limit: spec.OutputLimit, overflow: kill}
	stderr := &capWriter{limit: spec.OutputLimit, overflow: kill}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		res.Duration = time.Since(start)
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			res.ToolchainMissing = true
			res.Stderr = spec.Command + ": not found on host"
		} else {
			res.Stderr = "failed to start process: " + err.Error()
		}
		return res
	}

	_ = cmd.Wait()

	res.Duration = time.Since(start)
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()
	res.OutputTruncated = stdout.Truncated() || stderr.Truncated()
	res.TimedOut = runCtx.Err() == context.DeadlineExceeded

	state := cmd.ProcessState
	if code := state.ExitCode(); code >= 0 {
		res.ExitCode = &code
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		res.Signal = ws.Signal().String()
	}
	return res
}

// capWriter buffers up to limit bytes. The first chunk that would exceed the
// cap is truncated to the remaining budget and the overflow callback fires
// exactly once. Writes never fail so the child sees no pipe error.
type capWriter struct {
	mu        sync.Mutex
	buf       []byte
	limit     int
	truncated bool
	overflow  func()
}

func (w *capWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.truncated {
		return len(p), nil
	}
	remaining := w.limit - len(w.buf)
	if len(p) > remaining {
		w.buf = append(w.buf, p[:remaining]...)
		w.truncated = true
		if w.overflow != nil {
			w.overflow()
		}
		return len(p), nil
	}
	w.buf = append(w.buf, p...)
	return len(p), nil
}

func (w *capWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return string(w.buf)
}

func (w *capWriter) Truncated() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.truncated
}
