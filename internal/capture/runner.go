// Package capture drives the external ffmpeg encoder for snapshots
// and manages recording sessions against MediaMTX paths.
package capture

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/camlink/camerad/internal/logging"
)

// Runner timeouts. Creation covers fork/exec, execution bounds the
// whole encoder run, termination and kill bound the cleanup stages.
const (
	DefaultCreationTimeout    = 10 * time.Second
	DefaultExecutionTimeout   = 15 * time.Second
	DefaultTerminationTimeout = 3 * time.Second
	DefaultKillTimeout        = 1 * time.Second
)

// CleanupAction records how a subprocess ended beyond normal exit.
type CleanupAction string

const (
	CleanupNone       CleanupAction = ""
	CleanupTerminated CleanupAction = "terminated"
	CleanupKilled     CleanupAction = "killed"
	CleanupForced     CleanupAction = "force_exit"
)

// RunResult is the structured outcome of one encoder invocation.
type RunResult struct {
	ExitCode int
	Stderr   string
	TimedOut bool
	Err      error
	Cleanup  CleanupAction
}

// Failed reports whether the invocation did not complete successfully.
func (r *RunResult) Failed() bool {
	return r.Err != nil || r.TimedOut || r.ExitCode != 0
}

// Runner executes encoder subprocesses under the mandatory cleanup
// discipline: on any exit path a still-running process gets a graceful
// SIGINT, then a kill, then a bounded force wait.
type Runner struct {
	CreationTimeout    time.Duration
	ExecutionTimeout   time.Duration
	TerminationTimeout time.Duration
	KillTimeout        time.Duration

	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewRunner creates a runner with the default timeouts.
func NewRunner() *Runner {
	return &Runner{
		CreationTimeout:    DefaultCreationTimeout,
		ExecutionTimeout:   DefaultExecutionTimeout,
		TerminationTimeout: DefaultTerminationTimeout,
		KillTimeout:        DefaultKillTimeout,
		logger:             logging.GetLogger("capture"),
	}
}

// Run executes one encoder invocation and always returns a result; it
// never leaves the subprocess running.
func (r *Runner) Run(ctx context.Context, name string, args ...string) *RunResult {
	result := &RunResult{}

	cmd := exec.Command(name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	started := make(chan error, 1)
	go func() { started <- cmd.Start() }()

	select {
	case err := <-started:
		if err != nil {
			result.Err = err
			result.Stderr = stderr.String()
			return result
		}
	case <-time.After(r.CreationTimeout):
		result.TimedOut = true
		result.Err = errors.New("process creation timed out")
		// Start may still complete later; reap it in the background.
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			if err := <-started; err == nil {
				r.escalate(cmd, waitChan(cmd), result)
			}
		}()
		return result
	}

	done := waitChan(cmd)
	finished := false
	defer func() {
		if !finished {
			r.escalate(cmd, done, result)
		}
		result.Stderr = stderr.String()
	}()

	select {
	case err := <-done:
		finished = true
		result.ExitCode = exitCodeFromError(err)
		if result.ExitCode != 0 {
			result.Err = err
		}
	case <-time.After(r.ExecutionTimeout):
		result.TimedOut = true
		result.Err = errors.New("execution timeout exceeded")
	case <-ctx.Done():
		result.Err = ctx.Err()
	}
	return result
}

// Wait blocks until background reapers finish; used in shutdown tests.
func (r *Runner) Wait() { r.wg.Wait() }

// escalate applies the graceful-terminate, kill, force-wait protocol.
func (r *Runner) escalate(cmd *exec.Cmd, done <-chan error, result *RunResult) {
	if cmd.Process == nil {
		return
	}

	r.logger.Warn("Encoder still running, terminating",
		"pid", cmd.Process.Pid, "timed_out", result.TimedOut)
	_ = cmd.Process.Signal(syscall.SIGINT)

	select {
	case <-done:
		result.Cleanup = CleanupTerminated
		return
	case <-time.After(r.TerminationTimeout):
	}

	r.logger.Warn("Graceful termination timed out, killing", "pid", cmd.Process.Pid)
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		r.logger.Error("Failed to kill encoder", "error", err)
	}

	select {
	case <-done:
		result.Cleanup = CleanupKilled
	case <-time.After(r.KillTimeout):
		result.Cleanup = CleanupForced
		r.logger.Error("Encoder did not exit after kill", "pid", cmd.Process.Pid)
	}
}

func waitChan(cmd *exec.Cmd) <-chan error {
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	return done
}

// exitCodeFromError extracts the exit code from a Wait error.
func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}

// cleanupDescription renders the cleanup action for error strings.
func cleanupDescription(action CleanupAction) string {
	switch action {
	case CleanupTerminated:
		return "process terminated"
	case CleanupKilled:
		return "process killed"
	case CleanupForced:
		return "process did not exit after kill"
	default:
		return ""
	}
}

// joinNonEmpty joins the non-empty parts with "; ".
func joinNonEmpty(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "; ")
}
