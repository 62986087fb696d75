// Package sandbox executes shell commands under a security policy and
// a hard deadline. The policy check runs before any process is
// spawned; on timeout the spawned process group is killed so no child
// survives the call that created it.
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/harun/toolwire/pkg/protocol"
)

// Options fixes the execution environment. The caller controls only
// the command string; working directory and environment come from
// configuration.
type Options struct {
	// WorkDir is the working directory for every command
	WorkDir string

	// DefaultTimeout applies when a request carries no timeout_sec
	DefaultTimeout time.Duration

	// Env is the full environment of spawned commands; when empty a
	// minimal PATH-only environment is used
	Env []string
}

// Sandbox runs commands. It holds no mutable state besides the
// swappable policy reference, so calls may run concurrently without
// coordination. Each call owns its spawned process exclusively.
type Sandbox struct {
	policy   *PolicyHolder
	opts     Options
	recorder Recorder
}

// Recorder receives a record of every exec invocation. Implementations
// must be safe for concurrent use; a nil recorder disables recording.
type Recorder interface {
	RecordExec(requestID, cmd, verdict string, exitCode int, duration time.Duration)
}

// New creates a sandbox with the given policy and options.
func New(policy *Policy, opts Options) *Sandbox {
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = 15 * time.Second
	}
	if len(opts.Env) == 0 {
		opts.Env = []string{
			"PATH=/usr/local/bin:/usr/bin:/bin",
			"HOME=/tmp",
		}
	}
	return &Sandbox{
		policy: NewPolicyHolder(policy),
		opts:   opts,
	}
}

// SetRecorder attaches an invocation recorder. Call before serving.
func (s *Sandbox) SetRecorder(r Recorder) {
	s.recorder = r
}

// Policy returns the swappable policy reference, for hot reloading.
func (s *Sandbox) Policy() *PolicyHolder {
	return s.policy
}

// Execute runs a command and returns a result envelope. A blocked
// command spawns nothing and yields a SecurityError envelope; an
// elapsed deadline kills the whole process group and yields a Timeout
// envelope; everything else is a success envelope carrying exit code,
// stdout, and stderr, regardless of the exit code itself.
func (s *Sandbox) Execute(ctx context.Context, requestID, cmd string, timeoutSec int) protocol.Envelope {
	verdict := s.policy.Current().Check(cmd)
	if !verdict.Allowed {
		log.Warn().
			Str("request_id", requestID).
			Str("rule", verdict.Rule).
			Msg("Command blocked by security policy")
		s.record(requestID, cmd, "blocked", -1, 0)
		return protocol.Failure(protocol.ErrSecurity,
			fmt.Sprintf("command blocked by policy (%s): %s", verdict.Rule, verdict.Reason))
	}

	timeout := s.opts.DefaultTimeout
	if timeoutSec > 0 {
		timeout = time.Duration(timeoutSec) * time.Second
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	command := exec.CommandContext(execCtx, "sh", "-c", cmd)
	command.Dir = s.opts.WorkDir
	command.Env = s.opts.Env

	// Own process group, so the deadline can kill children too.
	command.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	command.Cancel = func() error {
		return syscall.Kill(-command.Process.Pid, syscall.SIGKILL)
	}
	command.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	start := time.Now()
	err := command.Run()
	duration := time.Since(start)

	if ctxErr := execCtx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			log.Warn().
				Str("request_id", requestID).
				Dur("elapsed", duration).
				Dur("deadline", timeout).
				Msg("Command killed on deadline")
			s.record(requestID, cmd, "timeout", -1, duration)
			return protocol.Failure(protocol.ErrTimeout,
				fmt.Sprintf("command killed after %s (deadline %s)", duration.Round(time.Millisecond), timeout))
		}

		// Parent context canceled (e.g. the caller disconnected); the
		// process group was killed the same way.
		log.Warn().
			Str("request_id", requestID).
			Dur("elapsed", duration).
			Msg("Command killed on cancellation")
		s.record(requestID, cmd, "canceled", -1, duration)
		return protocol.Failure(protocol.ErrConnection,
			fmt.Sprintf("command canceled after %s", duration.Round(time.Millisecond)))
	}

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			// Spawn failure before the process ran (e.g. missing shell).
			s.record(requestID, cmd, "spawn_error", -1, duration)
			return protocol.Failure(protocol.ErrConnection,
				fmt.Sprintf("failed to start command: %v", err))
		}
	}

	log.Debug().
		Str("request_id", requestID).
		Int("exit_code", exitCode).
		Dur("duration", duration).
		Msg("Command executed")

	s.record(requestID, cmd, "completed", exitCode, duration)

	return protocol.Success(protocol.ExecResult{
		ExitCode: exitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}.Map())
}

func (s *Sandbox) record(requestID, cmd, verdict string, exitCode int, duration time.Duration) {
	if s.recorder == nil {
		return
	}
	s.recorder.RecordExec(requestID, cmd, verdict, exitCode, duration)
}
