package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ShellRunner shells out to the system git binary. Every command runs inside
// Dir, so callers never pass -C themselves.
type ShellRunner struct {
	// Git is the git binary to execute. Defaults to "git" when empty.
	Git string

	// Dir is the working directory for every command. When empty the
	// process working directory is used.
	Dir string

	// NetworkRetries controls how many additional attempts should be made for
	// network oriented git commands (clone, fetch, pull, push). When zero, a
	// default of 2 retries is used.
	NetworkRetries int

	// NetworkRetryDelay controls the initial backoff delay between retries.
	// When zero, a default of 1 second is used. Backoff grows exponentially
	// per attempt.
	NetworkRetryDelay time.Duration

	// NetworkTimeout bounds network commands that would otherwise inherit an
	// unbounded context. When zero, a default of 2 minutes is used.
	NetworkTimeout time.Duration

	// CommandTimeout optionally bounds non-network commands. Zero leaves
	// them unbounded; an unresponsive repository (for example one on a stale
	// network mount) can then hang the caller.
	CommandTimeout time.Duration
}

// NewShellRunner returns a Runner executing git commands in dir.
func NewShellRunner(dir string) *ShellRunner {
	return &ShellRunner{Dir: dir}
}

func (r *ShellRunner) gitBinary() string {
	if r.Git == "" {
		return "git"
	}
	return r.Git
}

// Run executes one git command and returns its combined stdout/stderr.
// Network commands are retried with exponential backoff and bounded by
// NetworkTimeout; other commands are bounded by CommandTimeout when set.
func (r *ShellRunner) Run(ctx context.Context, args ...string) (string, error) {
	primary := primaryGitCommand(args)
	isNetwork := isNetworkCommand(primary)

	retries := 0
	if isNetwork {
		retries = r.networkRetriesValue()
	}

	delay := r.networkRetryDelayValue()
	var lastOut string
	var lastErr error

	for attempt := 0; attempt <= retries; attempt++ {
		attemptCtx, cancel := r.applyTimeout(ctx, isNetwork)
		out, err := r.runOnce(attemptCtx, args...)
		cancel()

		if err == nil {
			return out, nil
		}
		lastOut, lastErr = out, err

		if !isNetwork {
			break
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			break
		}
		if attempt == retries {
			break
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
		if delay < time.Second {
			delay = time.Second
		}
		delay *= 2
	}

	return lastOut, lastErr
}

func (r *ShellRunner) runOnce(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, r.gitBinary(), args...)
	cmd.Dir = r.Dir
	setProcessGroup(cmd)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Start(); err != nil {
		return "", &GitError{Args: args, Output: output.String(), Err: err}
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case <-ctx.Done():
		terminateProcessGroup(cmd)
		<-done
		return output.String(), ctx.Err()
	case err := <-done:
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return output.String(), ctxErr
			}
			return output.String(), &GitError{Args: args, Output: output.String(), Err: err}
		}
	}

	return output.String(), nil
}

func primaryGitCommand(args []string) string {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			if i+1 < len(args) {
				return args[i+1]
			}
			return ""
		}
		if strings.HasPrefix(arg, "-") {
			switch arg {
			case "-C", "--git-dir", "-c":
				i++
			}
			continue
		}
		return arg
	}
	return ""
}

func isNetworkCommand(cmd string) bool {
	switch cmd {
	case "clone", "fetch", "push", "pull", "remote":
		return true
	default:
		return false
	}
}

func (r *ShellRunner) networkRetriesValue() int {
	if r.NetworkRetries < 0 {
		return 0
	}
	if r.NetworkRetries == 0 {
		return 2
	}
	return r.NetworkRetries
}

func (r *ShellRunner) networkRetryDelayValue() time.Duration {
	if r.NetworkRetryDelay <= 0 {
		return time.Second
	}
	return r.NetworkRetryDelay
}

func (r *ShellRunner) networkTimeoutValue() time.Duration {
	if r.NetworkTimeout <= 0 {
		return 2 * time.Minute
	}
	return r.NetworkTimeout
}

func (r *ShellRunner) applyTimeout(ctx context.Context, network bool) (context.Context, context.CancelFunc) {
	if deadline, ok := ctx.Deadline(); ok && !deadline.IsZero() {
		return ctx, func() {}
	}

	timeout := r.CommandTimeout
	if network {
		timeout = r.networkTimeoutValue()
	}
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

// GitError wraps failures when invoking the git binary.
type GitError struct {
	Args   []string
	Output string
	Err    error
}

func (e *GitError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("git %s: %v\n%s", strings.Join(e.Args, " "), e.Err, e.Output)
}

func (e *GitError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

var _ Runner = (*ShellRunner)(nil)
