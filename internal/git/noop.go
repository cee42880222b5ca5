package git

import (
	"context"
	"strings"
	"sync"
)

// NewNoopRunner returns a Runner that performs no actual git operations.
// Every command succeeds with empty output and is recorded, which serves
// dry runs and tests.
func NewNoopRunner() *NoopRunner {
	return &NoopRunner{}
}

// NoopRunner records the commands it was asked to run.
type NoopRunner struct {
	mu       sync.Mutex
	commands []string
}

func (r *NoopRunner) Run(_ context.Context, args ...string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, strings.Join(args, " "))
	return "", nil
}

// Commands returns the commands recorded so far.
func (r *NoopRunner) Commands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.commands))
	copy(out, r.commands)
	return out
}

var _ Runner = (*NoopRunner)(nil)
