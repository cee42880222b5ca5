package git

import "context"

// Runner executes a single git command inside a fixed working directory and
// returns its combined output. Implementations may shell out to git or
// record commands for dry runs.
type Runner interface {
	Run(ctx context.Context, args ...string) (string, error)
}
