package pipeline

import "errors"

var (
	// ErrAlreadyDeploying rejects a pipeline start while another run for
	// the same application is still non-terminal.
	ErrAlreadyDeploying = errors.New("application is already deploying")

	// ErrRecordNotFound reports an operation on an untracked build id.
	ErrRecordNotFound = errors.New("deployment record not found")

	// ErrRecordNotTerminal rejects removing a record that is still running.
	ErrRecordNotTerminal = errors.New("deployment record is not terminal")
)
