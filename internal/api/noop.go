package api

import (
	"context"
	"fmt"
)

// NewNoopClient returns a Client whose calls all fail without touching the
// network. Useful for wiring dry runs and tests.
func NewNoopClient() Client {
	return noopClient{}
}

type noopClient struct{}

func (noopClient) Do(_ context.Context, req Request) Result {
	return Result{Err: fmt.Errorf("noop api client: %s %s not executed", req.Method, req.Path)}
}
