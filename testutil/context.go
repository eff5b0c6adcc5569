package testutil

import (
	"context"
	"testing"
)

// Context returns a context that is canceled when t finishes, standing in for
// testing.T.Context on toolchains older than Go 1.24.
func Context(t testing.TB) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
