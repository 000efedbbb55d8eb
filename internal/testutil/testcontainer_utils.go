package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
)

// sharedContainer starts a container at most once per test binary and
// hands every caller the same endpoint. The container is reaped by
// testcontainers when the test process exits.
type sharedContainer struct {
	once     sync.Once
	endpoint string
	err      error
}

// get starts the container on first use. Integration tests are skipped
// under -short and when the container cannot be started (no Docker).
func (c *sharedContainer) get(t *testing.T, start func(ctx context.Context) (string, error)) string {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping container-backed test in -short mode")
	}

	c.once.Do(func() {
		// Give generous timeout in CI environments
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
		defer cancel()
		c.endpoint, c.err = start(ctx)
	})

	if c.err != nil {
		t.Skipf("container unavailable: %v", c.err)
	}
	return c.endpoint
}

func endpointOf(ctx context.Context, ctr testcontainers.Container, err error) (string, error) {
	if err != nil {
		return "", err
	}
	endpoint, err := ctr.Endpoint(ctx, "")
	if err != nil {
		_ = ctr.Terminate(context.Background()) // best-effort cleanup
		return "", err
	}
	return endpoint, nil
}
