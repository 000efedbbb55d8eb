package testutil

import (
	"context"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var redisContainer sharedContainer

// GetRedisAddress returns host:port of a shared Redis container.
func GetRedisAddress(t *testing.T) string {
	t.Helper()
	return redisContainer.get(t, func(ctx context.Context) (string, error) {
		redisC, err := testcontainers.Run(
			ctx, "redis:7",
			testcontainers.WithExposedPorts("6379/tcp"),
			testcontainers.WithWaitStrategy(
				wait.ForListeningPort("6379/tcp"),
				wait.ForLog("Ready to accept connections"),
			),
		)
		return endpointOf(ctx, redisC, err)
	})
}
