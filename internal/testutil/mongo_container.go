package testutil

import (
	"context"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var mongoContainer sharedContainer

// GetMongoURI returns a connection URI for a shared MongoDB container.
func GetMongoURI(t *testing.T) string {
	t.Helper()
	return "mongodb://" + mongoContainer.get(t, func(ctx context.Context) (string, error) {
		mongoC, err := testcontainers.Run(
			ctx, "mongo:7",
			testcontainers.WithExposedPorts("27017/tcp"),
			testcontainers.WithWaitStrategy(
				wait.ForListeningPort("27017/tcp"),
				wait.ForLog("mongod startup complete"),
			),
		)
		return endpointOf(ctx, mongoC, err)
	})
}
