package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var postgresContainer sharedContainer

// GetPostgresDSN returns a pgx DSN for a shared PostgreSQL container.
func GetPostgresDSN(t *testing.T) string {
	t.Helper()
	endpoint := postgresContainer.get(t, func(ctx context.Context) (string, error) {
		postgresC, err := testcontainers.Run(
			ctx, "postgres:16",
			testcontainers.WithExposedPorts("5432/tcp"),
			testcontainers.WithWaitStrategy(
				wait.ForAll(
					wait.ForListeningPort("5432/tcp"),
					wait.ForLog("ready to accept connections"),
					// Actively verify SQL connectivity using the mapped host:port
					wait.ForSQL("5432/tcp", "pgx", func(host string, port nat.Port) string {
						return postgresDSN(fmt.Sprintf("%s:%s", host, port.Port()))
					}).WithQuery("SELECT 1"),
				).WithDeadline(2*time.Minute),
			),
			testcontainers.WithEnv(map[string]string{
				"POSTGRES_USER":     "retrofit",
				"POSTGRES_PASSWORD": "retrofit",
				"POSTGRES_DB":       "retrofit_test",
			}),
		)
		return endpointOf(ctx, postgresC, err)
	})
	return postgresDSN(endpoint)
}

func postgresDSN(hostPort string) string {
	return fmt.Sprintf("postgres://retrofit:retrofit@%s/retrofit_test?sslmode=disable", hostPort)
}
