//go:build integration

package lifecycle_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Shared PostgreSQL container for all integration tests in this package.
var sharedConnStr string

// TestMain starts one PostgreSQL container and reuses it across tests.
func TestMain(m *testing.M) {
	ctx := context.Background()

	// PostgreSQL logs "ready to accept connections" twice during startup
	// (once during bootstrap, once when fully ready), so wait for the
	// second occurrence.
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("tidepool_test"),
		postgres.WithUsername("tidepool_test"),
		postgres.WithPassword("tidepool_test"),
		testcontainers.WithWaitStrategyAndDeadline(5*time.Minute,
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start postgres container: %v\n", err)
		os.Exit(1)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		fmt.Fprintf(os.Stderr, "failed to get container host: %v\n", err)
		os.Exit(1)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		_ = container.Terminate(ctx)
		fmt.Fprintf(os.Stderr, "failed to get container port: %v\n", err)
		os.Exit(1)
	}

	sharedConnStr = fmt.Sprintf("postgres://tidepool_test:tidepool_test@%s:%s/tidepool_test?sslmode=disable",
		host, port.Port())

	exitCode := m.Run()

	if err := container.Terminate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to terminate container: %v\n", err)
	}

	os.Exit(exitCode)
}
