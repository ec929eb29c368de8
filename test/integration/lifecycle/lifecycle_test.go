//go:build integration

package lifecycle_test

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pventura/tidepool/pkg/app"
	"github.com/pventura/tidepool/pkg/config"
	"github.com/pventura/tidepool/pkg/database"
)

func connectPool(t *testing.T, cfg database.Config) *database.Pool {
	t.Helper()

	cfg.URL = sharedConnStr
	pool, err := database.Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(pool.Close)

	return pool
}

func TestConnectAndMigrate_Idempotent(t *testing.T) {
	pool := connectPool(t, database.Config{})
	ctx := context.Background()

	if err := pool.Migrate(ctx); err != nil {
		t.Fatalf("First migrate failed: %v", err)
	}

	// Re-running against an up-to-date schema must be a no-op.
	if err := pool.Migrate(ctx); err != nil {
		t.Fatalf("Second migrate failed: %v", err)
	}

	version, dirty, err := pool.MigrationVersion(ctx)
	if err != nil {
		t.Fatalf("MigrationVersion failed: %v", err)
	}
	if version == 0 {
		t.Error("Expected a non-zero schema version after migrate")
	}
	if dirty {
		t.Error("Expected clean schema state")
	}

	if err := pool.Healthcheck(ctx); err != nil {
		t.Errorf("Expected healthy pool, got %v", err)
	}
}

func TestAcquire_PoolExhaustedWhenSaturated(t *testing.T) {
	pool := connectPool(t, database.Config{
		MaxConns:       2,
		MinConns:       1,
		AcquireTimeout: 500 * time.Millisecond,
	})
	ctx := context.Background()

	first, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("First acquire failed: %v", err)
	}
	defer first.Release()

	second, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("Second acquire failed: %v", err)
	}

	// Pool is saturated: the third acquire must fail with the sentinel
	// instead of blocking indefinitely.
	start := time.Now()
	_, err = pool.Acquire(ctx)
	elapsed := time.Since(start)

	if !errors.Is(err, database.ErrPoolExhausted) {
		t.Fatalf("Expected ErrPoolExhausted, got %v", err)
	}
	if elapsed < 400*time.Millisecond || elapsed > 5*time.Second {
		t.Errorf("Expected acquire to fail near the 500ms timeout, took %s", elapsed)
	}

	// Releasing a connection makes the pool usable again.
	second.Release()

	third, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire after release failed: %v", err)
	}
	third.Release()
}

func TestAcquire_CancellationIsNotExhaustion(t *testing.T) {
	pool := connectPool(t, database.Config{
		MaxConns:       1,
		MinConns:       1,
		AcquireTimeout: 2 * time.Second,
	})

	held, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer held.Release()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	_, err = pool.Acquire(ctx)
	if err == nil {
		t.Fatal("Expected error on cancelled acquire, got nil")
	}
	if errors.Is(err, database.ErrPoolExhausted) {
		t.Fatal("Caller cancellation must not be reported as pool exhaustion")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled in chain, got %v", err)
	}
}

func TestWithConn_ReturnsConnectionOnEveryPath(t *testing.T) {
	pool := connectPool(t, database.Config{
		MaxConns:       1,
		MinConns:       1,
		AcquireTimeout: time.Second,
	})
	ctx := context.Background()

	// With a single-connection pool, any leak makes the next call fail.
	for i := 0; i < 5; i++ {
		err := pool.WithConn(ctx, func(ctx context.Context, conn *pgxpool.Conn) error {
			var one int
			return conn.QueryRow(ctx, "SELECT 1").Scan(&one)
		})
		if err != nil {
			t.Fatalf("Iteration %d: WithConn failed: %v", i, err)
		}
	}

	wantErr := errors.New("callback failed")
	if err := pool.WithConn(ctx, func(context.Context, *pgxpool.Conn) error {
		return wantErr
	}); !errors.Is(err, wantErr) {
		t.Fatalf("Expected callback error, got %v", err)
	}

	if err := pool.WithConn(ctx, func(context.Context, *pgxpool.Conn) error {
		return nil
	}); err != nil {
		t.Fatalf("WithConn after error path failed: %v", err)
	}
}

// waitForListener polls until Serve has opened the listener and returns the
// bound address.
func waitForListener(t *testing.T, a *app.App) string {
	t.Helper()

	deadline := time.Now().Add(10 * time.Second)
	for {
		if addr := a.ListenAddr(); addr != "" {
			return addr
		}
		if time.Now().After(deadline) {
			t.Fatal("Listener did not start")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestBootstrap_FullLifecycle(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := &config.Config{}
	cfg.Database.URL = sharedConnStr
	cfg.Cache.URL = fmt.Sprintf("redis://%s", mr.Addr())
	cfg.ShutdownTimeout = 5 * time.Second
	config.ApplyDefaults(cfg)
	cfg.Server.Port = 0 // ephemeral port; must stay 0 past ApplyDefaults

	application := app.New()
	if err := application.Configure(cfg); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	ctx := context.Background()
	if err := application.Bootstrap(ctx); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	if application.Phase() != app.PhaseCacheReady {
		t.Fatalf("Expected CacheReady after bootstrap, got %s", application.Phase())
	}

	state := application.State()
	if state.DB == nil || state.Cache == nil {
		t.Fatal("Expected both resource handles in shared state")
	}

	serveCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- application.Serve(serveCtx) }()

	addr := waitForListener(t, application)

	// Liveness root answers once Serving.
	resp, err := http.Get(fmt.Sprintf("http://%s/", addr))
	if err != nil {
		t.Fatalf("Liveness request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status %d from liveness root, got %d", http.StatusOK, resp.StatusCode)
	}

	// Readiness reflects the live pool and cache.
	resp, err = http.Get(fmt.Sprintf("http://%s/health", addr))
	if err != nil {
		t.Fatalf("Readiness request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status %d from readiness probe, got %d", http.StatusOK, resp.StatusCode)
	}

	// Start a readiness request but leave its header block unterminated
	// so it is still in flight when shutdown begins.
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()
	fmt.Fprintf(conn, "GET /health HTTP/1.1\r\nHost: %s\r\n", addr)

	// Let the server read the partial request so the connection counts
	// as active rather than idle when Shutdown runs.
	time.Sleep(100 * time.Millisecond)

	cancel()

	// The drain must let the in-flight request complete against the
	// still-open resource handles.
	fmt.Fprintf(conn, "\r\n")
	inflight, err := http.ReadResponse(bufio.NewReader(conn), nil)
	if err != nil {
		t.Fatalf("In-flight request failed during drain: %v", err)
	}
	inflight.Body.Close()
	if inflight.StatusCode != http.StatusOK {
		t.Errorf("Expected status %d for in-flight request, got %d", http.StatusOK, inflight.StatusCode)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Expected clean shutdown, got %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}

	if application.Phase() != app.PhaseStopped {
		t.Errorf("Expected Stopped after drain, got %s", application.Phase())
	}
}

func TestBootstrap_OptionalCacheDown_StartsDegraded(t *testing.T) {
	required := false

	cfg := &config.Config{}
	cfg.Database.URL = sharedConnStr
	cfg.Cache.URL = "redis://127.0.0.1:1"
	cfg.Cache.Required = &required
	cfg.Cache.ConnectTimeout = 500 * time.Millisecond
	config.ApplyDefaults(cfg)

	application := app.New()
	if err := application.Configure(cfg); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	if err := application.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Expected degraded startup, got %v", err)
	}
	defer application.State().DB.Close()

	if application.Phase() != app.PhaseCacheReady {
		t.Errorf("Expected CacheReady, got %s", application.Phase())
	}
	if application.State().Cache != nil {
		t.Error("Expected nil cache handle when the optional cache is down")
	}

	// Reads through the shared state degrade to misses.
	if _, ok := application.State().CacheLookup(context.Background(), "key"); ok {
		t.Error("Expected miss from nil cache handle")
	}
}
