// Package app contains the service bootstrapper and the shared application
// state it constructs.
//
// The bootstrapper walks a strict startup/shutdown state machine:
//
//	Unconfigured → Configured → DatabaseReady → CacheReady → Serving →
//	Draining → Stopped
//
// No forward transition is skipped, every startup failure aborts straight
// to Stopped with the resources opened so far released, and no resource
// handle is constructed more than once per process lifetime.
package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/pventura/tidepool/internal/logger"
	"github.com/pventura/tidepool/pkg/api"
	"github.com/pventura/tidepool/pkg/api/handlers"
	"github.com/pventura/tidepool/pkg/cache"
	"github.com/pventura/tidepool/pkg/config"
	"github.com/pventura/tidepool/pkg/database"
)

// Phase is a stage of the bootstrapper's lifecycle state machine.
type Phase int

const (
	PhaseUnconfigured Phase = iota
	PhaseConfigured
	PhaseDatabaseReady
	PhaseCacheReady
	PhaseServing
	PhaseDraining
	PhaseStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseUnconfigured:
		return "Unconfigured"
	case PhaseConfigured:
		return "Configured"
	case PhaseDatabaseReady:
		return "DatabaseReady"
	case PhaseCacheReady:
		return "CacheReady"
	case PhaseServing:
		return "Serving"
	case PhaseDraining:
		return "Draining"
	case PhaseStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// next is the single legal forward transition out of each phase.
// Stopped is additionally reachable from every phase (fatal abort).
var next = map[Phase]Phase{
	PhaseUnconfigured:  PhaseConfigured,
	PhaseConfigured:    PhaseDatabaseReady,
	PhaseDatabaseReady: PhaseCacheReady,
	PhaseCacheReady:    PhaseServing,
	PhaseServing:       PhaseDraining,
	PhaseDraining:      PhaseStopped,
}

// App orchestrates resource startup, the shared state handed to requests,
// and teardown.
type App struct {
	mu    sync.Mutex
	phase Phase

	cfg    *config.Config
	state  State
	server *api.Server

	releaseOnce sync.Once
}

// New returns an App in the Unconfigured phase.
func New() *App {
	return &App{phase: PhaseUnconfigured}
}

// Phase returns the current lifecycle phase.
func (a *App) Phase() Phase {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.phase
}

// State returns the shared application state. Only meaningful once the
// bootstrap has reached CacheReady.
func (a *App) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// ListenAddr returns the bound listener address once Serve has opened the
// listener, or "" before that.
func (a *App) ListenAddr() string {
	a.mu.Lock()
	server := a.server
	a.mu.Unlock()

	if server == nil {
		return ""
	}
	return server.Addr()
}

// transition advances the state machine, rejecting any move that is not the
// single legal forward step or a fatal abort to Stopped.
func (a *App) transition(to Phase) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if to != PhaseStopped && next[a.phase] != to {
		return fmt.Errorf("illegal lifecycle transition %s -> %s", a.phase, to)
	}
	logger.Debug("Lifecycle transition", "from", a.phase.String(), "to", to.String())
	a.phase = to
	return nil
}

// Configure records the loaded configuration: Unconfigured → Configured.
//
// The configuration loader has already failed fast on missing keys, so no
// resource has been opened when Configure is reached.
func (a *App) Configure(cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is required")
	}
	if err := a.transition(PhaseConfigured); err != nil {
		return err
	}
	a.mu.Lock()
	a.cfg = cfg
	a.mu.Unlock()
	return nil
}

// Bootstrap brings up the backing resources in dependency order:
// database connect + migrate, then cache connect, then the shared state.
//
// Any failure releases the resources opened so far, moves the App to
// Stopped, and returns the originating error. A cache connect failure is
// fatal by default; setting cache.required to false degrades it to a
// warning and the service starts without a cache handle.
func (a *App) Bootstrap(ctx context.Context) error {
	if a.Phase() != PhaseConfigured {
		return fmt.Errorf("bootstrap requires Configured phase, currently %s", a.Phase())
	}

	pool, err := database.Connect(ctx, a.cfg.Database)
	if err != nil {
		return a.abort(err)
	}
	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		return a.abort(err)
	}
	if err := a.transition(PhaseDatabaseReady); err != nil {
		pool.Close()
		return a.abort(err)
	}

	client, err := cache.Connect(ctx, a.cfg.Cache)
	if err != nil {
		if a.cfg.Cache.IsRequired() {
			pool.Close()
			return a.abort(err)
		}
		logger.Warn("Cache unavailable at startup, continuing without cache", "error", err)
		client = nil
	}
	if err := a.transition(PhaseCacheReady); err != nil {
		pool.Close()
		if client != nil {
			client.Close()
		}
		return a.abort(err)
	}

	a.mu.Lock()
	a.state = State{DB: pool, Cache: client}
	a.mu.Unlock()

	return nil
}

// Serve starts the HTTP listener and blocks until the context is cancelled
// or the listener fails.
//
// On cancellation the App drains: the listener stops accepting new
// connections, in-flight requests get the configured shutdown timeout to
// complete, then all resource handles are released exactly once and the
// App reaches Stopped.
func (a *App) Serve(ctx context.Context) error {
	if err := a.transition(PhaseServing); err != nil {
		return a.abort(err)
	}

	state := a.State()

	var cacheResource handlers.Resource
	if state.Cache != nil {
		cacheResource = state.Cache
	}
	health := handlers.NewHealthHandler(state.DB, cacheResource, a.cfg.Cache.IsRequired())

	server := api.NewServer(a.cfg.Server, api.NewRouter(health, a.cfg.Metrics.Enabled))
	a.mu.Lock()
	a.server = server
	a.mu.Unlock()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Listener started", "addr", a.cfg.Server.Addr())
		serverErr <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		if err := a.transition(PhaseDraining); err != nil {
			return a.abort(err)
		}
		logger.Info("Draining: no longer accepting connections", "grace", a.cfg.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()
		drainErr := server.Stop(shutdownCtx)

		a.release()
		if err := a.transition(PhaseStopped); err != nil {
			return err
		}
		if drainErr != nil {
			return fmt.Errorf("drain failed: %w", drainErr)
		}
		logger.Info("Shutdown complete")
		return nil

	case err := <-serverErr:
		a.release()
		_ = a.transition(PhaseStopped)
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("listener failed: %w", err)
		}
		return nil
	}
}

// abort releases any opened resources and forces the Stopped phase,
// propagating the originating error.
func (a *App) abort(err error) error {
	a.release()
	a.mu.Lock()
	logger.Error("Startup aborted", "phase", a.phase.String(), "error", err)
	a.phase = PhaseStopped
	a.mu.Unlock()
	return err
}

// release closes the shared resource handles. Guarded so handles are
// closed exactly once regardless of which shutdown path runs.
func (a *App) release() {
	a.releaseOnce.Do(func() {
		state := a.State()
		if state.DB != nil {
			state.DB.Close()
		}
		if state.Cache != nil {
			state.Cache.Close()
		}
	})
}
