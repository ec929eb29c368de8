package database

import (
	"context"
	"database/sql"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for database/sql

	"github.com/pventura/tidepool/internal/logger"
	"github.com/pventura/tidepool/pkg/database/migrations"
)

// Migrate applies all pending schema migrations in ascending version order.
//
// Each migration runs in its own transaction, so a failing migration leaves
// no partial schema state behind. Re-running Migrate on an up-to-date
// database is a no-op. golang-migrate takes a PostgreSQL advisory lock, so
// concurrent instances cannot run migrations at the same time.
//
// Migrate must only be called after Connect has succeeded, and must succeed
// before the pool is exposed to request traffic.
func (p *Pool) Migrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.MigrateTimeout)
	defer cancel()

	m, db, err := newMigrator(ctx, p.cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	logger.Info("Applying database migrations")
	err = runBounded(ctx, m.Up)
	if err != nil && err != migrate.ErrNoChange {
		return &MigrateError{Reason: "migration run failed", Err: err}
	}
	if err == migrate.ErrNoChange {
		logger.Info("No migrations to apply (schema is up to date)")
	}

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return &MigrateError{Reason: "failed to read schema version", Err: err}
	}
	if err != migrate.ErrNilVersion {
		logger.Info("Schema version", "version", version, "dirty", dirty)
		if dirty {
			logger.Warn("Schema is in dirty state, manual intervention may be required")
		}
	}

	return nil
}

// MigrateDown rolls back the most recent migration. It is only invoked by
// an explicit operator command, never automatically.
func (p *Pool) MigrateDown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.MigrateTimeout)
	defer cancel()

	m, db, err := newMigrator(ctx, p.cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	logger.Warn("Rolling back last database migration")
	if err := runBounded(ctx, func() error { return m.Steps(-1) }); err != nil {
		return &MigrateError{Reason: "rollback failed", Err: err}
	}
	return nil
}

// runBounded races fn against ctx. golang-migrate operations take no
// context, so without this a hung statement would block startup past the
// configured migrate timeout. The statement timeout passed to the driver
// bounds individual statements; this bounds the whole run, lock
// acquisition included.
func runBounded(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// MigrationVersion returns the currently applied schema version.
// Returns (0, false, nil) when no migration has been applied yet.
func (p *Pool) MigrationVersion(ctx context.Context) (uint, bool, error) {
	m, db, err := newMigrator(ctx, p.cfg)
	if err != nil {
		return 0, false, err
	}
	defer db.Close()

	version, dirty, err := m.Version()
	if err == migrate.ErrNilVersion {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, &MigrateError{Reason: "failed to read schema version", Err: err}
	}
	return version, dirty, nil
}

// newMigrator builds a migrate instance over the embedded migrations FS.
// golang-migrate requires database/sql, so it opens its own connection
// rather than borrowing from the pgx pool. The caller closes db.
func newMigrator(ctx context.Context, cfg Config) (*migrate.Migrate, *sql.DB, error) {
	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, nil, &MigrateError{Reason: "failed to open connection", Err: err}
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, &MigrateError{Reason: "failed to ping database", Err: err}
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{
		MigrationsTable:  "schema_migrations",
		StatementTimeout: cfg.MigrateTimeout,
	})
	if err != nil {
		db.Close()
		return nil, nil, &MigrateError{Reason: "failed to create postgres driver", Err: err}
	}

	sourceDriver, err := iofs.New(migrations.FS, ".")
	if err != nil {
		db.Close()
		return nil, nil, &MigrateError{Reason: "failed to load embedded migrations", Err: err}
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", driver)
	if err != nil {
		db.Close()
		return nil, nil, &MigrateError{Reason: "failed to create migrate instance", Err: err}
	}

	return m, db, nil
}
