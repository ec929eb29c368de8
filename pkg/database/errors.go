package database

import (
	"errors"
	"fmt"
)

// ErrPoolExhausted is returned by Acquire when no connection becomes
// available within the configured acquire timeout. It is a per-request,
// retryable condition and never affects other in-flight requests.
var ErrPoolExhausted = errors.New("connection pool exhausted")

// ConnectError indicates the initial connection to PostgreSQL failed.
// It is fatal at startup: the pool must never be exposed to traffic
// after a failed connect.
type ConnectError struct {
	Reason string
	Err    error
}

func (e *ConnectError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("database connect failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("database connect failed: %s", e.Reason)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// MigrateError indicates a schema migration run failed. The failing
// migration is rolled back by the driver, so no partial schema state is
// left applied for that migration.
type MigrateError struct {
	Reason string
	Err    error
}

func (e *MigrateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("database migration failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("database migration failed: %s", e.Reason)
}

func (e *MigrateError) Unwrap() error { return e.Err }
