package cache

import (
	"errors"
	"fmt"
)

// ErrMiss is returned by Get when the key does not exist. Callers that do
// not require strict cache consistency should treat any cache failure as
// equivalent to a miss; Lookup implements that policy.
var ErrMiss = errors.New("cache miss")

// ConnectError indicates the initial connection to the cache store failed.
// Whether this is fatal at startup is the bootstrapper's policy choice.
type ConnectError struct {
	Reason string
	Err    error
}

func (e *ConnectError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cache connect failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("cache connect failed: %s", e.Reason)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// OpError indicates a per-request cache operation failed. It is recoverable:
// read paths degrade to a miss, and it never fails the surrounding request.
type OpError struct {
	Op  string
	Key string
	Err error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("cache %s %q failed: %v", e.Op, e.Key, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }
