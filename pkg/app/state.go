package app

import (
	"context"

	"github.com/pventura/tidepool/pkg/cache"
	"github.com/pventura/tidepool/pkg/database"
)

// State is the shared application state handed to every request.
//
// It bundles the database pool and cache client handles. The value is
// immutable after construction: concurrent holders only read through it to
// invoke operations on the handles. Copying a State is cheap (two pointers)
// and never duplicates the underlying resources; those are owned and
// released exactly once by the App.
//
// Cache may be nil when the cache is configured as optional and was
// unreachable at startup; read paths then behave as permanent misses.
type State struct {
	DB    *database.Pool
	Cache *cache.Client
}

// CacheLookup is the degrade-to-miss read path on the shared state. A nil
// cache handle behaves as a permanent miss.
func (s State) CacheLookup(ctx context.Context, key string) ([]byte, bool) {
	if s.Cache == nil {
		return nil, false
	}
	return s.Cache.Lookup(ctx, key)
}
