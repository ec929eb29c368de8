// Package handlers implements the HTTP handlers of the API surface.
package handlers

import (
	"context"
	"net/http"
	"time"
)

// Resource is a backing resource that can report its own liveness.
// Both the database pool and the cache client satisfy it.
type Resource interface {
	Healthcheck(ctx context.Context) error
}

// HealthHandler handles the readiness probe.
//
// Readiness is distinct from liveness: the process may be alive while a
// backing resource is down, in which case the instance must not receive
// traffic.
type HealthHandler struct {
	db            Resource
	cache         Resource
	cacheRequired bool
}

// NewHealthHandler creates the health handler.
//
// cache may be nil when the service started without a cache handle; the
// probe then reports the cache unavailable, which only degrades overall
// readiness when cacheRequired is true.
func NewHealthHandler(db, cache Resource, cacheRequired bool) *HealthHandler {
	return &HealthHandler{db: db, cache: cache, cacheRequired: cacheRequired}
}

// ResourceHealth is the probe result for a single backing resource.
type ResourceHealth struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// HealthResponse is the readiness probe payload.
type HealthResponse struct {
	Resources []ResourceHealth `json:"resources"`
}

// Readiness handles GET /health.
//
// Returns 200 only if the database pool reports healthy and the cache
// either reports healthy or is configured as optional; 503 otherwise.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	response := HealthResponse{Resources: make([]ResourceHealth, 0, 2)}
	ready := true

	dbHealth := probe(ctx, "database", h.db)
	if dbHealth.Status != "healthy" {
		ready = false
	}
	response.Resources = append(response.Resources, dbHealth)

	cacheHealth := probe(ctx, "cache", h.cache)
	if cacheHealth.Status != "healthy" && h.cacheRequired {
		ready = false
	}
	response.Resources = append(response.Resources, cacheHealth)

	if ready {
		writeJSON(w, http.StatusOK, healthyResponse(response))
	} else {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse(response))
	}
}

// probe checks one resource and captures its status and latency.
func probe(ctx context.Context, name string, res Resource) ResourceHealth {
	if res == nil {
		return ResourceHealth{
			Name:   name,
			Status: "unavailable",
			Error:  "no handle",
		}
	}

	start := time.Now()
	err := res.Healthcheck(ctx)
	latency := time.Since(start)

	health := ResourceHealth{
		Name:    name,
		Latency: latency.String(),
	}
	if err != nil {
		health.Status = "unhealthy"
		health.Error = err.Error()
	} else {
		health.Status = "healthy"
	}
	return health
}
