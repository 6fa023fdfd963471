package api

import (
	"context"
	"net/http"
)

// Pinger reports cache backend reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HandleHealthz returns a handler for GET /healthz. No authentication is
// required. The cache backend is checked so load balancers see degraded
// instances; the catalog field reports whether a snapshot has been installed
// yet, which is a startup condition rather than a failure.
func HandleHealthz(pinger Pinger, catalog CatalogSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cacheStatus := "ok"
		status := http.StatusOK
		if err := pinger.Ping(r.Context()); err != nil {
			cacheStatus = "unavailable"
			status = http.StatusServiceUnavailable
		}
		catalogStatus := "installed"
		if _, err := catalog.Current(r.Context()); err != nil {
			catalogStatus = "missing"
		}
		WriteJSON(w, status, map[string]string{
			"status":  "ok",
			"cache":   cacheStatus,
			"catalog": catalogStatus,
		})
	}
}
