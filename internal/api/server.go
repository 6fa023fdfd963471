package api

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/fescii/Stahla-sub005/internal/config"
)

// Deps bundles the services the HTTP surface is wired to.
type Deps struct {
	Quote      QuoteBuilder
	Location   LocationService
	Metrics    MetricsReader
	Syncer     CatalogSyncer
	Catalog    CatalogSource
	Cache      CacheCleaner
	Audits     AuditRepo
	Pinger     Pinger
	RuntimeCfg *atomic.Pointer[config.RuntimeConfig]
}

// Server wraps the HTTP server and mux.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
}

// NewServer creates an API server wired with all routes.
func NewServer(port int, apiKey, adminToken string, quoteDeadline time.Duration, maxBodyBytes int64, deps Deps) *Server {
	return NewServerWithAddress("", port, apiKey, adminToken, quoteDeadline, maxBodyBytes, deps)
}

// NewServerWithAddress creates an API server with an explicit listen address.
func NewServerWithAddress(listenAddress string, port int, apiKey, adminToken string, quoteDeadline time.Duration, maxBodyBytes int64, deps Deps) *Server {
	mux := http.NewServeMux()

	// Public (no auth).
	mux.Handle("GET /healthz", HandleHealthz(deps.Pinger, deps.Catalog))

	// Quoting surface: API-key protected.
	keyed := func(h http.Handler) http.Handler { return APIKeyMiddleware(apiKey, h) }
	mux.Handle("POST /quote", keyed(HandleQuote(deps.Quote, quoteDeadline)))
	mux.Handle("POST /location_lookup", keyed(HandleLocationLookup(deps.Location)))
	mux.Handle("GET /location_lookup/{id}", keyed(HandleGetLocationLookup(deps.Location)))

	// Metrics and admin surfaces: admin token protected.
	admin := func(h http.Handler) http.Handler { return AuthMiddleware(adminToken, h) }
	mux.Handle("GET /metrics/percentiles", admin(HandlePercentiles(deps.Metrics)))
	mux.Handle("GET /metrics/averages", admin(HandleAverages(deps.Metrics)))
	mux.Handle("POST /admin/catalog/sync", admin(HandleCatalogSync(deps.Syncer)))
	mux.Handle("POST /admin/cache/clear", admin(HandleCacheClear(deps.Cache)))
	mux.Handle("GET /admin/catalog", admin(HandleGetCatalog(deps.Catalog)))
	mux.Handle("GET /admin/catalog/branches", admin(HandleGetBranches(deps.Catalog)))
	mux.Handle("GET /admin/audits", admin(HandleListAudits(deps.Audits)))
	mux.Handle("GET /admin/audits/{id}", admin(HandleGetAudit(deps.Audits)))
	mux.Handle("GET /admin/config", admin(HandleGetConfig(deps.RuntimeCfg)))
	mux.Handle("PATCH /admin/config", admin(HandlePatchConfig(deps.RuntimeCfg)))

	handler := RequestIDMiddleware(RequestBodyLimitMiddleware(maxBodyBytes, mux))

	srv := &http.Server{
		Addr:    net.JoinHostPort(listenAddress, strconv.Itoa(port)),
		Handler: handler,
	}
	return &Server{httpServer: srv, handler: handler}
}

// ListenAndServe starts the HTTP server. It blocks until the server stops.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the fully wired http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.handler
}
