package api

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/fescii/Stahla-sub005/internal/audit"
	"github.com/fescii/Stahla-sub005/internal/catalog"
	"github.com/fescii/Stahla-sub005/internal/config"
	"github.com/fescii/Stahla-sub005/internal/distance"
)

// syncWaitWindow bounds how long the sync trigger waits for a fast outcome
// before detaching and answering 202.
const syncWaitWindow = 500 * time.Millisecond

// CatalogSyncer triggers a full catalog sync.
type CatalogSyncer interface {
	Sync(ctx context.Context) (*catalog.Snapshot, error)
}

// CatalogSource yields the current snapshot.
type CatalogSource interface {
	Current(ctx context.Context) (*catalog.Snapshot, error)
}

// CacheCleaner drops cache keys by prefix.
type CacheCleaner interface {
	DeleteByPrefix(ctx context.Context, prefix string) (int, error)
}

// AuditRepo reads persisted location audits.
type AuditRepo interface {
	List(limit, offset int) ([]audit.Record, error)
	Get(id string) (*audit.Record, error)
}

// HandleCatalogSync handles POST /admin/catalog/sync. The sync detaches from
// the request: a fast failure or lock conflict is reported directly, anything
// slower answers 202 and finishes in the background.
func HandleCatalogSync(syncer CatalogSyncer) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		type outcome struct {
			snap *catalog.Snapshot
			err  error
		}
		ch := make(chan outcome, 1)
		go func() {
			snap, err := syncer.Sync(context.WithoutCancel(r.Context()))
			ch <- outcome{snap, err}
		}()

		select {
		case out := <-ch:
			if errors.Is(out.err, catalog.ErrAlreadyRunning) {
				WriteError(w, r, http.StatusConflict, "already_running", "a catalog sync is already in progress")
				return
			}
			if out.err != nil {
				WriteError(w, r, http.StatusBadGateway, "sync_failed", out.err.Error())
				return
			}
			WriteJSON(w, http.StatusOK, map[string]any{
				"status":  "completed",
				"version": out.snap.Version,
			})
		case <-time.After(syncWaitWindow):
			WriteJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
		}
	})
}

// HandleCacheClear handles POST /admin/cache/clear?scope=pricing|distance|all.
func HandleCacheClear(cleaner CacheCleaner) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var prefixes []string
		switch r.URL.Query().Get("scope") {
		case "pricing":
			prefixes = []string{catalog.KeyPrefix}
		case "distance":
			prefixes = []string{distance.KeyPrefix}
		case "all":
			prefixes = []string{catalog.KeyPrefix, distance.KeyPrefix}
		default:
			writeInvalidArgument(w, r, "scope: must be pricing, distance, or all")
			return
		}

		total := 0
		for _, prefix := range prefixes {
			n, err := cleaner.DeleteByPrefix(r.Context(), prefix)
			if err != nil {
				writeInternalOrUnavailable(w, r, err)
				return
			}
			total += n
		}
		WriteJSON(w, http.StatusOK, map[string]int{"deleted": total})
	})
}

// catalogSummary is the admin readback of the installed snapshot. Full rate
// tables stay out; counts and delivery config are enough to audit a sync.
type catalogSummary struct {
	Version         int64                    `json:"version"`
	InstalledAt     time.Time                `json:"installed_at"`
	ProductCount    int                      `json:"product_count"`
	GeneratorCount  int                      `json:"generator_count"`
	BranchCount     int                      `json:"branch_count"`
	ExtraCount      int                      `json:"extra_count"`
	DistanceTiers   []catalog.DistanceTier   `json:"distance_tiers"`
	SeasonalWindows []catalog.SeasonalWindow `json:"seasonal_windows"`
}

// HandleGetCatalog handles GET /admin/catalog.
func HandleGetCatalog(source CatalogSource) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap, err := source.Current(r.Context())
		if err != nil {
			if errors.Is(err, catalog.ErrNotInstalled) {
				WriteError(w, r, http.StatusNotFound, "not_found", "no catalog snapshot installed")
				return
			}
			writeInternalOrUnavailable(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, catalogSummary{
			Version:         snap.Version,
			InstalledAt:     snap.InstalledAt,
			ProductCount:    len(snap.Products),
			GeneratorCount:  len(snap.Generators),
			BranchCount:     len(snap.Branches),
			ExtraCount:      len(snap.Extras),
			DistanceTiers:   snap.Config.DistanceTiers,
			SeasonalWindows: snap.Config.SeasonalWindows,
		})
	})
}

// HandleGetBranches handles GET /admin/catalog/branches.
func HandleGetBranches(source CatalogSource) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap, err := source.Current(r.Context())
		if err != nil {
			if errors.Is(err, catalog.ErrNotInstalled) {
				WriteError(w, r, http.StatusNotFound, "not_found", "no catalog snapshot installed")
				return
			}
			writeInternalOrUnavailable(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"branches": snap.Branches})
	})
}

// HandleListAudits handles GET /admin/audits.
func HandleListAudits(repo AuditRepo) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pg, ok := parsePaginationOrWriteInvalid(w, r)
		if !ok {
			return
		}
		records, err := repo.List(pg.Limit, pg.Offset)
		if err != nil {
			WriteError(w, r, http.StatusInternalServerError, "internal", "audit store read failed")
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"audits": records})
	})
}

// HandleGetAudit handles GET /admin/audits/{id}.
func HandleGetAudit(repo AuditRepo) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec, err := repo.Get(r.PathValue("id"))
		if err != nil {
			if errors.Is(err, audit.ErrNotFound) {
				WriteError(w, r, http.StatusNotFound, "not_found", "unknown audit id")
				return
			}
			WriteError(w, r, http.StatusInternalServerError, "internal", "audit store read failed")
			return
		}
		WriteJSON(w, http.StatusOK, rec)
	})
}

// HandleGetConfig handles GET /admin/config.
func HandleGetConfig(runtimeCfg *atomic.Pointer[config.RuntimeConfig]) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, runtimeCfg.Load())
	})
}

// runtimeConfigPatch carries the optional fields of a config patch.
type runtimeConfigPatch struct {
	LocalDistanceThresholdMiles *float64         `json:"local_distance_threshold_miles"`
	CatalogSyncInterval         *config.Duration `json:"catalog_sync_interval"`
	LatencySortedSetCap         *int             `json:"latency_sorted_set_cap"`
	MetricsMinSamples           *int             `json:"metrics_min_samples"`
}

// HandlePatchConfig handles PATCH /admin/config. The patch is applied to a
// clone, validated as a whole, then published atomically.
func HandlePatchConfig(runtimeCfg *atomic.Pointer[config.RuntimeConfig]) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var patch runtimeConfigPatch
		if err := DecodeBody(r, &patch); err != nil {
			writeDecodeBodyError(w, r, err)
			return
		}

		next := runtimeCfg.Load().Clone()
		if patch.LocalDistanceThresholdMiles != nil {
			next.LocalDistanceThresholdMiles = *patch.LocalDistanceThresholdMiles
		}
		if patch.CatalogSyncInterval != nil {
			next.CatalogSyncInterval = *patch.CatalogSyncInterval
		}
		if patch.LatencySortedSetCap != nil {
			next.LatencySortedSetCap = *patch.LatencySortedSetCap
		}
		if patch.MetricsMinSamples != nil {
			next.MetricsMinSamples = *patch.MetricsMinSamples
		}
		if err := next.Validate(); err != nil {
			writeInvalidArgument(w, r, err.Error())
			return
		}
		runtimeCfg.Store(next)
		WriteJSON(w, http.StatusOK, next)
	})
}
