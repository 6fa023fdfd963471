package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fescii/Stahla-sub005/internal/api"
	"github.com/fescii/Stahla-sub005/internal/audit"
	"github.com/fescii/Stahla-sub005/internal/buildinfo"
	"github.com/fescii/Stahla-sub005/internal/cache"
	"github.com/fescii/Stahla-sub005/internal/catalog"
	"github.com/fescii/Stahla-sub005/internal/config"
	"github.com/fescii/Stahla-sub005/internal/distance"
	"github.com/fescii/Stahla-sub005/internal/locator"
	"github.com/fescii/Stahla-sub005/internal/maps"
	"github.com/fescii/Stahla-sub005/internal/netutil"
	"github.com/fescii/Stahla-sub005/internal/quote"
	"github.com/fescii/Stahla-sub005/internal/recorder"
	"github.com/fescii/Stahla-sub005/internal/sheets"
)

// fetchRetryBackoff is the pause before the single transport-level retry on
// outbound HTTP calls.
const fetchRetryBackoff = 250 * time.Millisecond

type stahlaApp struct {
	envCfg     *config.EnvConfig
	runtimeCfg *atomic.Pointer[config.RuntimeConfig]

	store        *cache.Store
	auditDB      *sql.DB
	auditSvc     *audit.Service
	rec          *recorder.Recorder
	catalogStore *catalog.Store
	scheduler    *catalog.Scheduler
	locatorSvc   *locator.Service
	rootCancel   context.CancelFunc
	apiDeps      api.Deps
	apiSrv       *api.Server

	schedulerStarted bool
}

func run() error {
	log.Printf("stahla %s (%s, built %s)", buildinfo.Version, buildinfo.GitCommit, buildinfo.BuildTime)

	envCfg, err := config.LoadEnvConfig()
	if err != nil {
		return err
	}

	app, err := newStahlaApp(envCfg)
	if err != nil {
		return err
	}

	serverErrCh := app.startServer()
	runtimeErr := waitForShutdown(serverErrCh)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	app.shutdown(ctx)

	if runtimeErr != nil {
		return fmt.Errorf("runtime server error: %w", runtimeErr)
	}
	return nil
}

func newStahlaApp(envCfg *config.EnvConfig) (*stahlaApp, error) {
	app := &stahlaApp{
		envCfg:     envCfg,
		runtimeCfg: &atomic.Pointer[config.RuntimeConfig]{},
	}
	app.runtimeCfg.Store(config.NewRuntimeConfig(envCfg))

	if err := app.initCache(); err != nil {
		return nil, err
	}
	if err := app.initAuditStore(); err != nil {
		return nil, err
	}
	app.initRecorder()
	app.initPipelines()
	app.buildAPIServer()
	return app, nil
}

func (a *stahlaApp) initCache() error {
	store, err := cache.NewStore(a.envCfg.CacheURL, a.envCfg.CacheOpTimeout)
	if err != nil {
		return fmt.Errorf("cache store: %w", err)
	}
	a.store = store

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		// Degraded start: quoting fails per-request until the cache
		// returns, but the process stays up.
		log.Printf("Warning: cache backend unreachable at startup: %v", err)
	} else {
		log.Println("Cache store connected")
	}
	return nil
}

func (a *stahlaApp) initAuditStore() error {
	db, err := audit.OpenDB(a.envCfg.AuditDir)
	if err != nil {
		return fmt.Errorf("audit DB: %w", err)
	}
	a.auditDB = db

	a.auditSvc = audit.NewService(audit.ServiceConfig{
		Repo:          audit.NewRepo(db),
		QueueSize:     a.envCfg.AuditQueueSize,
		FlushBatch:    a.envCfg.AuditFlushBatch,
		FlushInterval: a.envCfg.AuditFlushInterval,
	})
	a.auditSvc.Start()
	log.Println("Audit writer started")
	return nil
}

func (a *stahlaApp) initRecorder() {
	sink := recorder.NewCacheSink(a.store, func() int {
		return a.runtimeCfg.Load().LatencySortedSetCap
	})
	a.rec = recorder.New(sink, a.envCfg.LatencySampleCapacity, a.envCfg.LatencySampleMaxAge)
	a.rec.Start()
	log.Println("Latency recorder started")
}

func (a *stahlaApp) initPipelines() {
	// Serving-path cache operations report into the latency recorder. The
	// recorder's own sink and the metrics reader stay on the raw store so
	// persisting a sample never produces another sample.
	measured := a.store.WithObserver(func(op string, err error, elapsed time.Duration) {
		a.rec.Record(recorder.ServiceCache, op, recorder.StatusFor(err), elapsed)
	})

	sheetsFetcher := netutil.NewClient(func() time.Duration {
		return a.envCfg.CatalogFetchTimeout
	}, fetchRetryBackoff)
	sheetsClient := sheets.NewClient(sheetsFetcher, a.envCfg.SheetBaseURL, a.envCfg.SheetID, a.envCfg.SheetAPIKey)

	mapsFetcher := netutil.NewClient(func() time.Duration {
		return a.envCfg.MapsTimeout
	}, fetchRetryBackoff)
	mapsClient := maps.NewClient(mapsFetcher, a.envCfg.MapsBaseURL, a.envCfg.MapsAPIKey, a.rec)

	a.catalogStore = catalog.NewStore(measured)
	a.installSeedCatalog(measured)

	syncer := catalog.NewSyncer(sheetsClient, a.catalogStore, catalog.CacheLeaser(measured), catalog.Ranges{
		Products:   a.envCfg.SheetRangeProducts,
		Generators: a.envCfg.SheetRangeGenerators,
		Branches:   a.envCfg.SheetRangeBranches,
		Config:     a.envCfg.SheetRangeConfig,
	}, a.envCfg.CatalogFetchTimeout)

	a.scheduler = catalog.NewScheduler(syncer, a.catalogStore, func() time.Duration {
		return a.runtimeCfg.Load().CatalogSyncInterval.Std()
	}, a.envCfg.CatalogSyncSchedule)
	if sheetsClient.Enabled() {
		if err := a.scheduler.Start(); err != nil {
			log.Printf("Warning: catalog scheduler: %v", err)
		} else {
			a.schedulerStarted = true
			log.Println("Catalog sync scheduler started")
		}
	} else {
		log.Println("No spreadsheet source configured; catalog served from seed or last synced snapshot")
	}

	resolver := distance.NewResolver(
		measured,
		mapsClient,
		"google_maps",
		a.envCfg.DistanceTTL,
		a.envCfg.DistanceFallbackTTL,
		a.envCfg.RoadFactor,
	)

	rootCtx, rootCancel := context.WithCancel(context.Background())
	a.rootCancel = rootCancel
	a.locatorSvc = locator.NewService(
		rootCtx,
		a.catalogStore,
		resolver,
		measured,
		a.auditSvc,
		a.rec,
		a.envCfg.LocationBGTimeout,
	)

	a.apiDeps = api.Deps{
		Quote: quote.NewBuilder(a.catalogStore, resolver, a.rec, func() float64 {
			return a.runtimeCfg.Load().LocalDistanceThresholdMiles
		}),
		Location:   a.locatorSvc,
		Metrics:    recorder.NewReader(a.store, func() int { return a.runtimeCfg.Load().MetricsMinSamples }),
		Syncer:     syncer,
		Catalog:    a.catalogStore,
		Cache:      measured,
		Audits:     audit.NewRepo(a.auditDB),
		Pinger:     measured,
		RuntimeCfg: a.runtimeCfg,
	}
}

func (a *stahlaApp) installSeedCatalog(c *cache.Store) {
	if a.envCfg.CatalogSeedFile == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	snap, err := catalog.InstallSeed(ctx, a.catalogStore, c, a.envCfg.CatalogSeedFile)
	switch {
	case err != nil:
		log.Printf("Warning: seed catalog install failed: %v", err)
	case snap != nil:
		log.Printf("Seed catalog installed as version %d", snap.Version)
	default:
		log.Println("Catalog snapshot already installed; seed file skipped")
	}
}

func (a *stahlaApp) buildAPIServer() {
	a.apiSrv = api.NewServerWithAddress(
		a.envCfg.ListenAddress,
		a.envCfg.Port,
		a.envCfg.PricingAPIKey,
		a.envCfg.AdminToken,
		a.envCfg.QuoteDeadline,
		int64(a.envCfg.APIMaxBodyBytes),
		a.apiDeps,
	)
}

func (a *stahlaApp) startServer() <-chan error {
	serverErrCh := make(chan error, 1)
	go func() {
		log.Printf("Quoting engine listening on %s:%d", a.envCfg.ListenAddress, a.envCfg.Port)
		if err := a.apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case serverErrCh <- err:
			default:
			}
		}
	}()
	return serverErrCh
}

func waitForShutdown(serverErrCh <-chan error) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		log.Printf("Received signal %s, shutting down...", sig)
		return nil
	case err := <-serverErrCh:
		log.Printf("Received server runtime error (%v), shutting down...", err)
		return err
	}
}

func (a *stahlaApp) shutdown(ctx context.Context) {
	// Stop in order: the HTTP surface first, then background producers,
	// then the sinks they feed, then storage.
	if err := a.apiSrv.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	log.Println("HTTP server stopped")

	if a.schedulerStarted {
		a.scheduler.Stop()
		log.Println("Catalog sync scheduler stopped")
	}

	a.locatorSvc.Stop()
	a.rootCancel()
	log.Println("Location lookups drained")

	a.rec.Stop()
	log.Println("Latency recorder stopped")

	a.auditSvc.Stop()
	log.Println("Audit writer stopped")
	if err := a.auditDB.Close(); err != nil {
		log.Printf("Audit DB close error: %v", err)
	}

	if err := a.store.Close(); err != nil {
		log.Printf("Cache store close error: %v", err)
	}
	log.Println("Server stopped")
}
