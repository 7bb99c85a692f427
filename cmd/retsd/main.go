// Command retsd is the RETS sync daemon: it runs the Sync Engine (C5), the
// Photo Processing Scheduler (C10) and the Lifecycle Reconciler (C11)
// concurrently, alongside a read-only admin/health HTTP surface.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/retssync/retsd/internal/adminapi"
	"github.com/retssync/retsd/internal/catalog"
	"github.com/retssync/retsd/internal/config"
	"github.com/retssync/retsd/internal/database"
	"github.com/retssync/retsd/internal/lifecycle"
	"github.com/retssync/retsd/internal/lockout"
	"github.com/retssync/retsd/internal/logger"
	"github.com/retssync/retsd/internal/lookup"
	"github.com/retssync/retsd/internal/objectstore"
	"github.com/retssync/retsd/internal/observability"
	"github.com/retssync/retsd/internal/photo"
	"github.com/retssync/retsd/internal/rets"
	"github.com/retssync/retsd/internal/scheduler"
	"github.com/retssync/retsd/internal/syncengine"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	log_ := logger.Init("retsd", cfg.AppEnv, logger.ParseLevelFromEnv())

	shutdownOTel, err := observability.InitOTel(context.Background(), "retsd")
	if err != nil {
		log_.Warn("failed to initialize OpenTelemetry", "error", err)
	} else {
		defer func() {
			if err := shutdownOTel(context.Background()); err != nil {
				log_.Warn("failed to shut down OpenTelemetry", "error", err)
			}
		}()
	}

	db, err := database.New(database.Config{
		Host:         cfg.MySQL.Host,
		Port:         cfg.MySQL.Port,
		User:         cfg.MySQL.User,
		Password:     cfg.MySQL.Password,
		Database:     cfg.MySQL.Database,
		MaxOpenConns: cfg.MySQL.MaxOpenConns,
	})
	if err != nil {
		log_.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	log_.Info("connected to MySQL", "host", cfg.MySQL.Host, "database", cfg.MySQL.Database)

	retsClient := rets.NewClient(rets.Config{
		LoginURL:  cfg.RETS.LoginURL,
		Version:   cfg.RETS.Version,
		Vendor:    cfg.RETS.Vendor,
		Username:  cfg.RETS.Username,
		Password:  cfg.RETS.Password,
		UserAgent: cfg.RETS.UserAgent,
		CachePath: cfg.CacheDir + "/rets-capabilities.json",
	}, log_)

	catalogStore := catalog.NewStore(retsClient, cfg.CacheDir+"/update_fields.json")

	lockouts, err := lockout.Load(cfg.CacheDir + "/rets_lockout.json")
	if err != nil {
		log_.Error("failed to load lockout set", "error", err)
		os.Exit(1)
	}

	cycles := adminapi.NewCycleTracker()

	engine := syncengine.New(retsClient, db, catalogStore, lockouts, syncengine.Config{
		TickInterval:        time.Duration(cfg.SyncIntervalSeconds) * time.Second,
		FullSyncMinInterval: cfg.FullSyncMinInterval,
		FullSyncCachePath:   cfg.CacheDir + "/full_sync_times.json",
	}, log_.With("component", "sync-engine"))

	lookupStore := lookup.NewStore(retsClient, db, cfg.CacheDir+"/lookup_values.json", log_.With("component", "lookup"))

	var uploader *objectstore.Client
	if cfg.ObjectStorage.Endpoint != "" {
		uploader = objectstore.NewClient(objectstore.Config{
			AccessKey: cfg.ObjectStorage.AccessKey,
			SecretKey: cfg.ObjectStorage.SecretKey,
			Endpoint:  cfg.ObjectStorage.Endpoint,
			Bucket:    cfg.ObjectStorage.Bucket,
		}, log_.With("component", "objectstore"))
	} else {
		log_.Warn("OBJECT_STORAGE_ENDPOINT not set, photo uploads are disabled")
	}

	pipeline := photo.NewPipeline(retsClient, cfg.PhotoCacheDir)

	photoScheduler := scheduler.New(db, catalogStore, retsClient, pipeline, uploader, scheduler.Config{}, log_.With("component", "scheduler"))

	reconciler := lifecycle.New(retsClient, db, catalogStore, log_.With("component", "lifecycle"))

	engine.OnCycle = func(t time.Time) { cycles.Record("sync", t) }
	photoScheduler.OnCycle = func(t time.Time) { cycles.Record("photo-scheduler", t) }
	reconciler.OnCycle = func(t time.Time) { cycles.Record("lifecycle", t) }

	admin := adminapi.New(db, lockouts, cycles, photoScheduler, cfg.AllowedOrigins)
	httpServer := &http.Server{
		Addr:    ":" + cfg.PhotoPort,
		Handler: admin.Handler(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go engine.Run(ctx)
	go runLookupLoop(ctx, lookupStore, catalogStore, retsClient, cfg, log_, cycles)
	go photoScheduler.Run(ctx)
	go reconciler.Run(ctx)

	go func() {
		log_.Info("admin/health server starting", "port", cfg.PhotoPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log_.Error("admin server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log_.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log_.Error("admin server forced to shutdown", "error", err)
	}
	log_.Info("exited")
}

// runLookupLoop periodically harvests lookup metadata (C6); it shares the
// sync interval since spec.md gives it no independent cadence.
func runLookupLoop(ctx context.Context, store *lookup.Store, cat *catalog.Store, client *rets.Client, cfg config.Config, log_ *slog.Logger, cycles *adminapi.CycleTracker) {
	interval := time.Duration(cfg.SyncIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	runOnce := func() {
		defer cycles.Record("lookup", time.Now())

		session, err := client.Login(ctx)
		if err != nil {
			log_.Error("lookup sync login failed", "error", err)
			return
		}
		liveCatalog, err := cat.Load(ctx, session)
		if err != nil {
			log_.Error("lookup sync catalog load failed", "error", err)
			return
		}
		if err := store.Sync(ctx, session, liveCatalog); err != nil {
			log_.Error("lookup sync failed", "error", err)
		}
	}

	runOnce()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}
