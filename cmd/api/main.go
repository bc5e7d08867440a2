package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"assettrack.org/internal/directory"
	"assettrack.org/internal/dirsync"
	"assettrack.org/internal/httpapi"
	"assettrack.org/internal/inventory"
	"assettrack.org/internal/obs"
	"assettrack.org/internal/store/pg"
)

var (
	version = "0.4.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)
	logger := obs.Logger()
	defer obs.Sync()

	// Storage: Postgres when a DSN is set, in-memory otherwise. The
	// in-memory store keeps local development and demos dependency-free.
	var (
		store   inventory.Store
		pgStore *pg.Store
	)
	if dsn := os.Getenv("ASSETTRACK_PG_DSN"); dsn != "" {
		var err error
		pgStore, err = pg.Open(dsn)
		if err != nil {
			logger.Fatal("open database", zap.Error(err))
		}
		store = pgStore
		logger.Info("using postgres store")
	} else {
		store = inventory.NewInMemory()
		logger.Warn("ASSETTRACK_PG_DSN is not set, using in-memory store")
	}

	// Directory sync: wired only when tenant credentials are present.
	// syncEngine stays a nil interface when disabled so the API can tell.
	var (
		engine     *dirsync.Engine
		syncEngine httpapi.SyncEngine
		photos     httpapi.PhotoFetcher
	)
	dirCfg := directory.Config{
		TenantID:     os.Getenv("AZURE_TENANT_ID"),
		ClientID:     os.Getenv("AZURE_CLIENT_ID"),
		ClientSecret: os.Getenv("AZURE_CLIENT_SECRET"),
	}
	if dirCfg.TenantID != "" && dirCfg.ClientID != "" && dirCfg.ClientSecret != "" {
		client := directory.NewClient(dirCfg, logger)
		engine = dirsync.NewEngine(client, store, logger)
		syncEngine = engine
		photos = client
		logger.Info("directory sync enabled", zap.String("tenant", dirCfg.TenantID))
	} else {
		logger.Warn("directory credentials incomplete, sync endpoints disabled")
	}

	probe := httpapi.ReadyProbe{}
	if pgStore != nil {
		probe.DB = pgStore.DB()
	}
	api := httpapi.New(probe, version, store, syncEngine, photos)

	// Scheduled passes, e.g. "0 */6 * * *" for every six hours.
	var scheduler *cron.Cron
	if schedule := os.Getenv("ASSETTRACK_SYNC_SCHEDULE"); schedule != "" && engine != nil {
		scheduler = cron.New()
		_, err := scheduler.AddFunc(schedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
			defer cancel()
			if _, err := engine.RunFullSync(ctx); err != nil {
				logger.Error("scheduled sync failed", zap.Error(err))
			}
		})
		if err != nil {
			logger.Fatal("invalid ASSETTRACK_SYNC_SCHEDULE", zap.String("schedule", schedule), zap.Error(err))
		}
		scheduler.Start()
		logger.Info("scheduled sync enabled", zap.String("schedule", schedule))
	}

	addr := os.Getenv("ASSETTRACK_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("starting assettrack-api", zap.String("version", version), zap.String("addr", srv.Addr))

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	logger.Info("shutting down")

	if scheduler != nil {
		<-scheduler.Stop().Done()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if pgStore != nil {
		_ = pgStore.Close()
	}
	logger.Info("stopped")
}
