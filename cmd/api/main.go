package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"provenance/api/internal/app"
	"provenance/api/internal/archive"
	"provenance/api/internal/cache"
	"provenance/api/internal/config"
	"provenance/api/internal/export"
	"provenance/api/internal/gitrepo"
	"provenance/api/internal/notify"
	"provenance/api/internal/search"
	"provenance/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	if err := os.MkdirAll(cfg.SnapshotsDir, 0o755); err != nil {
		log.Fatalf("failed to create snapshots dir: %v", err)
	}

	reports := store.NewPostgresStore(db)
	deps := app.Deps{
		Snapshots: gitrepo.New(cfg.SnapshotsDir),
		Exporter:  export.NewService(),
	}

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	deps.Search = search.NewService(meiliClient, pgfts)
	go func() {
		// Give the health loop a moment to see Meilisearch before catching up.
		time.Sleep(3 * time.Second)
		deps.Search.ReindexAllFromPG(context.Background())
	}()

	var relay *notify.Relay
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for result cache and report events")
		redisCache, err := cache.NewRedisCache(cfg.RedisURL, cfg.CacheTTL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisCache.Close()
		bus := notify.NewRedisBus(redisCache.Client())
		deps.Cache = redisCache
		deps.Bus = bus
		relay = notify.NewRelay(bus, cfg.CORSOrigin)
	} else {
		log.Printf("Redis not configured; result cache and report events disabled")
	}

	if strings.TrimSpace(cfg.MinIOEndpoint) != "" {
		archiveStore, err := archive.New(ctx, archive.Config{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
		})
		if err != nil {
			log.Fatalf("archive setup failed: %v", err)
		}
		deps.Archive = archiveStore
	} else {
		log.Printf("MinIO not configured; changelog archive and rerun disabled")
	}

	service := app.New(cfg, reports, deps)

	var httpServer *app.HTTPServer
	if relay != nil {
		httpServer = app.NewHTTPServer(service, cfg.CORSOrigin, cfg.APIToken, relay)
	} else {
		httpServer = app.NewHTTPServer(service, cfg.CORSOrigin, cfg.APIToken, nil)
	}
	if cfg.APIToken == "" {
		log.Printf("WARNING: PROVENANCE_API_TOKEN is empty; API routes are unauthenticated")
	}

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Provenance API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
