package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docvault-backend/internal/bootstrap"
	"docvault-backend/internal/shared/config"
	"docvault-backend/internal/shared/server"
	"docvault-backend/internal/shared/storage/db"
	"docvault-backend/internal/shared/telemetry"
)

const (
	shutdownTimeout    = 30 * time.Second
	maintenancePeriod  = 5 * time.Minute
	staleTaskThreshold = 30 * time.Minute
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(ctx, cfg, bootstrap.BuildOptions{WithRouter: true})
	if err != nil {
		log.Fatalf("bootstrap build: %v", err)
	}

	if app.DB != nil {
		if err := db.RunMigrations(ctx, app.DB); err != nil {
			log.Fatalf("run migrations: %v", err)
		}
	}

	// The in-process queue has no separate worker, so this process also
	// owns the periodic maintenance.
	if app.Pool != nil {
		go runMaintenance(ctx, app)
	}

	addr := server.Addr(cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Starting API server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutdown requested")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	if err := app.Close(shutdownCtx); err != nil {
		log.Printf("app close: %v", err)
	}
}

func runMaintenance(ctx context.Context, app *bootstrap.App) {
	ticker := time.NewTicker(maintenancePeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := app.Orchestrator.CleanupStale(ctx, staleTaskThreshold); err != nil {
				telemetry.Warn("maintenance.cleanup_stale_failed", map[string]any{"error": err.Error()})
			} else if n > 0 {
				telemetry.Info("maintenance.cleanup_stale", map[string]any{"failed_tasks": n})
			}
			if _, err := app.SharingService.PurgeExpired(ctx); err != nil {
				telemetry.Warn("maintenance.purge_expired_failed", map[string]any{"error": err.Error()})
			}
		}
	}
}
