// Command fenixd runs the maintenance orchestration engine: it loads
// configuration, connects to its Session Store, Compute Adapter and
// Notifier, then serves the admin and project-facing HTTP API until it
// receives a shutdown signal.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openstack-archive/fenix/internal/compute"
	"github.com/openstack-archive/fenix/internal/config"
	"github.com/openstack-archive/fenix/internal/housekeeping"
	"github.com/openstack-archive/fenix/internal/httpapi"
	"github.com/openstack-archive/fenix/internal/logger"
	"github.com/openstack-archive/fenix/internal/manager"
	"github.com/openstack-archive/fenix/internal/notify"
	"github.com/openstack-archive/fenix/internal/store"

	_ "github.com/openstack-archive/fenix/internal/plugins"
	_ "github.com/openstack-archive/fenix/internal/workflows"
)

func main() {
	logger.Initialize(getEnv("LOG_LEVEL", "info"), getEnv("GIN_MODE", "release") != "release")
	log := logger.Log

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	db, err := store.New(cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to session store")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to run session store migrations")
	}

	computeAdapter, err := compute.New()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build compute adapter")
	}

	notifier, err := notify.New(notify.Config{
		URL:      cfg.NatsURL,
		User:     cfg.NatsUser,
		Password: cfg.NatsPassword,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build notifier")
	}
	defer notifier.Close()

	mgr := manager.New(computeAdapter, notifier, db, cfg.Workflow, cfg.ReplyURLBase)

	reaper := housekeeping.New(mgr)
	if err := reaper.Start(cfg.HousekeepingInterval); err != nil {
		log.Fatal().Err(err).Msg("failed to start housekeeping reaper")
	}
	defer reaper.Stop()

	router := httpapi.NewRouter(mgr, httpapi.Options{
		AdminAPIKey:      cfg.AdminAPIKey,
		RateLimitEnabled: cfg.RateLimitEnabled,
		RateLimitRPM:     cfg.RateLimitRPM,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: router,

		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("fenixd listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
