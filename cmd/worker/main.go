package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geocoder89/bizhub/internal/config"
	"github.com/geocoder89/bizhub/internal/db"
	"github.com/geocoder89/bizhub/internal/observability"
	"github.com/geocoder89/bizhub/internal/repo/postgres"
	"github.com/geocoder89/bizhub/internal/worker"
	"github.com/joho/godotenv"
)

// The maintenance worker is the only process that prunes expired local
// credential sessions. It needs nothing but the database.
func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadWorker()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := observability.NewLogger(cfg.Env).With("component", "worker")
	slog.SetDefault(log)

	if !cfg.PrunesSessions() {
		log.Info("credential sessions live in the hosted store, nothing to prune",
			"credential_store", cfg.CredentialStore)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, db.PoolConfig{URL: cfg.DBURL, MaxConns: 2})
	if err != nil {
		log.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	sessions := postgres.NewSessionsRepo(pool, nil)

	w := worker.New(worker.Config{RunTimeout: time.Minute}, log,
		worker.PruneSessions(sessions, cfg.PruneGrace, cfg.PruneEvery, log),
	)

	health := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HealthPort),
		Handler:           w.HealthHandler(pool),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := health.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("health server failed", "err", err)
		}
	}()

	if err := w.Run(ctx); err != nil {
		log.Error("worker stopped with error", "err", err)
	}

	shutdownCtx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()
	_ = health.Shutdown(shutdownCtx)

	log.Info("worker shutdown complete")
}
