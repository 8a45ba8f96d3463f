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

	"github.com/geocoder89/bizhub/internal/accounts"
	"github.com/geocoder89/bizhub/internal/auth"
	"github.com/geocoder89/bizhub/internal/cache"
	"github.com/geocoder89/bizhub/internal/config"
	"github.com/geocoder89/bizhub/internal/credentials"
	"github.com/geocoder89/bizhub/internal/db"
	httpx "github.com/geocoder89/bizhub/internal/http"
	"github.com/geocoder89/bizhub/internal/notifications"
	"github.com/geocoder89/bizhub/internal/observability"
	"github.com/geocoder89/bizhub/internal/repo/postgres"
	"github.com/geocoder89/bizhub/internal/worker"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	// .env is optional; real deployments inject the environment directly
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := observability.NewLogger(cfg.Env)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.InitTracer(ctx, cfg.OTelEnabled, cfg.OTelEndpoint)
	if err != nil {
		log.Error("tracer init failed", "err", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	prom := observability.NewProm(reg)

	pool, err := db.NewPool(ctx, db.PoolConfig{URL: cfg.DBURL, MaxConns: 10})
	if err != nil {
		log.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	if cfg.DBAutoMigrate {
		if err := db.EnsureSchema(ctx, pool); err != nil {
			log.Error("schema migration failed", "err", err)
			os.Exit(1)
		}
	}

	redisStore := cache.NewRedisStore(cache.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisStore.Close()

	sessionCache := cache.NewSessionCache(redisStore, log,
		cache.WithTTLs(cfg.UserCacheTTL, cfg.ListCacheTTL),
		cache.WithMetrics(prom),
	)

	profiles := postgres.NewProfilesRepo(pool, prom)

	var creds credentials.Store
	switch cfg.CredentialStore {
	case config.CredentialStoreLocal:
		// expired sessions are pruned by cmd/worker
		creds = credentials.NewLocalStore(
			postgres.NewIdentitiesRepo(pool, prom),
			postgres.NewSessionsRepo(pool, prom),
			auth.NewManager(cfg.JWTSecret, cfg.JWTAccessTTL()),
			pool,
		)
	default:
		creds = credentials.NewKratosStore(credentials.KratosConfig{
			PublicURL:  cfg.CredentialStorePublicURL,
			PublicKey:  cfg.CredentialStorePublicKey,
			AdminURL:   cfg.CredentialStoreAdminURL,
			ServiceKey: cfg.CredentialStoreServiceKey,
			SchemaID:   cfg.CredentialStoreSchemaID,
		})
	}

	notifier := notifications.NewProtectedNotifier(
		notifications.NewLogNotifier(log),
		notifications.ProtectedNotifierConfig{Timeout: 3 * time.Second},
	)

	svc := accounts.NewService(profiles, creds, sessionCache,
		accounts.WithNotifier(notifier),
		accounts.WithMetrics(prom),
		accounts.WithLogger(log),
		accounts.WithApprovalDisclosure(cfg.DiscloseApprovalStatus),
	)

	seedCtx, cancelSeed := context.WithTimeout(ctx, 10*time.Second)
	err = svc.EnsureAdmin(seedCtx, accounts.AdminSeed{
		Email:    cfg.AdminEmail,
		Password: cfg.AdminPassword,
		FullName: cfg.AdminName,
	})
	cancelSeed()
	if err != nil {
		// not fatal: the service is usable once an admin exists
		log.Error("admin seed failed", "err", err)
	}

	router := httpx.NewRouter(httpx.RouterDeps{
		Log:      log,
		Config:   cfg,
		Accounts: svc,
		Verifier: creds,
		Profiles: profiles,
		Prom:     prom,
		Gatherer: reg,
		DB:       pool,
		Cache:    redisStore,
		Creds:    creds,
	})

	maintenance := worker.New(worker.Config{}, log,
		worker.ReportPoolStats(redisStore, prom, 15*time.Second),
	)
	go func() {
		_ = maintenance.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("server starting",
			"port", cfg.Port,
			"env", cfg.Env,
			"credential_store", cfg.CredentialStore,
		)
		err := srv.ListenAndServe()

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("server shutting down")

	shutdownCtx, cancel := config.WithTimeout(10 * time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "err", err)
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		log.Error("tracer shutdown failed", "err", err)
	}

	log.Info("shutdown complete")
}
