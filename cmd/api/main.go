package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"distributor.app/internal/auth"
	"distributor.app/internal/config"
	"distributor.app/internal/httpapi"
	"distributor.app/internal/microinvest"
	"distributor.app/internal/obs"
	"distributor.app/internal/store"
	"distributor.app/internal/store/memory"
	"distributor.app/internal/sweeper"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	log := obs.Logger()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("load config")
	}
	if err := obs.SetLevel(cfg.LogLevel); err != nil {
		log.WithError(err).Warn("unknown log level, keeping info")
	}

	// Инициализация observability (регистрация метрик)
	obs.Init()
	obs.InitBuildInfo(version, commit)

	ctx := context.Background()
	backends, err := store.Open(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("open stores")
	}
	defer backends.Close()

	hasher := auth.NewHasher(cfg.BcryptCost)
	codec, err := auth.NewTokenCodec(cfg.SecretKey,
		auth.WithAlgorithm(cfg.Algorithm),
		auth.WithAccessTTL(cfg.AccessTokenTTL),
	)
	if err != nil {
		log.WithError(err).Fatal("token codec")
	}
	ledger := auth.NewRevocationLedger(backends.Revocation, time.Now)
	sessions := auth.NewSessionResolver(ledger, codec, backends.Store)

	checks := make([]httpapi.ReadyCheck, 0, len(backends.Checks)+1)
	for _, p := range backends.Checks {
		checks = append(checks, httpapi.ReadyCheck{Name: p.Name, Check: p.Check})
	}

	// Microinvest is optional in development; without it every mapping
	// attempt reports the external user as missing.
	var (
		directory auth.ExternalDirectory = memory.NewDirectory()
		catalog   httpapi.Catalog
	)
	if cfg.MicroinvestDSN != "" {
		mi, err := microinvest.Open(cfg.MicroinvestDSN)
		if err != nil {
			log.WithError(err).Fatal("open microinvest")
		}
		defer mi.Close()
		directory, catalog = mi, mi
		checks = append(checks, httpapi.ReadyCheck{Name: "microinvest", Check: mi.DB().PingContext})
	} else {
		log.Warn("DISTRIBUTOR_MICROINVEST_DSN not set; microinvest routes are disabled")
	}

	api := httpapi.New(httpapi.Deps{
		Auth:            auth.NewService(backends.Store, hasher, codec, ledger),
		Sessions:        sessions,
		Mapper:          auth.NewIdentityMapper(backends.Store, directory, sessions, time.Now),
		Accounts:        auth.NewAccountService(backends.Store, hasher, time.Now),
		Catalog:         catalog,
		Checks:          checks,
		Version:         version,
		LoginRatePerSec: cfg.LoginRatePerSec,
		LoginRateBurst:  cfg.LoginRateBurst,
		TrustedProxies:  cfg.TrustedProxies,
	})

	sw := sweeper.New(ledger, config.RevocationRetention, config.SweepInterval)
	if err := sw.Start(); err != nil {
		log.WithError(err).Fatal("start sweeper")
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.WithField("version", version).WithField("addr", srv.Addr).
		WithField("store", cfg.Store).WithField("revocation", cfg.RevocationBackend).
		Info("starting distributor-api")

	// graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("listen")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	sw.Stop(shutdownCtx)
	log.Info("stopped")
}
