package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-turkey-coin/internal/auth"
	"github.com/ovaphlow/pitchfork/service-turkey-coin/internal/config"
	"github.com/ovaphlow/pitchfork/service-turkey-coin/internal/router"
	"github.com/ovaphlow/pitchfork/service-turkey-coin/pkg/database"
	"github.com/ovaphlow/pitchfork/service-turkey-coin/pkg/utilities"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	lg, err := utilities.Init(utilities.Config{Level: cfg.Log.Level, Dev: cfg.Log.Dev, File: cfg.Log.File})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Infow("starting service-turkey-coin", "addr", cfg.HTTPAddr, "chain", cfg.Chain.Slug)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// a missing DATABASE_URL is allowed: read paths degrade, writes report unavailable
	var db *sqlx.DB
	if cfg.Database.URL != "" {
		db, err = database.Connect(database.Config{
			DSN:      cfg.Database.URL,
			MaxConns: cfg.Database.MaxConns,
			TimeZone: cfg.Database.TimeZone,
		})
		if err != nil {
			sugar.Fatalf("db connect: %v", err)
		}
		defer db.Close()
		if err := router.EnsureSchema(ctx, db); err != nil {
			sugar.Fatalf("db schema: %v", err)
		}
	} else {
		sugar.Warn("DATABASE_URL not set; running without a datastore")
	}

	if !cfg.Auth.VerificationConfigured() {
		if cfg.Auth.BypassLocal {
			sugar.Warn("access verification not configured; admin routes open via local bypass")
		} else {
			sugar.Warn("access verification not configured; admin routes will reject every request")
		}
	}
	keys := auth.NewKeySetCache(&http.Client{Timeout: 5 * time.Second}, cfg.Auth.KeySetCacheTTL)
	gate := auth.NewGate(cfg.Auth, keys)

	handler, err := router.RegisterRoutes(cfg, db, gate, sugar)
	if err != nil {
		sugar.Fatalf("register routes: %v", err)
	}
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()

	<-ctx.Done()

	sugar.Info("shutting down")

	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}

	sugar.Info("goodbye")
}
