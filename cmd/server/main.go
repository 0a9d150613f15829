// Package main is the entry point for the optiledger numbering API server.
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

	"optiledger/internal/app"
	"optiledger/internal/config"
	"optiledger/internal/domain/auth"
	v1 "optiledger/internal/infrastructure/http/v1"
	"optiledger/internal/infrastructure/http/v1/handlers"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := app.NewLogger(cfg)
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Infow("starting optiledger server", "env", cfg.App.Env, "redis_lock", cfg.Redis.Enabled)

	rt, err := app.New(ctx, cfg, app.Options{ListenTenants: true})
	if err != nil {
		log.Fatalw("failed to initialize runtime", "error", err)
	}
	defer rt.Close()

	jwtConfig := auth.DefaultJWTConfig(cfg.JWT.Secret)
	if cfg.JWT.Issuer != "" {
		jwtConfig.Issuer = cfg.JWT.Issuer
	}
	jwtService := auth.NewJWTService(jwtConfig)

	checks := make(map[string]handlers.Check)
	for name, check := range rt.Checks() {
		checks[name] = check
	}

	router := v1.NewRouter(v1.RouterConfig{
		Registry:     rt.Tenants,
		TxManager:    rt.TxManager,
		Logger:       log,
		JWTValidator: jwtService,
		Numbering:    rt.Numbering,
		HealthChecks: checks,
		Idempotency:  rt.Idempotency,
	})

	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "port", cfg.App.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down server...")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}
