// Package main runs the optiledger drift monitor.
// It diagnoses the counters of all active tenants on an interval, exports the drift to
// Prometheus and expires old commit idempotency keys.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"optiledger/internal/app"
	"optiledger/internal/config"
	"optiledger/internal/infrastructure/storage/postgres"
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

	log.Infow("starting optiledger drift monitor", "interval", cfg.Worker.Interval)

	rt, err := app.New(ctx, cfg, app.Options{ListenTenants: true})
	if err != nil {
		log.Fatalw("failed to initialize runtime", "error", err)
	}
	defer rt.Close()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:              ":" + cfg.Worker.MetricsPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	monitor := NewDriftMonitor(rt.Tenants, rt.Numbering, rt.Metrics, log)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		monitor.Run(ctx, cfg.Worker.Interval)
	}()
	go func() {
		defer wg.Done()
		statsTicker := time.NewTicker(time.Minute)
		defer statsTicker.Stop()
		cleanupTicker := time.NewTicker(time.Hour)
		defer cleanupTicker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-statsTicker.C:
				postgres.LogPoolStats(ctx, rt.Pool.Unwrap())
			case <-cleanupTicker.C:
				n, err := rt.Idempotency.CleanupExpired(ctx)
				if err != nil {
					log.Warnw("idempotency cleanup failed", "error", err)
				} else if n > 0 {
					log.Infow("cleaned up idempotency keys", "count", n)
				}
			}
		}
	}()

	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("metrics server failed", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down worker...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)

	wg.Wait()
	log.Info("worker stopped")
}
