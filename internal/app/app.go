// Package app wires configuration into the numbering runtime shared by the
// server, the worker and the admin CLI.
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"optiledger/internal/config"
	"optiledger/internal/core/numerator"
	"optiledger/internal/core/tenant"
	"optiledger/internal/domain/numbering"
	"optiledger/internal/infrastructure/cache"
	"optiledger/internal/infrastructure/lock"
	"optiledger/internal/infrastructure/metrics"
	numstore "optiledger/internal/infrastructure/numerator"
	"optiledger/internal/infrastructure/storage/postgres"
	"optiledger/internal/infrastructure/storage/postgres/document_repo"
	"optiledger/pkg/logger"
)

// Options select the optional parts of the runtime.
type Options struct {
	// Registerer receives the numbering collectors; nil uses the default registry.
	Registerer prometheus.Registerer
	// ListenTenants starts LISTEN/NOTIFY invalidation for the tenant cache.
	ListenTenants bool
}

// Runtime holds the long-lived collaborators. Close releases them.
type Runtime struct {
	Config      *config.Config
	Pool        *postgres.Pool
	TxManager   *postgres.TxManager
	Redis       redis.UniversalClient // nil when redis is disabled
	Tenants     *cache.TenantCache
	Metrics     *metrics.Numbering
	Numbering   *numbering.Service
	Idempotency *postgres.IdempotencyStore
}

// NewLogger builds the process logger from config.
func NewLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.IsDevelopment(),
		Encoding:    cfg.Log.Format,
	})
}

// ServiceConfig maps numbering settings from config onto the service.
func ServiceConfig(c config.NumberingConfig) numbering.Config {
	return numbering.Config{
		MaxRetries:      uint64(max(c.MaxRetries, 1)),
		InitialInterval: c.InitialInterval,
		MaxInterval:     c.MaxInterval,
		LockTTL:         c.LockTTL,
	}
}

// DocumentTables maps document types to the configured tables.
func DocumentTables(c config.NumberingConfig) map[numerator.DocumentType]string {
	tables := document_repo.DefaultTables()
	if c.PurchaseTable != "" {
		tables[numerator.DocumentPurchase] = c.PurchaseTable
	}
	if c.SaleTable != "" {
		tables[numerator.DocumentSale] = c.SaleTable
	}
	return tables
}

// New connects to PostgreSQL (and Redis when enabled) and builds the numbering service.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Runtime, error) {
	poolCfg := postgres.DefaultPoolConfig(cfg.Database.DSN())
	poolCfg.MaxConns = cfg.Database.MaxConns
	poolCfg.MinConns = cfg.Database.MinConns

	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	txm := postgres.NewTxManager(pool)
	rt := &Runtime{
		Config:      cfg,
		Pool:        pool,
		TxManager:   txm,
		Idempotency: postgres.NewIdempotencyStore(txm, cfg.Numbering.IdempotencyTTL),
	}

	var locker numbering.Locker
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			pool.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		rt.Redis = client
		// Assigned only here so a disabled lock stays a nil interface.
		locker = lock.NewRedisLocker(client, cfg.Redis.KeyPrefix)
	}

	rt.Tenants = cache.NewTenantCache(tenant.NewPostgresRegistry(pool.Unwrap()), pool.Unwrap())
	if opts.ListenTenants {
		if err := rt.Tenants.Start(ctx); err != nil {
			rt.Close()
			return nil, fmt.Errorf("start tenant cache: %w", err)
		}
	}

	audit, err := postgres.NewAuditLog(txm)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("create audit log: %w", err)
	}

	rt.Metrics = metrics.NewNumbering(opts.Registerer)
	rt.Numbering = numbering.NewService(ServiceConfig(cfg.Numbering), numbering.Dependencies{
		Store:     numstore.NewPostgresStore(rt.TxManager),
		Documents: document_repo.NewNumberRepo(rt.TxManager, DocumentTables(cfg.Numbering), cfg.Numbering.ScanBatchSize),
		Settings:  tenant.NewSettingsProvider(rt.Tenants),
		TxManager: rt.TxManager,
		Locker:    locker,
		Audit:     audit,
		Metrics:   rt.Metrics,
	})

	return rt, nil
}

// Checks returns readiness checks for the connected backends.
func (rt *Runtime) Checks() map[string]func(context.Context) error {
	checks := map[string]func(context.Context) error{
		"postgres": func(ctx context.Context) error { return rt.Pool.Ping(ctx) },
	}
	if rt.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return rt.Redis.Ping(ctx).Err() }
	}
	return checks
}

// Close stops the tenant listener and closes connections.
func (rt *Runtime) Close() {
	if rt.Tenants != nil {
		rt.Tenants.Stop()
	}
	if rt.Redis != nil {
		_ = rt.Redis.Close()
	}
	rt.Pool.Close()
}
