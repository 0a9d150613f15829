// Package cache provides caching infrastructure with PostgreSQL LISTEN/NOTIFY support.
package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"optiledger/internal/core/tenant"
	"optiledger/pkg/logger"
)

// TenantChangedChannel is notified by the tenants table trigger; payload is the tenant id.
const TenantChangedChannel = "tenant_changed"

// TenantCache keeps tenant records (and so their numbering settings) in memory,
// invalidated via PostgreSQL LISTEN/NOTIFY instead of TTL polling.
//
// Only tenant records are cached. Counter values are always read from the store.
type TenantCache struct {
	registry tenant.Registry
	pool     *pgxpool.Pool

	mu      sync.RWMutex
	tenants map[string]*tenant.Tenant

	// epoch counts invalidations. A registry read that started in an older epoch
	// is returned to its caller but not cached.
	epoch uint64

	// Lifecycle
	lifecycleMu sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	started     bool
}

var _ tenant.Registry = (*TenantCache)(nil)

// NewTenantCache creates a cache in front of registry. pool is used for LISTEN only.
func NewTenantCache(registry tenant.Registry, pool *pgxpool.Pool) *TenantCache {
	return &TenantCache{
		registry: registry,
		pool:     pool,
		tenants:  make(map[string]*tenant.Tenant),
	}
}

// GetByID implements tenant.Registry with read-through caching.
func (c *TenantCache) GetByID(ctx context.Context, tenantID string) (*tenant.Tenant, error) {
	c.mu.RLock()
	t, ok := c.tenants[tenantID]
	epoch := c.epoch
	c.mu.RUnlock()
	if ok {
		return t, nil
	}

	t, err := c.registry.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.epoch == epoch {
		c.tenants[tenantID] = t
	}
	c.mu.Unlock()
	return t, nil
}

// ListActive implements tenant.Registry. It always hits the registry and refreshes the cache.
func (c *TenantCache) ListActive(ctx context.Context) ([]*tenant.Tenant, error) {
	c.mu.RLock()
	epoch := c.epoch
	c.mu.RUnlock()

	list, err := c.registry.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.epoch == epoch {
		for _, t := range list {
			c.tenants[t.ID] = t
		}
	}
	c.mu.Unlock()
	return list, nil
}

// Invalidate drops one tenant, or everything when tenantID is empty.
func (c *TenantCache) Invalidate(tenantID string) {
	tenantID = strings.TrimSpace(tenantID)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	if tenantID == "" {
		c.tenants = make(map[string]*tenant.Tenant)
		return
	}
	delete(c.tenants, tenantID)
}

// Len returns the number of cached tenants.
func (c *TenantCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tenants)
}

// Start warms the cache and begins listening for NOTIFY events.
func (c *TenantCache) Start(ctx context.Context) error {
	c.lifecycleMu.Lock()
	if c.started {
		c.lifecycleMu.Unlock()
		return nil
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.started = true
	c.lifecycleMu.Unlock()

	if _, err := c.ListActive(c.ctx); err != nil {
		logger.Warn(c.ctx, "tenant cache warmup failed", "error", err)
	}

	if c.pool != nil {
		c.wg.Add(1)
		go c.listenLoop()
	}
	logger.Info(c.ctx, "tenant cache started", "tenants", c.Len())
	return nil
}

// Stop gracefully stops the cache listener.
func (c *TenantCache) Stop() {
	c.lifecycleMu.Lock()
	if !c.started {
		c.lifecycleMu.Unlock()
		return
	}
	cancel := c.cancel
	c.started = false
	c.cancel = nil
	c.lifecycleMu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
	logger.Info(context.Background(), "tenant cache stopped")
}

// listenLoop holds a dedicated connection subscribed to TenantChangedChannel.
func (c *TenantCache) listenLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		conn, err := c.pool.Acquire(c.ctx)
		if err != nil {
			logger.Error(c.ctx, "failed to acquire connection for LISTEN", "error", err)
			c.sleep(time.Second)
			continue
		}

		if _, err = conn.Exec(c.ctx, "LISTEN "+TenantChangedChannel); err != nil {
			logger.Error(c.ctx, "failed to LISTEN", "error", err)
			conn.Release()
			c.sleep(time.Second)
			continue
		}

		// Anything cached before the subscription may already be stale.
		c.Invalidate("")
		logger.Info(c.ctx, "listening for tenant notifications", "channel", TenantChangedChannel)

		c.waitForNotifications(conn)
		conn.Release()
	}
}

func (c *TenantCache) waitForNotifications(conn *pgxpool.Conn) {
	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		// Timeout keeps shutdown responsive.
		ctx, cancel := context.WithTimeout(c.ctx, 30*time.Second)
		notification, err := conn.Conn().WaitForNotification(ctx)
		cancel()

		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			if conn.Conn().IsClosed() {
				logger.Warn(c.ctx, "LISTEN connection lost, reconnecting")
				return
			}
			continue
		}

		logger.Debug(c.ctx, "tenant changed", "tenant_id", notification.Payload)
		c.Invalidate(notification.Payload)
	}
}

func (c *TenantCache) sleep(d time.Duration) {
	select {
	case <-c.ctx.Done():
	case <-time.After(d):
	}
}
