package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"optiledger/internal/core/apperror"
	"optiledger/internal/core/tenant"
	"optiledger/internal/core/tx"
	"optiledger/pkg/logger"
)

const (
	// TenantHeader is the HTTP header for tenant identification.
	TenantHeader = "X-Tenant-ID"
)

// Tenant middleware resolves the tenant from the header and injects it into context.
// This middleware MUST run before any database operations.
//
// Flow:
// 1. Extract tenant UUID from X-Tenant-ID header
// 2. Load the tenant (and its settings) from the registry
// 3. Inject Tenant, TxManager and the log tenant tag into context
func Tenant(registry tenant.Registry, txManager tx.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		rawTenantID := c.GetHeader(TenantHeader)
		if rawTenantID == "" {
			_ = c.Error(
				apperror.NewValidation("tenant is required").
					WithDetail("header", TenantHeader),
			)
			c.Abort()
			return
		}

		tenantUUID, err := uuid.Parse(rawTenantID)
		if err != nil {
			_ = c.Error(
				apperror.NewValidation("invalid tenant id").
					WithDetail("header", TenantHeader).
					WithDetail("value", rawTenantID),
			)
			c.Abort()
			return
		}
		tenantID := tenantUUID.String()

		t, err := registry.GetByID(ctx, tenantID)
		if err != nil {
			logger.Warn(ctx, "tenant lookup failed", "tenant_id", tenantID, "error", err)

			if errors.Is(err, tenant.ErrTenantNotFound) {
				_ = c.Error(apperror.NewNotFound("tenant", tenantID))
			} else {
				_ = c.Error(apperror.NewInternal(err).WithDetail("tenant_id", tenantID))
			}
			c.Abort()
			return
		}
		if !t.IsActive() {
			_ = c.Error(apperror.NewForbidden("tenant is not active").WithDetail("tenant_id", tenantID))
			c.Abort()
			return
		}

		ctx = tenant.WithTenant(ctx, t)
		if txManager != nil {
			ctx = tenant.WithTxManager(ctx, txManager)
		}
		ctx = logger.WithTenantID(ctx, t.ID)
		c.Request = c.Request.WithContext(ctx)

		c.Set("tenant_id", t.ID)

		c.Next()
	}
}
