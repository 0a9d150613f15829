// Package context provides request-scoped values extraction.
package context

import (
	"context"

	"github.com/samber/lo"
)

// RoleNumberingAdmin may run diagnose and repair.
const RoleNumberingAdmin = "numbering_admin"

// UserContext contains the authenticated caller.
// Authentication itself is external; the token only has to be verifiable.
type UserContext struct {
	UserID   string
	TenantID string
	Roles    []string
	IsAdmin  bool
}

type userContextKey struct{}

// WithUser adds UserContext to context.
func WithUser(ctx context.Context, user *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// GetUser returns UserContext from context.
func GetUser(ctx context.Context) *UserContext {
	if v, ok := ctx.Value(userContextKey{}).(*UserContext); ok {
		return v
	}
	return nil
}

// GetUserID returns user ID from context or empty string.
func GetUserID(ctx context.Context) string {
	if u := GetUser(ctx); u != nil {
		return u.UserID
	}
	return ""
}

// HasRole checks if user has specific role.
func HasRole(ctx context.Context, role string) bool {
	u := GetUser(ctx)
	if u == nil {
		return false
	}
	return lo.Contains(u.Roles, role)
}

// CanAdministerNumbering reports whether the caller may run diagnose/repair.
func CanAdministerNumbering(ctx context.Context) bool {
	u := GetUser(ctx)
	if u == nil {
		return false
	}
	return u.IsAdmin || lo.Contains(u.Roles, RoleNumberingAdmin)
}
