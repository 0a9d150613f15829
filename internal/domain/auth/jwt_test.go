package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "optiledger/internal/core/context"
)

func TestJWTService_RoundTrip(t *testing.T) {
	svc := NewJWTService(DefaultJWTConfig("test-secret"))

	token, expiresAt, err := svc.GenerateAccessToken(appctx.UserContext{
		UserID:   "u1",
		TenantID: "t1",
		Roles:    []string{appctx.RoleNumberingAdmin},
	})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), expiresAt, time.Minute)

	user, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", user.UserID)
	assert.Equal(t, "t1", user.TenantID)
	assert.Equal(t, []string{appctx.RoleNumberingAdmin}, user.Roles)
}

func TestJWTService_Rejects(t *testing.T) {
	svc := NewJWTService(DefaultJWTConfig("test-secret"))

	other := NewJWTService(DefaultJWTConfig("other-secret"))
	foreign, _, err := other.GenerateAccessToken(appctx.UserContext{UserID: "u1"})
	require.NoError(t, err)
	_, err = svc.ValidateToken(foreign)
	assert.Error(t, err)

	cfg := DefaultJWTConfig("test-secret")
	cfg.AccessTokenTTL = -time.Minute
	expired, _, err := NewJWTService(cfg).GenerateAccessToken(appctx.UserContext{UserID: "u1"})
	require.NoError(t, err)
	_, err = svc.ValidateToken(expired)
	assert.Error(t, err)

	cfg = DefaultJWTConfig("test-secret")
	cfg.Issuer = "someone-else"
	wrongIssuer, _, err := NewJWTService(cfg).GenerateAccessToken(appctx.UserContext{UserID: "u1"})
	require.NoError(t, err)
	_, err = svc.ValidateToken(wrongIssuer)
	assert.Error(t, err)

	_, err = svc.ValidateToken("not-a-token")
	assert.Error(t, err)
}
