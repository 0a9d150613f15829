package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyStore_AcquireQuery(t *testing.T) {
	s := NewIdempotencyStore(nil, 24*time.Hour)
	now := time.Date(2024, 8, 1, 12, 0, 0, 0, time.UTC)

	sql, args, err := s.acquireQuery("t1", "k1", "POST /commit", "abc", now)
	require.NoError(t, err)

	assert.Contains(t, sql, "INSERT INTO sys_idempotency (tenant_id,idempotency_key,operation,request_hash,status,created_at,updated_at,expires_at)")
	assert.Contains(t, sql, "ON CONFLICT (tenant_id, idempotency_key) DO UPDATE")
	assert.Contains(t, sql, "RETURNING (xmax = 0) AS inserted")
	require.Len(t, args, 8)
	assert.Equal(t, IdempotencyStatusPending, args[4])
	assert.Equal(t, now.Add(24*time.Hour), args[7])
}
