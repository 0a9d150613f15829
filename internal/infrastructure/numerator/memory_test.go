package numerator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	corenumerator "optiledger/internal/core/numerator"
)

func TestMemoryStore_GetMissing(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Get(context.Background(), corenumerator.NewKey("t1", corenumerator.DocumentSale, nil))
	assert.ErrorIs(t, err, corenumerator.ErrCounterNotFound)
}

func TestMemoryStore_CompareAndSwap(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	key := corenumerator.NewKey("t1", corenumerator.DocumentPurchase, corenumerator.FiscalYearScope("2024-2025"))
	created := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	rec := corenumerator.Bootstrap(corenumerator.DocumentPurchase, key.Scope).NewRecord(1, created)

	// Bootstrap insert.
	ok, err := s.CompareAndSwap(ctx, key, 0, rec)
	require.NoError(t, err)
	assert.True(t, ok)

	// Second bootstrap loses.
	ok, err = s.CompareAndSwap(ctx, key, 0, rec)
	require.NoError(t, err)
	assert.False(t, ok)

	// Stale expectation loses.
	ok, err = s.CompareAndSwap(ctx, key, 5, rec.Next(time.Now()))
	require.NoError(t, err)
	assert.False(t, ok)

	// Matching expectation wins, created_at preserved.
	next := rec.Next(created.Add(time.Hour))
	next.CreatedAt = time.Time{}
	ok, err = s.CompareAndSwap(ctx, key, 1, next)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Count)
	assert.Equal(t, created, got.CreatedAt)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	key := corenumerator.NewKey("t1", corenumerator.DocumentSale, nil)
	require.NoError(t, s.Put(ctx, key, &corenumerator.Record{Count: 3, Format: corenumerator.FormatPadded4}))

	got, err := s.Get(ctx, key)
	require.NoError(t, err)
	got.Count = 100

	again, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(3), again.Count)
}

func TestMemoryStore_TenantIsolation(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	a := corenumerator.NewKey("tenant-a", corenumerator.DocumentSale, nil)
	b := corenumerator.NewKey("tenant-b", corenumerator.DocumentSale, nil)

	require.NoError(t, s.Put(ctx, a, &corenumerator.Record{Count: 9}))
	_, err := s.Get(ctx, b)
	assert.ErrorIs(t, err, corenumerator.ErrCounterNotFound)
}

func TestMemoryStore_FailWith(t *testing.T) {
	s := NewMemoryStore()
	s.FailWith = errors.New("connection refused")
	key := corenumerator.NewKey("t1", corenumerator.DocumentSale, nil)

	_, err := s.Get(context.Background(), key)
	assert.EqualError(t, err, "connection refused")
	_, err = s.CompareAndSwap(context.Background(), key, 0, &corenumerator.Record{})
	assert.Error(t, err)
}

func TestMemoryStore_SnapshotRestore(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	key := corenumerator.NewKey("t1", corenumerator.DocumentSale, corenumerator.FiscalYearScope("2024-2025"))
	require.NoError(t, s.Put(ctx, key, &corenumerator.Record{Count: 3}))

	snap := s.Snapshot()
	require.NoError(t, s.Put(ctx, key, &corenumerator.Record{Count: 9}))
	other := corenumerator.NewKey("t1", corenumerator.DocumentPurchase, nil)
	require.NoError(t, s.Put(ctx, other, &corenumerator.Record{Count: 1}))

	s.Restore(snap)

	rec, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(3), rec.Count)
	_, err = s.Get(ctx, other)
	assert.ErrorIs(t, err, corenumerator.ErrCounterNotFound)
	assert.Equal(t, 1, s.Len())
}
