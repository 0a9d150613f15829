package postgres

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optiledger/internal/core/numerator"
)

func newTestAuditLog(t *testing.T) *AuditLog {
	t.Helper()
	l, err := NewAuditLog(nil)
	require.NoError(t, err)
	return l
}

func repairEntry(before *numerator.Record) numerator.RepairEntry {
	at := time.Date(2024, 8, 1, 12, 0, 0, 0, time.UTC)
	after := &numerator.Record{Count: 42, Prefix: "PUR", Separator: "-", Format: "%06d", CreatedAt: at, UpdatedAt: at}
	return numerator.RepairEntry{
		Key:     numerator.NewKey("t1", numerator.DocumentPurchase, numerator.FiscalYearScope("2024-2025")),
		ActorID: "admin-1",
		Before:  before,
		After:   after,
		Scanned: 50,
		Matched: 42,
		Skipped: 8,
		At:      at,
	}
}

func TestAuditLog_RowRoundTrip(t *testing.T) {
	l := newTestAuditLog(t)
	before := &numerator.Record{Count: 40, Prefix: "PUR", Separator: "-", Format: "%06d"}

	row, err := l.toRow(repairEntry(before))
	require.NoError(t, err)

	assert.NotEmpty(t, row.ID)
	assert.Equal(t, "purchase_2024-2025", row.CounterKey)
	assert.Equal(t, []string{"2024-2025"}, row.Scope)
	assert.Equal(t, CompressionNone, row.CompressionAlgo)
	assert.Nil(t, row.ChangesCompressed)
	assert.Contains(t, string(row.Changes), `"last_value":{"new":42,"old":40}`)

	entry, err := l.fromRow(row)
	require.NoError(t, err)
	assert.Equal(t, row.ID, entry.ID)
	assert.Equal(t, "purchase_2024-2025", entry.Key.Name())
	assert.Equal(t, "admin-1", entry.ActorID)
	require.NotNil(t, entry.Before)
	assert.Equal(t, int64(40), entry.Before.Count)
	assert.Equal(t, int64(42), entry.After.Count)
	assert.Equal(t, int64(8), entry.Skipped)
}

func TestAuditLog_CompressesLargePayloads(t *testing.T) {
	l := newTestAuditLog(t)
	l.compressThreshold = 16

	e := repairEntry(nil)
	e.After.Note = strings.Repeat("repaired ", 100)

	row, err := l.toRow(e)
	require.NoError(t, err)
	assert.Equal(t, CompressionZstd, row.CompressionAlgo)
	assert.Nil(t, row.Changes)
	assert.NotEmpty(t, row.ChangesCompressed)

	entry, err := l.fromRow(row)
	require.NoError(t, err)
	assert.Nil(t, entry.Before)
	assert.Equal(t, e.After.Note, entry.After.Note)
}

func TestAuditLog_HistoryQuery(t *testing.T) {
	l := newTestAuditLog(t)

	sql, args, err := l.historyQuery("t1", numerator.DocumentSale, 0)
	require.NoError(t, err)

	assert.Contains(t, sql, "FROM sys_audit")
	assert.Contains(t, sql, "ORDER BY created_at DESC, id DESC")
	assert.Contains(t, sql, "LIMIT 20")
	assert.ElementsMatch(t, []any{AuditActionRepair, "sale", "t1"}, args)
}

func TestDiff(t *testing.T) {
	changes := Diff(
		map[string]any{"last_value": int64(1), "prefix": "PUR", "note": "x"},
		map[string]any{"last_value": int64(2), "prefix": "PUR", "format": "%06d"},
	)

	assert.Equal(t, map[string]any{
		"last_value": map[string]any{"old": int64(1), "new": int64(2)},
		"note":       map[string]any{"old": "x", "new": nil},
		"format":     map[string]any{"old": nil, "new": "%06d"},
	}, changes)
}
