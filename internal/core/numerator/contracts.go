package numerator

import (
	"context"
	"time"
)

// Store persists one counter record per key.
//
// Implementations must scope every operation by Key.TenantID and, when a transaction
// is present in ctx, run on it.
type Store interface {
	// Get returns the record or ErrCounterNotFound.
	Get(ctx context.Context, key Key) (*Record, error)

	// Put upserts the record unconditionally.
	Put(ctx context.Context, key Key, rec *Record) error

	// CompareAndSwap writes rec only if the stored count equals expected.
	// With expected == 0 and no stored record, it inserts rec.
	// Returns false when another writer got there first.
	CompareAndSwap(ctx context.Context, key Key, expected int64, rec *Record) (bool, error)
}

// DocumentNumber is a number snapshot stored on a business document.
type DocumentNumber struct {
	Number    string    `db:"number"`
	CreatedAt time.Time `db:"created_at"`
}

// DocumentSource gives read access to business documents that carry numbers.
type DocumentSource interface {
	// CountDocuments counts documents of the type for the tenant.
	CountDocuments(ctx context.Context, tenantID string, docType DocumentType) (int64, error)

	// ScanNumbers streams stored numbers, newest first. Returning an error from fn stops the scan.
	ScanNumbers(ctx context.Context, tenantID string, docType DocumentType, fn func(DocumentNumber) error) error
}

// SettingsProvider supplies tenant numbering settings.
type SettingsProvider interface {
	Settings(ctx context.Context, tenantID string) (Settings, error)
}

// RepairEntry is the audit record of one completed repair.
type RepairEntry struct {
	ID      string
	Key     Key
	ActorID string
	// Before is nil when the repair created the counter.
	Before  *Record
	After   *Record
	Scanned int64
	Matched int64
	Skipped int64
	At      time.Time
}

// AuditLog keeps the repair history of counters.
type AuditLog interface {
	RecordRepair(ctx context.Context, entry RepairEntry) error

	// RepairHistory returns the latest entries for the tenant and type, newest first.
	RepairHistory(ctx context.Context, tenantID string, docType DocumentType, limit int) ([]RepairEntry, error)
}
