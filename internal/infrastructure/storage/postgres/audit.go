package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/klauspost/compress/zstd"

	"optiledger/internal/core/id"
	"optiledger/internal/core/numerator"
)

// AuditTable stores one row per audited counter change.
const AuditTable = "sys_audit"

// AuditAction represents the type of audited operation.
type AuditAction string

const AuditActionRepair AuditAction = "repair"

// CompressionAlgo specifies the compression algorithm used for changes.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// auditRow mirrors sys_audit.
type auditRow struct {
	ID                string          `db:"id"`
	TenantID          string          `db:"tenant_id"`
	DocumentType      string          `db:"document_type"`
	Scope             []string        `db:"scope"`
	CounterKey        string          `db:"counter_key"`
	Action            AuditAction     `db:"action"`
	UserID            string          `db:"user_id"`
	Changes           json.RawMessage `db:"changes"`
	ChangesCompressed []byte          `db:"changes_compressed"`
	CompressionAlgo   CompressionAlgo `db:"compression_algo"`
	CreatedAt         time.Time       `db:"created_at"`
}

// repairChanges is the JSON payload of a repair row.
type repairChanges struct {
	Before  *numerator.Record `json:"before,omitempty"`
	After   *numerator.Record `json:"after"`
	Diff    map[string]any    `json:"diff,omitempty"`
	Scanned int64             `json:"scanned"`
	Matched int64             `json:"matched"`
	Skipped int64             `json:"skipped"`
}

// AuditLog keeps the repair history of counters in sys_audit.
// Payloads above the compression threshold are stored zstd-compressed.
type AuditLog struct {
	txManager         *TxManager
	builder           squirrel.StatementBuilderType
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int // bytes
}

var _ numerator.AuditLog = (*AuditLog)(nil)

// NewAuditLog creates an audit log compressing payloads larger than 8KB.
func NewAuditLog(txManager *TxManager) (*AuditLog, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &AuditLog{
		txManager:         txManager,
		builder:           squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: 8 * 1024,
	}, nil
}

// RecordRepair appends a repair entry.
func (l *AuditLog) RecordRepair(ctx context.Context, entry numerator.RepairEntry) error {
	row, err := l.toRow(entry)
	if err != nil {
		return err
	}

	sql, args, err := l.builder.
		Insert(AuditTable).
		SetMap(StructToMap(row)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build audit insert: %w", err)
	}
	if _, err := l.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// RepairHistory returns the latest repairs of docType, newest first.
func (l *AuditLog) RepairHistory(ctx context.Context, tenantID string, docType numerator.DocumentType, limit int) ([]numerator.RepairEntry, error) {
	sql, args, err := l.historyQuery(tenantID, docType, limit)
	if err != nil {
		return nil, fmt.Errorf("build history query: %w", err)
	}

	var rows []auditRow
	if err := pgxscan.Select(ctx, l.txManager.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}

	entries := make([]numerator.RepairEntry, 0, len(rows))
	for _, row := range rows {
		e, err := l.fromRow(row)
		if err != nil {
			return nil, fmt.Errorf("decode audit entry %s: %w", row.ID, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (l *AuditLog) historyQuery(tenantID string, docType numerator.DocumentType, limit int) (string, []any, error) {
	if limit <= 0 {
		limit = 20
	}
	return l.builder.
		Select(ExtractDBColumns[auditRow]()...).
		From(AuditTable).
		Where(squirrel.Eq{
			"tenant_id":     tenantID,
			"document_type": string(docType),
			"action":        AuditActionRepair,
		}).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(limit)).
		ToSql()
}

func (l *AuditLog) toRow(entry numerator.RepairEntry) (auditRow, error) {
	changes, err := json.Marshal(repairChanges{
		Before:  entry.Before,
		After:   entry.After,
		Diff:    Diff(StructToMap(entry.Before), StructToMap(entry.After)),
		Scanned: entry.Scanned,
		Matched: entry.Matched,
		Skipped: entry.Skipped,
	})
	if err != nil {
		return auditRow{}, fmt.Errorf("marshal changes: %w", err)
	}

	row := auditRow{
		ID:              entry.ID,
		TenantID:        entry.Key.TenantID,
		DocumentType:    string(entry.Key.DocumentType),
		Scope:           []string(entry.Key.Scope),
		CounterKey:      entry.Key.Name(),
		Action:          AuditActionRepair,
		UserID:          entry.ActorID,
		CompressionAlgo: CompressionNone,
		CreatedAt:       entry.At,
	}
	if row.ID == "" {
		row.ID = id.NewString()
	}
	if row.Scope == nil {
		row.Scope = []string{}
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}

	if len(changes) > l.compressThreshold {
		row.ChangesCompressed = l.encoder.EncodeAll(changes, nil)
		row.CompressionAlgo = CompressionZstd
	} else {
		row.Changes = changes
	}
	return row, nil
}

func (l *AuditLog) fromRow(row auditRow) (numerator.RepairEntry, error) {
	raw := []byte(row.Changes)
	if row.CompressionAlgo == CompressionZstd {
		decompressed, err := l.decoder.DecodeAll(row.ChangesCompressed, nil)
		if err != nil {
			return numerator.RepairEntry{}, fmt.Errorf("decompress changes: %w", err)
		}
		raw = decompressed
	}

	var changes repairChanges
	if err := json.Unmarshal(raw, &changes); err != nil {
		return numerator.RepairEntry{}, fmt.Errorf("unmarshal changes: %w", err)
	}

	return numerator.RepairEntry{
		ID:      row.ID,
		Key:     numerator.NewKey(row.TenantID, numerator.DocumentType(row.DocumentType), numerator.Scope(row.Scope)),
		ActorID: row.UserID,
		Before:  changes.Before,
		After:   changes.After,
		Scanned: changes.Scanned,
		Matched: changes.Matched,
		Skipped: changes.Skipped,
		At:      row.CreatedAt,
	}, nil
}

// Diff returns the fields that differ between two states as {"old": x, "new": y}.
// A nil state counts as all fields absent.
func Diff(oldState, newState map[string]any) map[string]any {
	changes := make(map[string]any)

	for key, newVal := range newState {
		oldVal, exists := oldState[key]
		if !exists {
			changes[key] = map[string]any{"old": nil, "new": newVal}
		} else if !reflect.DeepEqual(oldVal, newVal) {
			changes[key] = map[string]any{"old": oldVal, "new": newVal}
		}
	}

	for key, oldVal := range oldState {
		if _, exists := newState[key]; !exists {
			changes[key] = map[string]any{"old": oldVal, "new": nil}
		}
	}

	return changes
}
