// Package numerator provides Counter Store implementations for document numbering.
// This is the infrastructure layer - it implements core/numerator.Store.
package numerator

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	corenumerator "optiledger/internal/core/numerator"
	"optiledger/internal/infrastructure/storage/postgres"
)

// CountersTable stores one row per (tenant_id, counter_key).
const CountersTable = "numbering_counters"

// counterColumns follows the db tags of corenumerator.Record.
var counterColumns = postgres.ExtractDBColumns[corenumerator.Record]()

// QuerierProvider resolves the querier for ctx: the active transaction if any, otherwise the pool.
type QuerierProvider interface {
	GetQuerier(ctx context.Context) postgres.Querier
}

// PostgresStore implements corenumerator.Store on PostgreSQL.
// Every statement is filtered by tenant_id; counter_key is Key.Name().
type PostgresStore struct {
	querier QuerierProvider
	builder squirrel.StatementBuilderType
}

// Ensure compile-time interface compliance.
var _ corenumerator.Store = (*PostgresStore)(nil)

// NewPostgresStore creates a counter store. Pass the TxManager so that
// Issue can claim a number inside the same transaction that persists the document.
func NewPostgresStore(querier QuerierProvider) *PostgresStore {
	return &PostgresStore{
		querier: querier,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (s *PostgresStore) selectQuery(key corenumerator.Key) squirrel.SelectBuilder {
	return s.builder.
		Select(counterColumns...).
		From(CountersTable).
		Where(squirrel.Eq{"tenant_id": key.TenantID, "counter_key": key.Name()})
}

// Get returns the counter record or corenumerator.ErrCounterNotFound.
func (s *PostgresStore) Get(ctx context.Context, key corenumerator.Key) (*corenumerator.Record, error) {
	sql, args, err := s.selectQuery(key).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var rec corenumerator.Record
	if err := pgxscan.Get(ctx, s.querier.GetQuerier(ctx), &rec, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, corenumerator.ErrCounterNotFound
		}
		return nil, fmt.Errorf("get counter %s: %w", key, err)
	}
	return &rec, nil
}

func (s *PostgresStore) insertQuery(key corenumerator.Key, rec *corenumerator.Record) squirrel.InsertBuilder {
	values := postgres.StructToMap(rec)
	values["tenant_id"] = key.TenantID
	values["counter_key"] = key.Name()
	return s.builder.Insert(CountersTable).SetMap(values)
}

// Put upserts the record. created_at is preserved on update.
func (s *PostgresStore) Put(ctx context.Context, key corenumerator.Key, rec *corenumerator.Record) error {
	sql, args, err := s.insertQuery(key, rec).
		Suffix(`ON CONFLICT (tenant_id, counter_key) DO UPDATE SET
			last_value = EXCLUDED.last_value,
			prefix = EXCLUDED.prefix,
			separator = EXCLUDED.separator,
			format = EXCLUDED.format,
			note = EXCLUDED.note,
			updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}

	if _, err := s.querier.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("put counter %s: %w", key, err)
	}
	return nil
}

// CompareAndSwap writes rec only if last_value still equals expected.
func (s *PostgresStore) CompareAndSwap(ctx context.Context, key corenumerator.Key, expected int64, rec *corenumerator.Record) (bool, error) {
	if rec == nil {
		return false, errors.New("record is nil")
	}
	querier := s.querier.GetQuerier(ctx)

	if expected == 0 {
		sql, args, err := s.insertQuery(key, rec).
			Suffix("ON CONFLICT (tenant_id, counter_key) DO NOTHING").
			ToSql()
		if err != nil {
			return false, fmt.Errorf("build insert: %w", err)
		}
		tag, err := querier.Exec(ctx, sql, args...)
		if err != nil {
			return false, fmt.Errorf("create counter %s: %w", key, err)
		}
		if tag.RowsAffected() == 1 {
			return true, nil
		}
		// Row exists; it may legitimately hold 0 after a repair over an empty history.
	}

	set := postgres.StructToMap(rec)
	delete(set, "created_at")

	sql, args, err := s.builder.
		Update(CountersTable).
		SetMap(set).
		Where(squirrel.Eq{
			"tenant_id":   key.TenantID,
			"counter_key": key.Name(),
			"last_value":  expected,
		}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build update: %w", err)
	}

	tag, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return false, fmt.Errorf("swap counter %s: %w", key, err)
	}
	return tag.RowsAffected() == 1, nil
}
