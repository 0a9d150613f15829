// Package document_repo reads numbers stored on business documents.
// Purchases and sales are owned by other services; this package only reads them.
package document_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"optiledger/internal/core/numerator"
	"optiledger/internal/infrastructure/storage/postgres"
)

// DefaultScanBatchSize is the page size used by ScanNumbers.
const DefaultScanBatchSize = 500

// DefaultTables maps document types to their tables.
func DefaultTables() map[numerator.DocumentType]string {
	return map[numerator.DocumentType]string{
		numerator.DocumentPurchase: "purchases",
		numerator.DocumentSale:     "sales",
	}
}

// QuerierProvider resolves the querier for ctx.
type QuerierProvider interface {
	GetQuerier(ctx context.Context) postgres.Querier
}

// NumberRepo implements numerator.DocumentSource over per-type document tables.
// Each table must have id, tenant_id, number and created_at columns.
type NumberRepo struct {
	querier   QuerierProvider
	tables    map[numerator.DocumentType]string
	batchSize uint64
}

// Ensure compile-time interface compliance.
var _ numerator.DocumentSource = (*NumberRepo)(nil)

// NewNumberRepo creates a document number reader. Zero batchSize uses the default.
func NewNumberRepo(querier QuerierProvider, tables map[numerator.DocumentType]string, batchSize int) *NumberRepo {
	if len(tables) == 0 {
		tables = DefaultTables()
	}
	if batchSize <= 0 {
		batchSize = DefaultScanBatchSize
	}
	return &NumberRepo{
		querier:   querier,
		tables:    tables,
		batchSize: uint64(batchSize),
	}
}

// Builder returns a new squirrel builder.
func (r *NumberRepo) Builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func (r *NumberRepo) table(docType numerator.DocumentType) (string, error) {
	t, ok := r.tables[docType]
	if !ok {
		return "", fmt.Errorf("no table configured for document type %q", docType)
	}
	return t, nil
}

// CountDocuments counts documents of the type for the tenant.
func (r *NumberRepo) CountDocuments(ctx context.Context, tenantID string, docType numerator.DocumentType) (int64, error) {
	table, err := r.table(docType)
	if err != nil {
		return 0, err
	}

	sql, args, err := r.Builder().
		Select("count(*)").
		From(table).
		Where(squirrel.Eq{"tenant_id": tenantID}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}

	var count int64
	if err := r.querier.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return count, nil
}

type numberRow struct {
	ID        string    `db:"id"`
	Number    string    `db:"number"`
	CreatedAt time.Time `db:"created_at"`
}

// pageQuery selects one keyset page, newest first.
func (r *NumberRepo) pageQuery(table, tenantID string, after *numberRow) squirrel.SelectBuilder {
	q := r.Builder().
		Select("id::text AS id", "number", "created_at").
		From(table).
		Where(squirrel.Eq{"tenant_id": tenantID}).
		Where(squirrel.NotEq{"number": nil}).
		OrderBy("created_at DESC", "id DESC").
		Limit(r.batchSize)
	if after != nil {
		q = q.Where(squirrel.Expr("(created_at, id::text) < (?, ?)", after.CreatedAt, after.ID))
	}
	return q
}

// ScanNumbers streams stored numbers newest first, page by page.
func (r *NumberRepo) ScanNumbers(ctx context.Context, tenantID string, docType numerator.DocumentType, fn func(numerator.DocumentNumber) error) error {
	table, err := r.table(docType)
	if err != nil {
		return err
	}

	var after *numberRow
	for {
		sql, args, err := r.pageQuery(table, tenantID, after).ToSql()
		if err != nil {
			return fmt.Errorf("build scan: %w", err)
		}

		var page []numberRow
		if err := pgxscan.Select(ctx, r.querier.GetQuerier(ctx), &page, sql, args...); err != nil {
			return fmt.Errorf("scan %s: %w", table, err)
		}

		for _, row := range page {
			if err := fn(numerator.DocumentNumber{Number: row.Number, CreatedAt: row.CreatedAt}); err != nil {
				return err
			}
		}

		if uint64(len(page)) < r.batchSize {
			return nil
		}
		last := page[len(page)-1]
		after = &last
	}
}
