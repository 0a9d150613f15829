package document_repo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optiledger/internal/core/numerator"
)

func TestNumberRepo_PageQuery(t *testing.T) {
	repo := NewNumberRepo(nil, nil, 100)

	tests := []struct {
		name     string
		after    *numberRow
		wantSQL  string
		wantArgs int
	}{
		{
			name:     "first page",
			wantSQL:  "SELECT id::text AS id, number, created_at FROM purchases WHERE tenant_id = $1 AND number IS NOT NULL ORDER BY created_at DESC, id DESC LIMIT 100",
			wantArgs: 1,
		},
		{
			name:     "next page",
			after:    &numberRow{ID: "b", CreatedAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)},
			wantSQL:  "SELECT id::text AS id, number, created_at FROM purchases WHERE tenant_id = $1 AND number IS NOT NULL AND (created_at, id::text) < ($2, $3) ORDER BY created_at DESC, id DESC LIMIT 100",
			wantArgs: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := repo.pageQuery("purchases", "t1", tt.after).ToSql()
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Len(t, args, tt.wantArgs)
			assert.Equal(t, "t1", args[0])
		})
	}
}

func TestNumberRepo_UnknownTable(t *testing.T) {
	repo := NewNumberRepo(nil, map[numerator.DocumentType]string{numerator.DocumentSale: "sales"}, 0)

	_, err := repo.table(numerator.DocumentPurchase)
	assert.Error(t, err)

	table, err := repo.table(numerator.DocumentSale)
	require.NoError(t, err)
	assert.Equal(t, "sales", table)
	assert.Equal(t, uint64(DefaultScanBatchSize), repo.batchSize)
}
