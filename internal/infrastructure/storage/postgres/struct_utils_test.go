package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type stamps struct {
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type counterRow struct {
	Count   int64  `db:"last_value"`
	Prefix  string `db:"prefix"`
	Scratch string `db:"-"`
	Label   string
	hidden  string `db:"hidden"`
	stamps
}

type Audited struct {
	ActorID string `db:"actor_id"`
}

type auditedRow struct {
	Key string `db:"counter_key"`
	*Audited
}

func TestExtractDBColumns(t *testing.T) {
	cols := ExtractDBColumns[counterRow]()
	assert.Equal(t, []string{"last_value", "prefix", "created_at", "updated_at"}, cols)

	assert.Equal(t, cols, ExtractDBColumns[*counterRow]())
	assert.Nil(t, ExtractDBColumns[int]())
}

func TestStructToMap(t *testing.T) {
	now := time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)
	row := counterRow{Count: 7, Prefix: "P", Scratch: "x", Label: "y", hidden: "z", stamps: stamps{CreatedAt: now}}

	m := StructToMap(&row)
	assert.Equal(t, map[string]any{
		"last_value": int64(7),
		"prefix":     "P",
		"created_at": now,
		"updated_at": time.Time{},
	}, m)

	// Cached metadata gives the same result for values.
	assert.Equal(t, m, StructToMap(row))
}

func TestStructToMap_UnexportedEmbeddedByValue(t *testing.T) {
	now := time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)
	row := counterRow{stamps: stamps{CreatedAt: now, UpdatedAt: now}}

	var m map[string]any
	assert.NotPanics(t, func() { m = StructToMap(row) })
	assert.Equal(t, now, m["created_at"])
	assert.Equal(t, now, m["updated_at"])
	assert.NotContains(t, m, "hidden")
}

func TestStructToMap_EmbeddedPointer(t *testing.T) {
	assert.Equal(t, map[string]any{"counter_key": "sale"}, StructToMap(auditedRow{Key: "sale"}))
	assert.Equal(t, map[string]any{"counter_key": "sale", "actor_id": "ops"},
		StructToMap(auditedRow{Key: "sale", Audited: &Audited{ActorID: "ops"}}))
}

func TestStructToMap_NonStruct(t *testing.T) {
	var nilRow *counterRow
	assert.Nil(t, StructToMap(nilRow))
	assert.Nil(t, StructToMap(42))
}
