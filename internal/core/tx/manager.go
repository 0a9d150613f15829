// Package tx is the transaction port used by the numbering service.
// The PostgreSQL implementation lives in infrastructure/storage/postgres.
package tx

import (
	"context"
)

// Manager runs fn in a transaction carried by ctx. An error from fn rolls back
// everything fn wrote, including a claimed counter value. Nested calls join the
// transaction already in ctx.
type Manager interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ReadOnlyManager also offers a read-only snapshot, so a diagnosis sees the
// counter and the documents as of the same instant.
type ReadOnlyManager interface {
	Manager
	ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error
}
