package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"

	"optiledger/internal/core/apperror"
)

// IdempotencyTable stores one row per (tenant_id, idempotency_key).
const IdempotencyTable = "sys_idempotency"

// IdempotencyStatus represents the state of an idempotent operation.
type IdempotencyStatus string

const (
	IdempotencyStatusPending IdempotencyStatus = "pending"
	IdempotencyStatusSuccess IdempotencyStatus = "success"
)

// staleAfter reclaims pending keys whose request most likely crashed.
const staleAfter = time.Minute

// IdempotencyRecord is one stored key.
type IdempotencyRecord struct {
	TenantID    string            `db:"tenant_id"`
	Key         string            `db:"idempotency_key"`
	Operation   string            `db:"operation"`
	RequestHash string            `db:"request_hash"`
	Status      IdempotencyStatus `db:"status"`
	Response    []byte            `db:"response"`
	StatusCode  int               `db:"response_status"`
	ContentType string            `db:"response_content_type"`
	CreatedAt   time.Time         `db:"created_at"`
	UpdatedAt   time.Time         `db:"updated_at"`
	ExpiresAt   time.Time         `db:"expires_at"`
}

// IdempotencyReplay is a cached HTTP response.
type IdempotencyReplay struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// IdempotencyStore guards non-idempotent requests (counter commits) against client retries.
type IdempotencyStore struct {
	txManager *TxManager
	builder   squirrel.StatementBuilderType
	ttl       time.Duration
	now       func() time.Time
}

// NewIdempotencyStore creates a store whose keys live for ttl.
func NewIdempotencyStore(txManager *TxManager, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		ttl:       ttl,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// acquireQuery inserts a pending key or touches the existing one.
// inserted is true only for the row this statement created.
func (s *IdempotencyStore) acquireQuery(tenantID, key, operation, requestHash string, now time.Time) (string, []any, error) {
	return s.builder.
		Insert(IdempotencyTable).
		Columns("tenant_id", "idempotency_key", "operation", "request_hash", "status", "created_at", "updated_at", "expires_at").
		Values(tenantID, key, operation, requestHash, IdempotencyStatusPending, now, now, now.Add(s.ttl)).
		Suffix(`ON CONFLICT (tenant_id, idempotency_key) DO UPDATE SET expires_at = ` + IdempotencyTable + `.expires_at
			RETURNING (xmax = 0) AS inserted, operation, request_hash, status, response, response_status, response_content_type, updated_at`).
		ToSql()
}

// Acquire claims key for one request.
// It returns (nil, nil) when the caller owns the key and must call Complete or Release,
// a replay when the request already finished, or an AppError on conflict or reuse.
func (s *IdempotencyStore) Acquire(ctx context.Context, tenantID, key, operation, requestHash string) (*IdempotencyReplay, error) {
	now := s.now()
	sql, args, err := s.acquireQuery(tenantID, key, operation, requestHash, now)
	if err != nil {
		return nil, fmt.Errorf("build acquire: %w", err)
	}

	var (
		inserted bool
		rec      IdempotencyRecord
		response []byte
		status   *int
		ctype    *string
	)
	err = s.txManager.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(
		&inserted, &rec.Operation, &rec.RequestHash, &rec.Status, &response, &status, &ctype, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("acquire idempotency key: %w", err)
	}
	if inserted {
		return nil, nil
	}

	if rec.Operation != operation || rec.RequestHash != requestHash {
		return nil, apperror.NewIdempotencyKeyReused(key)
	}

	switch rec.Status {
	case IdempotencyStatusSuccess:
		replay := &IdempotencyReplay{StatusCode: 200, ContentType: "application/json", Body: response}
		if status != nil && *status != 0 {
			replay.StatusCode = *status
		}
		if ctype != nil && *ctype != "" {
			replay.ContentType = *ctype
		}
		return replay, nil

	default:
		if now.Sub(rec.UpdatedAt) <= staleAfter {
			return nil, apperror.NewIdempotencyConflict(key)
		}
		// Reclaim only if nobody else did in the meantime.
		tag, err := s.txManager.GetQuerier(ctx).Exec(ctx,
			`UPDATE `+IdempotencyTable+` SET updated_at = $1
			WHERE tenant_id = $2 AND idempotency_key = $3 AND status = $4 AND updated_at = $5`,
			now, tenantID, key, IdempotencyStatusPending, rec.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("reclaim stale key: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil, apperror.NewIdempotencyConflict(key)
		}
		return nil, nil
	}
}

// Complete stores the response for replay.
func (s *IdempotencyStore) Complete(ctx context.Context, tenantID, key string, statusCode int, contentType string, body []byte) error {
	sql, args, err := s.builder.
		Update(IdempotencyTable).
		Set("status", IdempotencyStatusSuccess).
		Set("response", body).
		Set("response_status", statusCode).
		Set("response_content_type", contentType).
		Set("updated_at", s.now()).
		Where(squirrel.Eq{"tenant_id": tenantID, "idempotency_key": key}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build complete: %w", err)
	}
	if _, err := s.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("complete idempotency key: %w", err)
	}
	return nil
}

// Release forgets a pending key so the client may retry.
func (s *IdempotencyStore) Release(ctx context.Context, tenantID, key string) error {
	sql, args, err := s.builder.
		Delete(IdempotencyTable).
		Where(squirrel.Eq{"tenant_id": tenantID, "idempotency_key": key, "status": IdempotencyStatusPending}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build release: %w", err)
	}
	if _, err := s.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

// CleanupExpired removes expired keys across all tenants.
func (s *IdempotencyStore) CleanupExpired(ctx context.Context) (int64, error) {
	tag, err := s.txManager.GetQuerier(ctx).Exec(ctx,
		`DELETE FROM `+IdempotencyTable+` WHERE expires_at < $1`, s.now())
	if err != nil {
		return 0, fmt.Errorf("cleanup idempotency keys: %w", err)
	}
	return tag.RowsAffected(), nil
}
