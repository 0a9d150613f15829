package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"optiledger/internal/core/apperror"
	"optiledger/internal/infrastructure/storage/postgres"
	"optiledger/pkg/logger"
)

const (
	HeaderIdempotencyKey = "X-Idempotency-Key"

	// ContextKeySkipReplay lets a handler opt its response out of replay,
	// e.g. a commit that only produced a warning and should be retried for real.
	ContextKeySkipReplay = "idempotency_skip_replay"

	maxIdempotencyBodyBytes = 1 << 20 // 1 MiB
	maxIdempotencyKeyLength = 128
)

// IdempotencyStore persists idempotency keys.
type IdempotencyStore interface {
	Acquire(ctx context.Context, tenantID, key, operation, requestHash string) (*postgres.IdempotencyReplay, error)
	Complete(ctx context.Context, tenantID, key string, statusCode int, contentType string, body []byte) error
	Release(ctx context.Context, tenantID, key string) error
}

// Idempotency makes a retried request with the same X-Idempotency-Key replay the first
// response instead of running again. Requests without the header pass through.
// Must run after Tenant: keys are scoped per tenant.
func Idempotency(store IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" || store == nil {
			c.Next()
			return
		}
		if len(key) > maxIdempotencyKeyLength {
			_ = c.Error(apperror.NewValidation("idempotency key too long").
				WithDetail("max_length", maxIdempotencyKeyLength))
			c.Abort()
			return
		}

		ctx := c.Request.Context()
		tenantID := c.GetString("tenant_id")

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxIdempotencyBodyBytes+1))
		if err != nil {
			_ = c.Error(apperror.NewValidation("unreadable request body"))
			c.Abort()
			return
		}
		if len(body) > maxIdempotencyBodyBytes {
			appErr := apperror.NewValidation("request body too large for idempotency")
			appErr.HTTPStatus = http.StatusRequestEntityTooLarge
			_ = c.Error(appErr.WithDetail("max_bytes", maxIdempotencyBodyBytes))
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		hash := sha256.Sum256(body)
		operation := c.Request.Method + " " + c.FullPath() + " " + c.Param("type")

		replay, err := store.Acquire(ctx, tenantID, key, operation, hex.EncodeToString(hash[:]))
		if err != nil {
			if appErr, ok := apperror.AsAppError(err); ok {
				_ = c.Error(appErr)
			} else {
				_ = c.Error(apperror.NewInternal(err).WithDetail("component", "idempotency"))
			}
			c.Abort()
			return
		}
		if replay != nil {
			c.Header("Idempotent-Replayed", "true")
			c.Data(replay.StatusCode, replay.ContentType, replay.Body)
			c.Abort()
			return
		}

		recorder := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = recorder

		c.Next()

		// Background context: the request context may already be cancelled.
		bg := context.WithoutCancel(ctx)
		status := recorder.Status()
		if recorder.Written() && status < http.StatusMultipleChoices && len(c.Errors) == 0 && !c.GetBool(ContextKeySkipReplay) {
			if err := store.Complete(bg, tenantID, key, status, recorder.Header().Get("Content-Type"), recorder.buf.Bytes()); err != nil {
				logger.Error(ctx, "complete idempotency key", "key", key, "error", err)
			}
			return
		}
		if err := store.Release(bg, tenantID, key); err != nil {
			logger.Error(ctx, "release idempotency key", "key", key, "error", err)
		}
	}
}

// bodyRecorder copies the response body for replay.
type bodyRecorder struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyRecorder) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}
