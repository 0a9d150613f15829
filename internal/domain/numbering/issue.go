package numbering

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"optiledger/internal/core/apperror"
	"optiledger/internal/core/numerator"
	"optiledger/pkg/logger"
)

// PersistFunc stores the business document under the issued number.
// It runs inside the claiming transaction; returning an error rolls the claim back.
type PersistFunc func(ctx context.Context, number string) error

// Issue claims the next number and persists the document in one transaction.
//
// Unlike Preview followed by Commit, two concurrent Issue calls for the same key
// never receive the same number: the claim is a compare-and-swap on the counter
// and the loser retries against the new value.
//
// A counter created lazily here continues from the highest existing document number
// that matches its template, so a fresh key never reissues numbers already on file.
func (s *Service) Issue(ctx context.Context, tenantID string, docType numerator.DocumentType, persist PersistFunc) (string, error) {
	res, err := s.issue(ctx, "numbering.issue", tenantID, docType, persist)
	if err != nil {
		return "", err
	}
	return res.Number, nil
}

// Reservation is a number claimed for a document the caller stores afterwards.
type Reservation struct {
	Number string
	Count  int64
	Key    numerator.Key
}

// Reserve claims the next number for a document stored outside this service.
// It has the same race-free claim as Issue; a caller that then fails to store its
// document leaves a gap in the sequence, never a duplicate.
func (s *Service) Reserve(ctx context.Context, tenantID string, docType numerator.DocumentType) (*Reservation, error) {
	return s.issue(ctx, "numbering.reserve", tenantID, docType, nil)
}

func (s *Service) issue(ctx context.Context, spanName, tenantID string, docType numerator.DocumentType, persist PersistFunc) (*Reservation, error) {
	ctx, span := tracer.Start(ctx, spanName, trace.WithAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.String("document_type", string(docType)),
	))
	defer span.End()

	key, settings, err := s.resolve(ctx, tenantID, docType)
	if err != nil {
		return nil, err
	}
	if key.Scope.IsEmpty() {
		return nil, apperror.NewMissingFiscalYear(tenantID)
	}

	txm, err := s.getTxManager(ctx)
	if err != nil {
		return nil, fmt.Errorf("get tx manager: %w", err)
	}

	tmpl := settings.TemplateFor(docType, key.Scope)
	seed := func(ctx context.Context) (int64, error) {
		stats, err := s.scanHighest(ctx, key, tmpl.NewRecord(0, s.now()))
		if err != nil {
			return 0, apperror.NewStoreUnavailable(key.String(), err)
		}
		return stats.Highest + 1, nil
	}

	res := &Reservation{Key: key}
	err = txm.RunInTransaction(ctx, func(ctx context.Context) error {
		rec, err := s.claim(ctx, key, tmpl, seed)
		if err != nil {
			return err
		}
		if res.Number, err = numerator.Render(rec, rec.Count); err != nil {
			return apperror.NewValidation("counter format is invalid").
				WithDetail("counter", key.Name()).WithCause(err)
		}
		res.Count = rec.Count
		if persist == nil {
			return nil
		}
		return persist(ctx, res.Number)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.metrics.CommitFinished(OutcomeCommitted)
	logger.Debug(ctx, "number issued", "counter", key.String(), "number", res.Number)
	return res, nil
}
