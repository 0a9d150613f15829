// Package numbering assigns human-readable, per-tenant sequential document numbers.
//
// Flow for document creation:
//
//	Preview (read-only) -> caller persists the document -> Commit (advances the counter)
//
// Issue combines the claim and the persist in one transaction and is the path
// that cannot hand the same number to two concurrent flows.
package numbering

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"optiledger/internal/core/apperror"
	"optiledger/internal/core/numerator"
	"optiledger/internal/core/tenant"
	"optiledger/internal/core/tx"
	"optiledger/pkg/logger"
)

var tracer = otel.Tracer("optiledger/numbering")

// errClaimConflict signals a lost compare-and-swap; the claim is retried.
var errClaimConflict = errors.New("counter changed concurrently")

// Config tunes retries and repair locking.
type Config struct {
	// MaxRetries bounds compare-and-swap retries per claim.
	MaxRetries uint64
	// InitialInterval and MaxInterval shape the exponential backoff between retries.
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// LockTTL bounds how long a repair may hold its counter lock.
	LockTTL time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:      8,
		InitialInterval: 5 * time.Millisecond,
		MaxInterval:     200 * time.Millisecond,
		LockTTL:         10 * time.Minute,
	}
}

// Locker provides exclusive sections across processes (repair).
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) error
}

// Dependencies are the collaborators of the service. Locker, Audit and Metrics are optional.
// TxManager may be nil, in which case it is taken from the request context.
type Dependencies struct {
	Store     numerator.Store
	Documents numerator.DocumentSource
	Settings  numerator.SettingsProvider
	TxManager tx.Manager
	Locker    Locker
	Audit     numerator.AuditLog
	Metrics   Metrics
}

// Service implements preview, commit, issue, diagnose and repair.
// It keeps no counter state of its own between calls.
type Service struct {
	cfg       Config
	store     numerator.Store
	documents numerator.DocumentSource
	settings  numerator.SettingsProvider
	txManager tx.Manager
	locker    Locker
	audit     numerator.AuditLog
	metrics   Metrics
	now       func() time.Time
}

// NewService creates a numbering service.
func NewService(cfg Config, deps Dependencies) *Service {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultConfig().MaxRetries
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = DefaultConfig().LockTTL
	}
	m := deps.Metrics
	if m == nil {
		m = NopMetrics{}
	}
	return &Service{
		cfg:       cfg,
		store:     deps.Store,
		documents: deps.Documents,
		settings:  deps.Settings,
		txManager: deps.TxManager,
		locker:    deps.Locker,
		audit:     deps.Audit,
		metrics:   m,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source. Intended for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) getTxManager(ctx context.Context) (tx.Manager, error) {
	if s.txManager != nil {
		return s.txManager, nil
	}
	return tenant.GetTxManager(ctx)
}

// resolve loads settings and derives the key. A missing fiscal year yields an unscoped key.
func (s *Service) resolve(ctx context.Context, tenantID string, docType numerator.DocumentType) (numerator.Key, numerator.Settings, error) {
	settings, err := s.settings.Settings(ctx, tenantID)
	if err != nil {
		return numerator.Key{}, settings, fmt.Errorf("load tenant settings: %w", err)
	}
	key := numerator.NewKey(tenantID, docType, settings.Scope())
	if err := key.Validate(); err != nil {
		return key, settings, apperror.NewValidation(err.Error())
	}
	return key, settings, nil
}

// --- Preview ---

// Source tells where a previewed number came from.
type Source string

const (
	SourceCounter Source = "counter"
	SourceScan    Source = "scan"
)

// Preview is the number the next document would receive.
type Preview struct {
	Number    string
	Candidate int64
	Key       numerator.Key
	Source    Source
	// Degraded carries the apperror code that forced the scan path, if any.
	Degraded string
}

// Preview computes the next number without mutating anything.
// It may be called on every screen render.
func (s *Service) Preview(ctx context.Context, tenantID string, docType numerator.DocumentType) (*Preview, error) {
	ctx, span := tracer.Start(ctx, "numbering.preview", trace.WithAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.String("document_type", string(docType)),
	))
	defer span.End()

	key, settings, err := s.resolve(ctx, tenantID, docType)
	if err != nil {
		return nil, err
	}

	if key.Scope.IsEmpty() {
		logger.Warn(ctx, "fiscal year not configured, numbering from document scan",
			"code", apperror.CodeMissingFiscalYear, "counter", key.String())
		return s.previewFromScan(ctx, key, settings, apperror.CodeMissingFiscalYear)
	}

	rec, err := s.store.Get(ctx, key)
	switch {
	case err == nil:
		number, err := numerator.Render(rec, rec.Count+1)
		if err != nil {
			return nil, apperror.NewValidation("counter format is invalid").
				WithDetail("counter", key.Name()).WithCause(err)
		}
		s.metrics.PreviewServed(SourceCounter, "")
		return &Preview{Number: number, Candidate: rec.Count + 1, Key: key, Source: SourceCounter}, nil

	case errors.Is(err, numerator.ErrCounterNotFound):
		return s.previewFromScan(ctx, key, settings, "")

	default:
		logger.Warn(ctx, "counter store unavailable, numbering from document scan",
			"code", apperror.CodeStoreUnavailable, "counter", key.String(), "error", err)
		span.RecordError(err)
		return s.previewFromScan(ctx, key, settings, apperror.CodeStoreUnavailable)
	}
}

// previewFromScan estimates the next number as documentCount+1 with the unscoped defaults.
func (s *Service) previewFromScan(ctx context.Context, key numerator.Key, settings numerator.Settings, degraded string) (*Preview, error) {
	count, err := s.documents.CountDocuments(ctx, key.TenantID, key.DocumentType)
	if err != nil {
		return nil, apperror.NewStoreUnavailable(key.String(), fmt.Errorf("count documents: %w", err))
	}

	tmpl := settings.TemplateFor(key.DocumentType, nil)
	rec := tmpl.NewRecord(count, s.now())
	number, err := numerator.Render(rec, count+1)
	if err != nil {
		return nil, apperror.NewValidation("fallback format is invalid").WithCause(err)
	}

	s.metrics.PreviewServed(SourceScan, degraded)
	return &Preview{Number: number, Candidate: count + 1, Key: key, Source: SourceScan, Degraded: degraded}, nil
}

// --- Commit ---

// Outcome is the terminal state of one document-creation attempt.
type Outcome string

const (
	OutcomePreviewed    Outcome = "previewed"
	OutcomePersisted    Outcome = "persisted"
	OutcomeCommitted    Outcome = "committed"
	OutcomeCommitFailed Outcome = "commit_failed"
	// OutcomeSkipped means no counter applies (fiscal year not configured).
	OutcomeSkipped Outcome = "skipped"
)

// CommitResult reports a post-persist counter advance.
type CommitResult struct {
	Key     numerator.Key
	Count   int64
	Outcome Outcome
	// Warning is set when the counter could not be advanced. The document stays valid;
	// the counter is now behind and only Repair restores it.
	Warning *apperror.AppError
}

// Commit advances the counter after the parent document has been persisted.
// issuedNumber is the number stored on that document.
//
// A counter created lazily here starts at max(1, Parse(issuedNumber)) rather than 1.
// Before the counter exists Preview numbers off the document scan, so the issued number
// may already be past 1; starting at 1 would hand it out again. A number that does not
// match the template seeds count 1.
//
// Commit never fails the caller: errors are logged, counted and returned as a warning.
func (s *Service) Commit(ctx context.Context, tenantID string, docType numerator.DocumentType, issuedNumber string) *CommitResult {
	ctx, span := tracer.Start(ctx, "numbering.commit", trace.WithAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.String("document_type", string(docType)),
	))
	defer span.End()

	key, settings, err := s.resolve(ctx, tenantID, docType)
	if err != nil {
		return s.commitFailed(ctx, key, err)
	}

	// Without a fiscal year numbering runs off the document scan, which stays
	// consistent on its own.
	if key.Scope.IsEmpty() {
		logger.Warn(ctx, "fiscal year not configured, counter not advanced",
			"code", apperror.CodeMissingFiscalYear, "counter", key.String())
		s.metrics.CommitFinished(OutcomeSkipped)
		return &CommitResult{
			Key:     key,
			Outcome: OutcomeSkipped,
			Warning: apperror.NewMissingFiscalYear(tenantID),
		}
	}

	tmpl := settings.TemplateFor(docType, key.Scope)
	seed := func(context.Context) (int64, error) {
		return seedFromIssued(tmpl, issuedNumber), nil
	}

	rec, err := s.claim(ctx, key, tmpl, seed)
	if err != nil {
		span.RecordError(err)
		return s.commitFailed(ctx, key, err)
	}

	s.metrics.CommitFinished(OutcomeCommitted)
	logger.Debug(ctx, "counter committed", "counter", key.String(), "count", rec.Count)
	return &CommitResult{Key: key, Count: rec.Count, Outcome: OutcomeCommitted}
}

func (s *Service) commitFailed(ctx context.Context, key numerator.Key, err error) *CommitResult {
	s.metrics.CommitFinished(OutcomeCommitFailed)
	logger.Error(ctx, "counter commit failed, document kept",
		"code", apperror.CodeCounterDrift, "counter", key.String(), "error", err)

	warning := &apperror.AppError{
		Code:       apperror.CodeCounterDrift,
		Message:    "Document saved, but its number counter could not be advanced. Run repair.",
		HTTPStatus: 200,
		Err:        err,
	}
	warning.WithDetail("counter", key.Name())
	if appErr, ok := apperror.AsAppError(err); ok {
		warning.WithDetail("cause", appErr.Code)
	}
	return &CommitResult{Key: key, Outcome: OutcomeCommitFailed, Warning: warning}
}

// seedFromIssued parses the issued number against the bootstrap template; 1 when it does not match.
func seedFromIssued(tmpl numerator.NumberTemplate, issued string) int64 {
	if issued == "" {
		return 1
	}
	n, err := numerator.Parse(tmpl.NewRecord(0, time.Time{}), issued)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// claim atomically advances the counter by one, creating it from tmpl with the
// seeded count when absent. Lost compare-and-swaps are retried with backoff.
func (s *Service) claim(ctx context.Context, key numerator.Key, tmpl numerator.NumberTemplate, seed func(context.Context) (int64, error)) (*numerator.Record, error) {
	eb := backoff.NewExponentialBackOff()
	if s.cfg.InitialInterval > 0 {
		eb.InitialInterval = s.cfg.InitialInterval
	}
	if s.cfg.MaxInterval > 0 {
		eb.MaxInterval = s.cfg.MaxInterval
	}
	b := backoff.WithContext(backoff.WithMaxRetries(eb, s.cfg.MaxRetries), ctx)

	rec, err := backoff.RetryWithData(func() (*numerator.Record, error) {
		now := s.now()

		var next *numerator.Record
		var expected int64

		cur, err := s.store.Get(ctx, key)
		switch {
		case errors.Is(err, numerator.ErrCounterNotFound):
			n, err := seed(ctx)
			if err != nil {
				return nil, backoff.Permanent(err)
			}
			next = tmpl.NewRecord(max(n, 1), now)
		case err != nil:
			return nil, backoff.Permanent(apperror.NewStoreUnavailable(key.String(), err))
		default:
			expected = cur.Count
			next = cur.Next(now)
		}

		ok, err := s.store.CompareAndSwap(ctx, key, expected, next)
		if err != nil {
			return nil, backoff.Permanent(apperror.NewStoreUnavailable(key.String(), err))
		}
		if !ok {
			s.metrics.ClaimConflict()
			return nil, errClaimConflict
		}
		return next, nil
	}, b)

	if errors.Is(err, errClaimConflict) {
		return nil, apperror.NewConcurrentModification("counter", key.Name()).WithCause(err)
	}
	return rec, err
}
