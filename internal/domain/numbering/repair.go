package numbering

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"optiledger/internal/core/apperror"
	appctx "optiledger/internal/core/context"
	"optiledger/internal/core/id"
	"optiledger/internal/core/numerator"
	"optiledger/internal/core/tx"
	"optiledger/pkg/logger"
)

// errStopScan ends a ScanNumbers walk early.
var errStopScan = errors.New("stop scan")

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)

// Report is a read-only view of one counter next to the documents it numbers.
type Report struct {
	Key              numerator.Key
	CounterExists    bool
	Counter          *numerator.Record
	DocumentCount    int64
	MostRecentNumber string
	ParsedMostRecent *int64
	// Drift is ParsedMostRecent minus the stored count. Positive means the counter is behind.
	Drift int64
}

// RepairResult summarizes a repair run.
type RepairResult struct {
	Key            numerator.Key
	HighestNumber  int64
	NextNumber     string
	TotalDocuments int64
	Matched        int64
	Skipped        int64
	Counter        *numerator.Record
}

type scanStats struct {
	Highest int64
	Total   int64
	Matched int64
	Skipped int64
}

// scanHighest walks every document of the key's type and returns the highest
// sequence value among numbers that match rec's template.
func (s *Service) scanHighest(ctx context.Context, key numerator.Key, rec *numerator.Record) (scanStats, error) {
	var st scanStats
	parser, err := numerator.NewParser(rec)
	if err != nil {
		return st, fmt.Errorf("compile counter format: %w", err)
	}
	err = s.documents.ScanNumbers(ctx, key.TenantID, key.DocumentType, func(d numerator.DocumentNumber) error {
		st.Total++
		n, err := parser.Parse(d.Number)
		if err != nil {
			if errors.Is(err, numerator.ErrUnparseableNumber) {
				st.Skipped++
				return nil
			}
			return err
		}
		st.Matched++
		st.Highest = max(st.Highest, n)
		return nil
	})
	if err != nil {
		return st, fmt.Errorf("scan document numbers: %w", err)
	}
	return st, nil
}

// Diagnose compares the stored counter with the most recent document.
func (s *Service) Diagnose(ctx context.Context, tenantID string, docType numerator.DocumentType) (*Report, error) {
	ctx, span := tracer.Start(ctx, "numbering.diagnose", trace.WithAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.String("document_type", string(docType)),
	))
	defer span.End()

	key, settings, err := s.resolve(ctx, tenantID, docType)
	if err != nil {
		return nil, err
	}

	var report *Report
	read := func(ctx context.Context) (err error) {
		report, err = s.diagnose(ctx, key, settings)
		return err
	}

	// Counter, count and scan come from one snapshot when the manager supports it.
	if txm, txErr := s.getTxManager(ctx); txErr == nil {
		if ro, ok := txm.(tx.ReadOnlyManager); ok {
			err = ro.ReadOnly(ctx, read)
		} else {
			err = read(ctx)
		}
	} else {
		err = read(ctx)
	}
	if err != nil {
		if _, ok := apperror.AsAppError(err); !ok {
			err = apperror.NewStoreUnavailable(key.String(), err)
		}
		return nil, err
	}
	return report, nil
}

func (s *Service) diagnose(ctx context.Context, key numerator.Key, settings numerator.Settings) (*Report, error) {
	tenantID, docType := key.TenantID, key.DocumentType
	report := &Report{Key: key}

	rec, err := s.store.Get(ctx, key)
	switch {
	case err == nil:
		report.CounterExists = true
		report.Counter = rec
	case errors.Is(err, numerator.ErrCounterNotFound):
		rec = settings.TemplateFor(docType, key.Scope).NewRecord(0, s.now())
	default:
		return nil, apperror.NewStoreUnavailable(key.String(), err)
	}

	if report.DocumentCount, err = s.documents.CountDocuments(ctx, tenantID, docType); err != nil {
		return nil, apperror.NewStoreUnavailable(key.String(), fmt.Errorf("count documents: %w", err))
	}

	err = s.documents.ScanNumbers(ctx, tenantID, docType, func(d numerator.DocumentNumber) error {
		report.MostRecentNumber = d.Number
		return errStopScan
	})
	if err != nil && !errors.Is(err, errStopScan) {
		return nil, apperror.NewStoreUnavailable(key.String(), fmt.Errorf("scan document numbers: %w", err))
	}

	if report.MostRecentNumber != "" {
		if n, err := numerator.Parse(rec, report.MostRecentNumber); err == nil {
			report.ParsedMostRecent = &n
			if report.CounterExists {
				report.Drift = n - rec.Count
			}
		}
	}

	if report.Drift > 0 {
		logger.Warn(ctx, "counter behind documents",
			"code", apperror.CodeCounterDrift, "counter", key.String(), "drift", report.Drift)
	}
	return report, nil
}

// Repair recomputes the counter from the documents on file and overwrites it.
// fiscalYear selects the scope; empty repairs the unscoped counter.
//
// Every document number is parsed against the counter's own template, so numbers from
// another template or another fiscal year never inflate the count. Running Repair twice
// with no new documents yields the same record apart from timestamps.
func (s *Service) Repair(ctx context.Context, tenantID string, docType numerator.DocumentType, fiscalYear string) (res *RepairResult, err error) {
	ctx, span := tracer.Start(ctx, "numbering.repair", trace.WithAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.String("document_type", string(docType)),
		attribute.String("fiscal_year", fiscalYear),
	))
	defer span.End()

	key := numerator.NewKey(tenantID, docType, numerator.FiscalYearScope(fiscalYear))
	if err := key.Validate(); err != nil {
		return nil, apperror.NewValidation(err.Error())
	}

	defer func() {
		s.metrics.RepairFinished(err)
		if err != nil {
			span.RecordError(err)
			logger.Error(ctx, "counter repair failed", "counter", key.String(), "error", err)
		}
	}()

	if s.locker != nil {
		lockKey := "numbering:repair:" + key.String()
		token, ok, err := s.locker.TryLock(ctx, lockKey, s.cfg.LockTTL)
		if err != nil {
			return nil, apperror.NewRepairFailed(key.String(), fmt.Errorf("acquire lock: %w", err))
		}
		if !ok {
			return nil, apperror.NewRepairInProgress(key.String())
		}
		defer func() {
			if err := s.locker.Release(context.WithoutCancel(ctx), lockKey, token); err != nil {
				logger.Warn(ctx, "release repair lock", "counter", key.String(), "error", err)
			}
		}()
	}

	now := s.now()
	current, err := s.store.Get(ctx, key)
	var before *numerator.Record
	switch {
	case err == nil:
		before = current.Clone()
	case errors.Is(err, numerator.ErrCounterNotFound):
		settings, err := s.settings.Settings(ctx, tenantID)
		if err != nil {
			return nil, apperror.NewRepairFailed(key.String(), fmt.Errorf("load tenant settings: %w", err))
		}
		current = settings.TemplateFor(docType, key.Scope).NewRecord(0, now)
	default:
		return nil, apperror.NewRepairFailed(key.String(), err)
	}

	st, err := s.scanHighest(ctx, key, current)
	if err != nil {
		return nil, apperror.NewRepairFailed(key.String(), err)
	}

	repaired := current.Clone()
	repaired.Count = st.Highest
	repaired.Note = fmt.Sprintf("repaired: highest=%d scanned=%d", st.Highest, st.Total)
	repaired.UpdatedAt = now

	if err := s.store.Put(ctx, key, repaired); err != nil {
		return nil, apperror.NewRepairFailed(key.String(), err)
	}

	next, err := numerator.Render(repaired, repaired.Count+1)
	if err != nil {
		return nil, apperror.NewRepairFailed(key.String(), err)
	}

	logger.Info(ctx, "counter repaired",
		"counter", key.String(),
		"highest", st.Highest,
		"scanned", st.Total,
		"skipped", st.Skipped,
	)

	if s.audit != nil {
		entry := numerator.RepairEntry{
			ID:      id.NewString(),
			Key:     key,
			ActorID: appctx.GetUserID(ctx),
			Before:  before,
			After:   repaired,
			Scanned: st.Total,
			Matched: st.Matched,
			Skipped: st.Skipped,
			At:      now,
		}
		// The counter is already written; a lost audit row must not fail the repair.
		if err := s.audit.RecordRepair(context.WithoutCancel(ctx), entry); err != nil {
			logger.Warn(ctx, "record repair audit", "counter", key.String(), "error", err)
		}
	}

	return &RepairResult{
		Key:            key,
		HighestNumber:  st.Highest,
		NextNumber:     next,
		TotalDocuments: st.Total,
		Matched:        st.Matched,
		Skipped:        st.Skipped,
		Counter:        repaired,
	}, nil
}

// RepairHistory lists recent repairs of the tenant's counters for docType, newest first.
// Without an audit log the history is always empty.
func (s *Service) RepairHistory(ctx context.Context, tenantID string, docType numerator.DocumentType, limit int) ([]numerator.RepairEntry, error) {
	key := numerator.NewKey(tenantID, docType, nil)
	if err := key.Validate(); err != nil {
		return nil, apperror.NewValidation(err.Error())
	}
	if limit <= 0 || limit > maxHistoryLimit {
		limit = defaultHistoryLimit
	}
	if s.audit == nil {
		return []numerator.RepairEntry{}, nil
	}

	entries, err := s.audit.RepairHistory(ctx, tenantID, docType, limit)
	if err != nil {
		return nil, apperror.NewStoreUnavailable(key.String(), err)
	}
	return entries, nil
}
