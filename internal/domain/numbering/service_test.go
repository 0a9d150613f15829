package numbering

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optiledger/internal/core/apperror"
	"optiledger/internal/core/numerator"
	numstore "optiledger/internal/infrastructure/numerator"
)

const testTenant = "7b0c7a58-2f5e-4bb1-9d87-5a2b3f0c9e11"

var fixedNow = time.Date(2024, 8, 1, 10, 0, 0, 0, time.UTC)

// passthroughTx runs fn without a real transaction and counts invocations.
type passthroughTx struct {
	mu    sync.Mutex
	calls int
}

func (p *passthroughTx) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	return fn(ctx)
}

// rollbackTx serializes transactions over a MemoryStore and restores the
// store's previous contents when fn fails, like a database rollback would.
type rollbackTx struct {
	mu    sync.Mutex
	store *numstore.MemoryStore
}

func (r *rollbackTx) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := r.store.Snapshot()
	if err := fn(ctx); err != nil {
		r.store.Restore(snap)
		return err
	}
	return nil
}

// recordingMetrics captures events for assertions.
type recordingMetrics struct {
	mu        sync.Mutex
	previews  []Source
	outcomes  []Outcome
	conflicts int
	repairs   []error
}

func (m *recordingMetrics) PreviewServed(source Source, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.previews = append(m.previews, source)
}

func (m *recordingMetrics) CommitFinished(outcome Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
}

func (m *recordingMetrics) ClaimConflict() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conflicts++
}

func (m *recordingMetrics) RepairFinished(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.repairs = append(m.repairs, err)
}

type fixture struct {
	svc     *Service
	store   *numstore.MemoryStore
	docs    *numerator.MockDocumentSource
	tx      *passthroughTx
	metrics *recordingMetrics
}

func newFixture(t *testing.T, fiscalYear string) *fixture {
	t.Helper()

	f := &fixture{
		store:   numstore.NewMemoryStore(),
		docs:    &numerator.MockDocumentSource{},
		tx:      &passthroughTx{},
		metrics: &recordingMetrics{},
	}
	f.svc = NewService(Config{MaxRetries: 50, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}, Dependencies{
		Store:     f.store,
		Documents: f.docs,
		Settings:  numerator.StaticSettings{Value: numerator.Settings{FiscalYear: fiscalYear}},
		TxManager: f.tx,
		Metrics:   f.metrics,
	}).WithClock(func() time.Time { return fixedNow })
	return f
}

func (f *fixture) put(t *testing.T, docType numerator.DocumentType, fiscalYear string, rec *numerator.Record) {
	t.Helper()
	key := numerator.NewKey(testTenant, docType, numerator.FiscalYearScope(fiscalYear))
	require.NoError(t, f.store.Put(context.Background(), key, rec))
}

func (f *fixture) get(t *testing.T, docType numerator.DocumentType, fiscalYear string) *numerator.Record {
	t.Helper()
	key := numerator.NewKey(testTenant, docType, numerator.FiscalYearScope(fiscalYear))
	rec, err := f.store.Get(context.Background(), key)
	require.NoError(t, err)
	return rec
}

func TestPreview_BootstrapFromDocumentCount(t *testing.T) {
	f := newFixture(t, "2024-2025")
	for _, n := range []string{"P-0001", "P-0002", "P-0003"} {
		f.docs.Add(numerator.DocumentPurchase, n)
	}

	p, err := f.svc.Preview(context.Background(), testTenant, numerator.DocumentPurchase)
	require.NoError(t, err)

	assert.Equal(t, "P-0004", p.Number)
	assert.Equal(t, int64(4), p.Candidate)
	assert.Equal(t, SourceScan, p.Source)
	assert.Empty(t, p.Degraded)
	assert.Equal(t, 0, f.store.Len(), "preview must not create counters")
}

func TestPreviewCommit_ScopedExistingCounter(t *testing.T) {
	f := newFixture(t, "2024-2025")
	f.put(t, numerator.DocumentSale, "2024-2025", &numerator.Record{
		Count: 7, Prefix: "2024-2025", Separator: "/", Format: numerator.FormatPadded2,
	})

	p, err := f.svc.Preview(context.Background(), testTenant, numerator.DocumentSale)
	require.NoError(t, err)
	assert.Equal(t, "2024-2025/08", p.Number)
	assert.Equal(t, SourceCounter, p.Source)
	assert.Equal(t, "sale_2024-2025", p.Key.Name())

	res := f.svc.Commit(context.Background(), testTenant, numerator.DocumentSale, p.Number)
	require.Nil(t, res.Warning)
	assert.Equal(t, OutcomeCommitted, res.Outcome)
	assert.Equal(t, int64(8), res.Count)
	assert.Equal(t, int64(8), f.get(t, numerator.DocumentSale, "2024-2025").Count)
}

func TestPreview_IsReadOnly(t *testing.T) {
	f := newFixture(t, "2024-2025")
	f.put(t, numerator.DocumentPurchase, "2024-2025", &numerator.Record{
		Count: 3, Prefix: "P", Separator: "-", Format: numerator.FormatPadded4,
	})

	for range 5 {
		p, err := f.svc.Preview(context.Background(), testTenant, numerator.DocumentPurchase)
		require.NoError(t, err)
		assert.Equal(t, "P-0004", p.Number)
	}
	assert.Equal(t, int64(3), f.get(t, numerator.DocumentPurchase, "2024-2025").Count)
}

func TestPreview_StoreUnavailableFallsBackToScan(t *testing.T) {
	f := newFixture(t, "2024-2025")
	f.docs.Add(numerator.DocumentSale, "INV-0001")
	f.store.FailWith = errors.New("connection refused")

	p, err := f.svc.Preview(context.Background(), testTenant, numerator.DocumentSale)
	require.NoError(t, err)

	assert.Equal(t, "INV-0002", p.Number)
	assert.Equal(t, SourceScan, p.Source)
	assert.Equal(t, apperror.CodeStoreUnavailable, p.Degraded)
}

func TestPreview_MissingFiscalYearFallsBackToScan(t *testing.T) {
	f := newFixture(t, "")
	f.docs.Add(numerator.DocumentSale, "INV-0001")
	f.docs.Add(numerator.DocumentSale, "INV-0002")

	p, err := f.svc.Preview(context.Background(), testTenant, numerator.DocumentSale)
	require.NoError(t, err)

	assert.Equal(t, "INV-0003", p.Number)
	assert.Equal(t, apperror.CodeMissingFiscalYear, p.Degraded)
}

func TestPreview_BothSourcesDown(t *testing.T) {
	f := newFixture(t, "2024-2025")
	f.store.FailWith = errors.New("store down")
	f.docs.CountErr = errors.New("documents down")

	_, err := f.svc.Preview(context.Background(), testTenant, numerator.DocumentSale)
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeStoreUnavailable))
}

func TestPreview_RejectsBadKey(t *testing.T) {
	f := newFixture(t, "2024-2025")

	_, err := f.svc.Preview(context.Background(), "", numerator.DocumentSale)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

func TestCommit_BootstrapSeedsFromIssuedNumber(t *testing.T) {
	f := newFixture(t, "2024-2025")
	for _, n := range []string{"P-0001", "P-0002", "P-0003"} {
		f.docs.Add(numerator.DocumentPurchase, n)
	}

	p, err := f.svc.Preview(context.Background(), testTenant, numerator.DocumentPurchase)
	require.NoError(t, err)
	f.docs.Add(numerator.DocumentPurchase, p.Number)

	res := f.svc.Commit(context.Background(), testTenant, numerator.DocumentPurchase, p.Number)
	require.Nil(t, res.Warning)
	assert.Equal(t, int64(4), res.Count)

	rec := f.get(t, numerator.DocumentPurchase, "2024-2025")
	assert.Equal(t, "P", rec.Prefix)
	assert.Equal(t, "-", rec.Separator)
	assert.Equal(t, fixedNow, rec.CreatedAt)

	next, err := f.svc.Preview(context.Background(), testTenant, numerator.DocumentPurchase)
	require.NoError(t, err)
	assert.Equal(t, "P-0005", next.Number)
	assert.Equal(t, SourceCounter, next.Source)
}

func TestCommit_BootstrapWithForeignNumberStartsAtOne(t *testing.T) {
	f := newFixture(t, "2024-2025")

	res := f.svc.Commit(context.Background(), testTenant, numerator.DocumentSale, "INV-0004")
	require.Nil(t, res.Warning)
	assert.Equal(t, int64(1), res.Count)

	rec := f.get(t, numerator.DocumentSale, "2024-2025")
	assert.Equal(t, "2024-2025", rec.Prefix)
	assert.Equal(t, "/", rec.Separator)
}

func TestCommit_FailureIsNonBlockingWarning(t *testing.T) {
	f := newFixture(t, "2024-2025")
	f.store.FailWith = errors.New("store down")

	res := f.svc.Commit(context.Background(), testTenant, numerator.DocumentPurchase, "P-0001")

	assert.Equal(t, OutcomeCommitFailed, res.Outcome)
	require.NotNil(t, res.Warning)
	assert.Equal(t, apperror.CodeCounterDrift, res.Warning.Code)
	assert.Equal(t, apperror.CodeStoreUnavailable, res.Warning.Details["cause"])
	assert.Equal(t, []Outcome{OutcomeCommitFailed}, f.metrics.outcomes)
}

func TestCommit_SkippedWithoutFiscalYear(t *testing.T) {
	f := newFixture(t, "")

	res := f.svc.Commit(context.Background(), testTenant, numerator.DocumentSale, "INV-0001")

	assert.Equal(t, OutcomeSkipped, res.Outcome)
	require.NotNil(t, res.Warning)
	assert.Equal(t, apperror.CodeMissingFiscalYear, res.Warning.Code)
	assert.Equal(t, 0, f.store.Len())
}

func TestCommit_Monotonic(t *testing.T) {
	f := newFixture(t, "2024-2025")
	f.put(t, numerator.DocumentPurchase, "2024-2025", &numerator.Record{
		Count: 9998, Prefix: "P", Separator: "-", Format: numerator.FormatPadded4,
	})

	var last int64 = 9998
	for range 3 {
		res := f.svc.Commit(context.Background(), testTenant, numerator.DocumentPurchase, "")
		require.Nil(t, res.Warning)
		assert.Equal(t, last+1, res.Count)
		last = res.Count
	}

	p, err := f.svc.Preview(context.Background(), testTenant, numerator.DocumentPurchase)
	require.NoError(t, err)
	assert.Equal(t, "P-10002", p.Number)
}

func TestCommit_ConcurrentCommitsNeverLoseUpdates(t *testing.T) {
	f := newFixture(t, "2024-2025")
	f.put(t, numerator.DocumentSale, "2024-2025", &numerator.Record{
		Count: 0, Prefix: "2024-2025", Separator: "/", Format: numerator.FormatPadded2,
	})

	const workers = 20
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := f.svc.Commit(context.Background(), testTenant, numerator.DocumentSale, "")
			assert.Nil(t, res.Warning)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(workers), f.get(t, numerator.DocumentSale, "2024-2025").Count)
}

// Preview followed by Commit is not atomic: two flows that preview before either
// commits see the same number. Issue is the race-free path.
func TestPreviewCommit_ConcurrentFlowsCanDuplicate(t *testing.T) {
	f := newFixture(t, "2024-2025")
	f.put(t, numerator.DocumentPurchase, "2024-2025", &numerator.Record{
		Count: 4, Prefix: "P", Separator: "-", Format: numerator.FormatPadded4,
	})

	start := make(chan struct{})
	previewed := make(chan string, 2)
	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			p, err := f.svc.Preview(context.Background(), testTenant, numerator.DocumentPurchase)
			assert.NoError(t, err)
			previewed <- p.Number
		}()
	}
	close(start)
	wg.Wait()
	close(previewed)

	var numbers []string
	for n := range previewed {
		numbers = append(numbers, n)
	}
	require.Len(t, numbers, 2)
	assert.Equal(t, numbers[0], numbers[1])

	for _, n := range numbers {
		f.svc.Commit(context.Background(), testTenant, numerator.DocumentPurchase, n)
	}
	assert.Equal(t, int64(6), f.get(t, numerator.DocumentPurchase, "2024-2025").Count)
}

func TestIssue_ConcurrentIssuesGetDistinctNumbers(t *testing.T) {
	f := newFixture(t, "2024-2025")
	f.put(t, numerator.DocumentPurchase, "2024-2025", &numerator.Record{
		Count: 4, Prefix: "P", Separator: "-", Format: numerator.FormatPadded4,
	})

	const workers = 16
	var (
		mu     sync.Mutex
		issued = make(map[string]int)
		wg     sync.WaitGroup
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Issue(context.Background(), testTenant, numerator.DocumentPurchase,
				func(ctx context.Context, number string) error {
					mu.Lock()
					defer mu.Unlock()
					issued[number]++
					return nil
				})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, issued, workers)
	for number, n := range issued {
		assert.Equal(t, 1, n, "number %s issued more than once", number)
	}
	assert.Equal(t, int64(4+workers), f.get(t, numerator.DocumentPurchase, "2024-2025").Count)
	assert.Equal(t, workers, f.tx.calls)
}

func TestIssue_BootstrapContinuesAfterExistingDocuments(t *testing.T) {
	f := newFixture(t, "2025-2026")
	for _, n := range []string{"P-0010", "P-0012", "misc-7"} {
		f.docs.Add(numerator.DocumentPurchase, n)
	}

	number, err := f.svc.Issue(context.Background(), testTenant, numerator.DocumentPurchase,
		func(context.Context, string) error { return nil })
	require.NoError(t, err)

	assert.Equal(t, "P-0013", number)
	assert.Equal(t, int64(13), f.get(t, numerator.DocumentPurchase, "2025-2026").Count)
}

func TestReserve_ClaimsWithoutPersisting(t *testing.T) {
	f := newFixture(t, "2024-2025")
	f.put(t, numerator.DocumentSale, "2024-2025", &numerator.Record{
		Count: 6, Prefix: "2024-2025", Separator: "/", Format: numerator.FormatPadded2,
	})

	res, err := f.svc.Reserve(context.Background(), testTenant, numerator.DocumentSale)
	require.NoError(t, err)

	assert.Equal(t, "2024-2025/07", res.Number)
	assert.Equal(t, int64(7), res.Count)
	assert.Equal(t, "sale_2024-2025", res.Key.Name())
	assert.Equal(t, int64(7), f.get(t, numerator.DocumentSale, "2024-2025").Count)
	assert.Equal(t, 1, f.tx.calls)

	p, err := f.svc.Preview(context.Background(), testTenant, numerator.DocumentSale)
	require.NoError(t, err)
	assert.Equal(t, "2024-2025/08", p.Number)
}

func TestIssue_PersistErrorPropagates(t *testing.T) {
	f := newFixture(t, "2024-2025")
	persistErr := errors.New("unique violation")

	_, err := f.svc.Issue(context.Background(), testTenant, numerator.DocumentSale,
		func(context.Context, string) error { return persistErr })

	assert.ErrorIs(t, err, persistErr)
	assert.Empty(t, f.metrics.outcomes)
}

func TestIssue_PersistFailureRollsBackClaim(t *testing.T) {
	persistErr := errors.New("unique violation")
	failing := func(context.Context, string) error { return persistErr }

	t.Run("lazily created counter disappears", func(t *testing.T) {
		f := newFixture(t, "2024-2025")
		f.svc.txManager = &rollbackTx{store: f.store}

		_, err := f.svc.Issue(context.Background(), testTenant, numerator.DocumentSale, failing)
		require.ErrorIs(t, err, persistErr)

		_, err = f.store.Get(context.Background(),
			numerator.NewKey(testTenant, numerator.DocumentSale, numerator.FiscalYearScope("2024-2025")))
		assert.ErrorIs(t, err, numerator.ErrCounterNotFound)
	})

	t.Run("existing counter unchanged", func(t *testing.T) {
		f := newFixture(t, "2024-2025")
		f.svc.txManager = &rollbackTx{store: f.store}
		f.put(t, numerator.DocumentSale, "2024-2025", &numerator.Record{
			Count: 7, Prefix: "2024-2025", Separator: "/", Format: numerator.FormatPadded2,
		})

		_, err := f.svc.Issue(context.Background(), testTenant, numerator.DocumentSale, failing)
		require.ErrorIs(t, err, persistErr)
		assert.Equal(t, int64(7), f.get(t, numerator.DocumentSale, "2024-2025").Count)

		number, err := f.svc.Issue(context.Background(), testTenant, numerator.DocumentSale,
			func(context.Context, string) error { return nil })
		require.NoError(t, err)
		assert.Equal(t, "2024-2025/08", number, "the rolled back number is issued again")
	})
}

func TestIssue_RequiresFiscalYear(t *testing.T) {
	f := newFixture(t, "")

	_, err := f.svc.Issue(context.Background(), testTenant, numerator.DocumentSale,
		func(context.Context, string) error { return nil })

	assert.True(t, apperror.HasCode(err, apperror.CodeMissingFiscalYear))
	assert.Zero(t, f.tx.calls)
}

func TestIssue_NoTxManager(t *testing.T) {
	f := newFixture(t, "2024-2025")
	f.svc.txManager = nil

	_, err := f.svc.Issue(context.Background(), testTenant, numerator.DocumentSale,
		func(context.Context, string) error { return nil })
	assert.Error(t, err)
}
