package main

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optiledger/internal/core/numerator"
	"optiledger/internal/core/tenant"
	"optiledger/internal/domain/numbering"
	"optiledger/pkg/logger"
)

type staticTenants struct {
	tenants []*tenant.Tenant
	err     error
}

func (s staticTenants) ListActive(ctx context.Context) ([]*tenant.Tenant, error) {
	return s.tenants, s.err
}

type scriptedDiagnoser struct {
	drift map[string]int64 // tenant:type -> drift
	fail  map[string]bool
}

func (d scriptedDiagnoser) Diagnose(ctx context.Context, tenantID string, docType numerator.DocumentType) (*numbering.Report, error) {
	id := tenantID + ":" + string(docType)
	if d.fail[id] {
		return nil, errors.New("store down")
	}
	if tenant.GetTenantID(ctx) != tenantID {
		return nil, errors.New("tenant not in context")
	}
	return &numbering.Report{Key: numerator.NewKey(tenantID, docType, nil), Drift: d.drift[id]}, nil
}

type collectingObserver struct {
	mu      sync.Mutex
	reports []*numbering.Report
}

func (o *collectingObserver) ObserveDrift(r *numbering.Report) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.reports = append(o.reports, r)
}

func TestDriftMonitor_Sweep(t *testing.T) {
	tenants := staticTenants{tenants: []*tenant.Tenant{
		{ID: "a", Status: tenant.StatusActive},
		{ID: "b", Status: tenant.StatusActive},
	}}
	diag := scriptedDiagnoser{
		drift: map[string]int64{"a:purchase": 2},
		fail:  map[string]bool{"b:sale": true},
	}
	obs := &collectingObserver{}

	sw, err := NewDriftMonitor(tenants, diag, obs, logger.Nop()).Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Sweep{Tenants: 2, Checked: 3, Drifting: 1, Failed: 1}, sw)
	assert.Len(t, obs.reports, 3)
}

func TestDriftMonitor_ListError(t *testing.T) {
	m := NewDriftMonitor(staticTenants{err: errors.New("db down")}, scriptedDiagnoser{}, nil, logger.Nop())

	_, err := m.Sweep(context.Background())
	assert.Error(t, err)
}

func TestDriftMonitor_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := NewDriftMonitor(staticTenants{tenants: []*tenant.Tenant{{ID: "a"}}}, scriptedDiagnoser{}, nil, logger.Nop())
	sw, err := m.Sweep(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, sw.Checked)
}
