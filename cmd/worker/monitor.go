package main

import (
	"context"
	"time"

	"optiledger/internal/core/numerator"
	"optiledger/internal/core/tenant"
	"optiledger/internal/domain/numbering"
	"optiledger/pkg/logger"
)

type tenantLister interface {
	ListActive(ctx context.Context) ([]*tenant.Tenant, error)
}

type diagnoser interface {
	Diagnose(ctx context.Context, tenantID string, docType numerator.DocumentType) (*numbering.Report, error)
}

type driftObserver interface {
	ObserveDrift(report *numbering.Report)
}

// Sweep summarizes one pass over all active tenants.
type Sweep struct {
	Tenants  int
	Checked  int
	Drifting int
	Failed   int
}

// DriftMonitor periodically diagnoses every counter of every active tenant.
// It only reports; repair stays an admin action.
type DriftMonitor struct {
	tenants  tenantLister
	service  diagnoser
	observer driftObserver
	log      *logger.Logger
}

func NewDriftMonitor(tenants tenantLister, service diagnoser, observer driftObserver, log *logger.Logger) *DriftMonitor {
	return &DriftMonitor{
		tenants:  tenants,
		service:  service,
		observer: observer,
		log:      log.WithComponent("drift-monitor"),
	}
}

// Run sweeps immediately and then on every tick until ctx is done.
func (m *DriftMonitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := m.Sweep(ctx); err != nil {
			m.log.Errorw("drift sweep failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sweep diagnoses each document type of each active tenant once.
// A failing counter is logged and counted; the sweep goes on.
func (m *DriftMonitor) Sweep(ctx context.Context) (Sweep, error) {
	var sw Sweep

	tenants, err := m.tenants.ListActive(ctx)
	if err != nil {
		return sw, err
	}
	sw.Tenants = len(tenants)

	for _, t := range tenants {
		tctx := tenant.WithTenant(logger.WithTenantID(ctx, t.ID), t)
		for _, docType := range numerator.DocumentTypes() {
			if ctx.Err() != nil {
				return sw, ctx.Err()
			}

			report, err := m.service.Diagnose(tctx, t.ID, docType)
			if err != nil {
				sw.Failed++
				m.log.Warnw("diagnose failed", "tenant_id", t.ID, "document_type", docType, "error", err)
				continue
			}

			sw.Checked++
			if m.observer != nil {
				m.observer.ObserveDrift(report)
			}
			if report.Drift > 0 {
				sw.Drifting++
			}
		}
	}

	m.log.Infow("drift sweep finished",
		"tenants", sw.Tenants,
		"checked", sw.Checked,
		"drifting", sw.Drifting,
		"failed", sw.Failed,
	)
	return sw, nil
}
