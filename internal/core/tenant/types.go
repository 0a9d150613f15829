// Package tenant provides tenant identity, settings and request-scoped context.
// Counters and business documents share one database and are partitioned by tenant_id.
package tenant

import (
	"strings"
	"time"
)

// Status represents tenant lifecycle state.
type Status string

const (
	// StatusActive - tenant can accept requests
	StatusActive Status = "active"

	// StatusSuspended - tenant is temporarily disabled (e.g., payment issues)
	StatusSuspended Status = "suspended"
)

// Settings keys inside the JSONB settings document.
const (
	SettingFiscalYear = "fiscal_year"
	SettingNumbering  = "numbering"
)

// Tenant represents a tenant record.
type Tenant struct {
	ID          string         `db:"id"`
	Slug        string         `db:"slug"`
	DisplayName string         `db:"display_name"`
	Status      Status         `db:"status"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
	Settings    map[string]any `db:"settings"` // JSONB, owned by tenant settings management
}

// IsActive returns true if tenant can accept requests.
func (t *Tenant) IsActive() bool {
	return t.Status == StatusActive
}

// FiscalYear returns the configured fiscal year, or "" when unset.
func (t *Tenant) FiscalYear() string {
	v, _ := t.Settings[SettingFiscalYear].(string)
	return strings.TrimSpace(v)
}

// NumberingOverrides returns per-document-type template overrides:
//
//	{"numbering": {"purchase": {"prefix": "PO", "separator": "-", "format": "{prefix}{separator}{number:5}"}}}
func (t *Tenant) NumberingOverrides() map[string]map[string]string {
	raw, ok := t.Settings[SettingNumbering].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]map[string]string, len(raw))
	for docType, v := range raw {
		fields, ok := v.(map[string]any)
		if !ok {
			continue
		}
		m := make(map[string]string, len(fields))
		for k, fv := range fields {
			if s, ok := fv.(string); ok {
				m[k] = s
			}
		}
		out[docType] = m
	}
	return out
}
