package tenant

import (
	"context"

	"optiledger/internal/core/numerator"
)

// SettingsProvider exposes tenant settings to the numbering service.
// The tenant already resolved into the request context is used when it matches,
// otherwise the registry is consulted.
type SettingsProvider struct {
	registry Registry
}

// NewSettingsProvider creates a settings provider backed by registry.
func NewSettingsProvider(registry Registry) *SettingsProvider {
	return &SettingsProvider{registry: registry}
}

// Settings implements numerator.SettingsProvider.
func (p *SettingsProvider) Settings(ctx context.Context, tenantID string) (numerator.Settings, error) {
	t := GetTenant(ctx)
	if t == nil || t.ID != tenantID {
		var err error
		if t, err = p.registry.GetByID(ctx, tenantID); err != nil {
			return numerator.Settings{}, err
		}
	}
	return ToNumberingSettings(t), nil
}

// ToNumberingSettings maps tenant settings onto numbering settings.
// Unknown document types in overrides are ignored.
func ToNumberingSettings(t *Tenant) numerator.Settings {
	s := numerator.Settings{FiscalYear: t.FiscalYear()}
	for rawType, fields := range t.NumberingOverrides() {
		docType, err := numerator.ParseDocumentType(rawType)
		if err != nil {
			continue
		}
		if s.Overrides == nil {
			s.Overrides = make(map[numerator.DocumentType]numerator.NumberTemplate)
		}
		s.Overrides[docType] = numerator.NumberTemplate{
			Prefix:    fields["prefix"],
			Separator: fields["separator"],
			Format:    fields["format"],
		}
	}
	return s
}

var _ numerator.SettingsProvider = (*SettingsProvider)(nil)
