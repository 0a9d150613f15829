package numerator

import (
	"context"
)

// MockDocumentSource is a test implementation of DocumentSource.
// Numbers are returned by ScanNumbers in slice order.
type MockDocumentSource struct {
	Numbers  map[DocumentType][]string
	CountErr error
	ScanErr  error
}

// CountDocuments implements DocumentSource.
func (m *MockDocumentSource) CountDocuments(ctx context.Context, tenantID string, docType DocumentType) (int64, error) {
	if m.CountErr != nil {
		return 0, m.CountErr
	}
	return int64(len(m.Numbers[docType])), nil
}

// ScanNumbers implements DocumentSource.
func (m *MockDocumentSource) ScanNumbers(ctx context.Context, tenantID string, docType DocumentType, fn func(DocumentNumber) error) error {
	if m.ScanErr != nil {
		return m.ScanErr
	}
	for _, n := range m.Numbers[docType] {
		if err := fn(DocumentNumber{Number: n}); err != nil {
			return err
		}
	}
	return nil
}

// Add records a newly persisted document number.
func (m *MockDocumentSource) Add(docType DocumentType, number string) {
	if m.Numbers == nil {
		m.Numbers = make(map[DocumentType][]string)
	}
	m.Numbers[docType] = append(m.Numbers[docType], number)
}

// StaticSettings returns the same Settings for every tenant.
type StaticSettings struct {
	Value Settings
	Err   error
}

// Settings implements SettingsProvider.
func (s StaticSettings) Settings(ctx context.Context, tenantID string) (Settings, error) {
	return s.Value, s.Err
}

// Ensure compile-time interface compliance.
var (
	_ DocumentSource   = (*MockDocumentSource)(nil)
	_ SettingsProvider = StaticSettings{}
)
