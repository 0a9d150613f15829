// Package numerator provides domain contracts for tenant-scoped document numbering.
// Implementations of Store and DocumentSource live in the infrastructure layer.
package numerator

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// DocumentType identifies the kind of business document that receives a number.
type DocumentType string

const (
	// DocumentPurchase is a purchase order (P-0001).
	DocumentPurchase DocumentType = "purchase"

	// DocumentSale is a sales invoice, numbered per fiscal year (2024-2025/08).
	DocumentSale DocumentType = "sale"
)

// DocumentTypes returns all supported document types.
func DocumentTypes() []DocumentType {
	return []DocumentType{DocumentPurchase, DocumentSale}
}

// ParseDocumentType validates a raw document type string.
func ParseDocumentType(s string) (DocumentType, error) {
	t := DocumentType(strings.ToLower(strings.TrimSpace(s)))
	if !lo.Contains(DocumentTypes(), t) {
		return "", fmt.Errorf("unknown document type %q", s)
	}
	return t, nil
}

// Scope is an ordered tuple of scoping dimensions (fiscal year, branch, ...).
// An empty scope means the counter is not segmented.
type Scope []string

// FiscalYearScope returns the scope for a fiscal year, or an empty scope when unset.
func FiscalYearScope(fiscalYear string) Scope {
	fiscalYear = strings.TrimSpace(fiscalYear)
	if fiscalYear == "" {
		return nil
	}
	return Scope{fiscalYear}
}

// IsEmpty reports whether the scope has no dimensions.
func (s Scope) IsEmpty() bool {
	return len(s) == 0
}

// Key addresses one counter record.
type Key struct {
	TenantID     string
	DocumentType DocumentType
	Scope        Scope
}

// NewKey builds a counter key.
func NewKey(tenantID string, docType DocumentType, scope Scope) Key {
	return Key{TenantID: tenantID, DocumentType: docType, Scope: scope}
}

// Name is the tenant-local counter name: <documentType>_<scope...>.
// Example: purchase_2024-2025, or purchase when unscoped.
func (k Key) Name() string {
	if k.Scope.IsEmpty() {
		return string(k.DocumentType)
	}
	return string(k.DocumentType) + "_" + strings.Join(k.Scope, "_")
}

// String includes the tenant, for logs and lock keys.
func (k Key) String() string {
	return k.TenantID + ":" + k.Name()
}

// Validate checks the key is addressable.
func (k Key) Validate() error {
	if k.TenantID == "" {
		return fmt.Errorf("tenant id is required")
	}
	if !lo.Contains(DocumentTypes(), k.DocumentType) {
		return fmt.Errorf("unknown document type %q", k.DocumentType)
	}
	for i, dim := range k.Scope {
		if strings.TrimSpace(dim) == "" {
			return fmt.Errorf("scope dimension %d is empty", i)
		}
	}
	return nil
}
