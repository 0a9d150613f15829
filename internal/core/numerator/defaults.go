package numerator

// Default formats.
const (
	FormatPadded4 = "{prefix}{separator}{number}"
	FormatPadded2 = "{prefix}{separator}{number:2}"
)

// Bootstrap returns the type-specific metadata used when a counter record is created
// lazily, or when numbering falls back to a document scan (empty scope).
//
//	purchase, any scope:   P-0001
//	sale, fiscal year:     2024-2025/01
//	sale, unscoped:        INV-0001
func Bootstrap(docType DocumentType, scope Scope) NumberTemplate {
	switch docType {
	case DocumentSale:
		if scope.IsEmpty() {
			return NumberTemplate{Prefix: "INV", Separator: "-", Format: FormatPadded4}
		}
		return NumberTemplate{Prefix: scope[0], Separator: "/", Format: FormatPadded2}
	default:
		return NumberTemplate{Prefix: "P", Separator: "-", Format: FormatPadded4}
	}
}

// Settings is the numbering-relevant slice of tenant settings.
type Settings struct {
	// FiscalYear is the active fiscal year, e.g. "2024-2025". Empty when not configured.
	FiscalYear string

	// Overrides replace bootstrap metadata per document type. Empty fields keep the default.
	Overrides map[DocumentType]NumberTemplate
}

// Scope returns the counter scope derived from settings.
func (s Settings) Scope() Scope {
	return FiscalYearScope(s.FiscalYear)
}

// TemplateFor resolves bootstrap metadata with tenant overrides applied.
func (s Settings) TemplateFor(docType DocumentType, scope Scope) NumberTemplate {
	t := Bootstrap(docType, scope)
	o, ok := s.Overrides[docType]
	if !ok {
		return t
	}
	if o.Prefix != "" {
		t.Prefix = o.Prefix
	}
	if o.Separator != "" {
		t.Separator = o.Separator
	}
	if o.Format != "" {
		t.Format = o.Format
	}
	return t
}
