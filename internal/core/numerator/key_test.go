package numerator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey_Name(t *testing.T) {
	assert.Equal(t, "purchase_2024-2025", NewKey("t1", DocumentPurchase, FiscalYearScope("2024-2025")).Name())
	assert.Equal(t, "sale", NewKey("t1", DocumentSale, FiscalYearScope("  ")).Name())
	assert.Equal(t, "sale_2024-2025_north", NewKey("t1", DocumentSale, Scope{"2024-2025", "north"}).Name())
	assert.Equal(t, "t1:sale", NewKey("t1", DocumentSale, nil).String())
}

func TestKey_Validate(t *testing.T) {
	assert.NoError(t, NewKey("t1", DocumentSale, nil).Validate())
	assert.Error(t, NewKey("", DocumentSale, nil).Validate())
	assert.Error(t, NewKey("t1", "refund", nil).Validate())
	assert.Error(t, NewKey("t1", DocumentSale, Scope{"2024", ""}).Validate())
}

func TestParseDocumentType(t *testing.T) {
	dt, err := ParseDocumentType(" Purchase ")
	require.NoError(t, err)
	assert.Equal(t, DocumentPurchase, dt)

	_, err = ParseDocumentType("quote")
	assert.Error(t, err)
}

func TestSettings_TemplateFor(t *testing.T) {
	s := Settings{FiscalYear: "2024-2025"}
	assert.Equal(t, NumberTemplate{Prefix: "2024-2025", Separator: "/", Format: FormatPadded2},
		s.TemplateFor(DocumentSale, s.Scope()))
	assert.Equal(t, NumberTemplate{Prefix: "P", Separator: "-", Format: FormatPadded4},
		s.TemplateFor(DocumentPurchase, s.Scope()))
	assert.Equal(t, "INV", s.TemplateFor(DocumentSale, nil).Prefix)

	s.Overrides = map[DocumentType]NumberTemplate{DocumentPurchase: {Prefix: "PO"}}
	got := s.TemplateFor(DocumentPurchase, s.Scope())
	assert.Equal(t, "PO", got.Prefix)
	assert.Equal(t, "-", got.Separator)
	assert.Equal(t, FormatPadded4, got.Format)
}
