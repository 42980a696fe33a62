package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contaflow/docextract/internal/model"
)

func TestBuildRecord_FullExtraction(t *testing.T) {
	raw := &rawExtraction{
		Vendor:        "ACME LDA",
		TaxID:         "123456789",
		InvoiceNumber: "FT 2026/42",
		IssueDate:     "2026-03-01",
		Total:         123.00,
		NetAmount:     100.00,
		VATAmount:     23.00,
		VATRate:       0.23,
		Confidence:    0.9,
		LineItems: []rawLine{
			{Description: "Café", Quantity: 1, UnitPrice: 2.5, TotalAmount: 2.5},
		},
	}
	rec := buildRecord(raw, "claude", "claude_text", "raw response")

	assert.Equal(t, "ACME LDA", rec.Field(model.FieldVendor))
	assert.Equal(t, "PT123456789", rec.Field(model.FieldTaxID))
	assert.Equal(t, "PT", rec.Field(model.FieldTaxIDCountry))
	assert.Empty(t, rec.Issues)
	require.Len(t, rec.LineItems, 1)

	// Every populated field carries provenance.
	for name := range rec.Fields {
		prov, ok := rec.Provenance[name]
		require.True(t, ok, "field %s has no provenance", name)
		assert.Equal(t, "claude", prov.Source)
		assert.Equal(t, "claude_text", prov.Method)
	}

	assert.Greater(t, rec.ConfidenceScore, 0.9)
}

func TestBuildRecord_PlaceholdersDiscarded(t *testing.T) {
	raw := &rawExtraction{
		Vendor:        "Unknown Vendor",
		VendorAddress: "Address not provided",
		Total:         10,
		Confidence:    0.8,
	}
	rec := buildRecord(raw, "openai", "openai_text", "")

	assert.Empty(t, rec.Field(model.FieldVendor))
	assert.Empty(t, rec.Field(model.FieldVendorAddress))
	_, hasProv := rec.Provenance[model.FieldVendor]
	assert.False(t, hasProv)
}

func TestBuildRecord_PercentRateNormalized(t *testing.T) {
	raw := &rawExtraction{VATRate: 23, Confidence: 0.8}
	rec := buildRecord(raw, "openai", "openai_text", "")

	rate, ok := rec.Amount(model.FieldVATRate)
	require.True(t, ok)
	assert.InDelta(t, 0.23, rate, 0.001)
}

func TestBuildRecord_ArithmeticMismatchBecomesIssue(t *testing.T) {
	raw := &rawExtraction{
		Total:      130,
		NetAmount:  100,
		VATAmount:  23,
		Confidence: 0.9,
	}
	rec := buildRecord(raw, "claude", "claude_text", "")

	require.Len(t, rec.Issues, 1)
	assert.Contains(t, rec.Issues[0], "inconsistent totals")
}

func TestBuildRecord_ConfidenceNotConstant(t *testing.T) {
	sparse := buildRecord(&rawExtraction{Vendor: "A", Confidence: 0.9}, "p", "m", "")
	full := buildRecord(&rawExtraction{
		Vendor: "A", TaxID: "PT123", InvoiceNumber: "1",
		IssueDate: "2026-01-01", Total: 5, Confidence: 0.9,
	}, "p", "m", "")

	assert.Less(t, sparse.ConfidenceScore, full.ConfidenceScore)
}

func TestBuildRecord_RawDebugTruncated(t *testing.T) {
	long := make([]byte, 2000)
	for i := range long {
		long[i] = 'x'
	}
	rec := buildRecord(&rawExtraction{Confidence: 0.5}, "p", "m", string(long))
	assert.Len(t, rec.RawDebug, 500)
}
