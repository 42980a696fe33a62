package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProv(source string) FieldProvenance {
	return FieldProvenance{
		Source:        source,
		RawConfidence: 0.9,
		Method:        "test",
		Timestamp:     time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestSetField_EmptyValueIgnored(t *testing.T) {
	r := NewRecord()
	r.SetField(FieldVendor, "", testProv("a"))

	assert.Empty(t, r.Fields)
	assert.Empty(t, r.Provenance)
}

func TestSetField_CarriesProvenance(t *testing.T) {
	r := NewRecord()
	r.SetField(FieldVendor, "ACME LDA", testProv("claude"))

	require.Contains(t, r.Provenance, FieldVendor)
	assert.Equal(t, "claude", r.Provenance[FieldVendor].Source)
	assert.Equal(t, "ACME LDA", r.Field(FieldVendor))
}

func TestProvenance_JSONRoundTrip(t *testing.T) {
	r := NewRecord()
	r.SetField(FieldVendor, "ACME LDA", testProv("claude"))

	data, err := json.Marshal(r)
	require.NoError(t, err)

	var back ExtractionRecord
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, testProv("claude"), back.Provenance[FieldVendor])
	assert.Equal(t, "ACME LDA", back.Field(FieldVendor))
}

func TestCheckTotals_ConsistentWithinTolerance(t *testing.T) {
	r := NewRecord()
	r.SetAmount(FieldTotal, 123.00, testProv("a"))
	r.SetAmount(FieldNetAmount, 100.00, testProv("a"))
	r.SetAmount(FieldVATAmount, 23.01, testProv("a"))

	r.CheckTotals()
	assert.Empty(t, r.Issues)
}

func TestCheckTotals_InconsistentRecordsIssue(t *testing.T) {
	r := NewRecord()
	r.SetAmount(FieldTotal, 130.00, testProv("a"))
	r.SetAmount(FieldNetAmount, 100.00, testProv("a"))
	r.SetAmount(FieldVATAmount, 23.00, testProv("a"))

	r.CheckTotals()
	require.Len(t, r.Issues, 1)
	assert.Contains(t, r.Issues[0], "inconsistent totals")

	// Value is reported, never silently corrected.
	total, ok := r.Amount(FieldTotal)
	require.True(t, ok)
	assert.InDelta(t, 130.00, total, 0.001)
}

func TestCheckTotals_MissingFieldIsNotAnIssue(t *testing.T) {
	r := NewRecord()
	r.SetAmount(FieldTotal, 123.00, testProv("a"))
	r.SetAmount(FieldNetAmount, 100.00, testProv("a"))

	r.CheckTotals()
	assert.Empty(t, r.Issues)
}

func TestAddIssue_Deduplicates(t *testing.T) {
	r := NewRecord()
	r.AddIssue("low table confidence")
	r.AddIssue("low table confidence")
	r.AddIssue("missing vendor")

	assert.Len(t, r.Issues, 2)
}

func TestClone_IsDeep(t *testing.T) {
	r := NewRecord()
	r.SetField(FieldVendor, "ACME LDA", testProv("a"))
	r.LineItems = append(r.LineItems, LineItem{Description: "Café", TotalAmount: 2.5})

	c := r.Clone()
	c.Fields[FieldVendor] = "OTHER"
	c.LineItems[0].Description = "Beer"

	assert.Equal(t, "ACME LDA", r.Field(FieldVendor))
	assert.Equal(t, "Café", r.LineItems[0].Description)
}
