package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExtractionJSON_PlainObject(t *testing.T) {
	raw, err := parseExtractionJSON(`{"vendor":"ACME LDA","total":123.45,"confidence":0.9}`)
	require.NoError(t, err)
	assert.Equal(t, "ACME LDA", raw.Vendor)
	assert.InDelta(t, 123.45, float64(raw.Total), 0.001)
}

func TestParseExtractionJSON_SurroundingProseAndFences(t *testing.T) {
	text := "Here is the extraction:\n```json\n{\"vendor\":\"Café {Central}\",\"total\":\"1.234,56\"}\n```\nDone."
	raw, err := parseExtractionJSON(text)
	require.NoError(t, err)
	assert.Equal(t, "Café {Central}", raw.Vendor)
	assert.InDelta(t, 1234.56, float64(raw.Total), 0.001)
}

func TestParseExtractionJSON_StringNumbers(t *testing.T) {
	raw, err := parseExtractionJSON(`{"total":"€ 2,50","vat_rate":"23","quantity":1}`)
	require.NoError(t, err)
	assert.InDelta(t, 2.50, float64(raw.Total), 0.001)
	assert.InDelta(t, 23, float64(raw.VATRate), 0.001)
}

func TestParseExtractionJSON_NoObject(t *testing.T) {
	_, err := parseExtractionJSON("I could not read the document, sorry.")
	assert.Error(t, err)
}

func TestFirstJSONObject_NestedBraces(t *testing.T) {
	in := `noise {"a":{"b":"}"},"c":1} trailing`
	assert.Equal(t, `{"a":{"b":"}"},"c":1}`, FirstJSONObject(in))
}
