package model

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// Canonical field names carried by an ExtractionRecord. Providers and the
// consensus engine agree on these keys; anything else a backend returns is
// discarded during sanitation.
const (
	FieldVendor        = "vendor"
	FieldTaxID         = "tax_id"
	FieldTaxIDCountry  = "tax_id_country"
	FieldVendorAddress = "vendor_address"
	FieldVendorPhone   = "vendor_phone"
	FieldInvoiceNumber = "invoice_number"
	FieldIssueDate     = "issue_date"
	FieldTotal         = "total"
	FieldNetAmount     = "net_amount"
	FieldVATAmount     = "vat_amount"
	FieldVATRate       = "vat_rate"
	FieldCategory      = "category"
	FieldDescription   = "description"
	FieldPaymentType   = "payment_type"
)

// KnownFields lists every canonical field in a stable order.
var KnownFields = []string{
	FieldVendor, FieldTaxID, FieldTaxIDCountry, FieldVendorAddress,
	FieldVendorPhone, FieldInvoiceNumber, FieldIssueDate, FieldTotal,
	FieldNetAmount, FieldVATAmount, FieldVATRate, FieldCategory,
	FieldDescription, FieldPaymentType,
}

// AmountTolerance is the per-field agreement tolerance for monetary values.
const AmountTolerance = 0.01

// TotalsTolerance is the tolerance for the net + vat == total invariant.
const TotalsTolerance = 0.02

// amountFields are compared numerically with AmountTolerance.
var amountFields = map[string]bool{
	FieldTotal:     true,
	FieldNetAmount: true,
	FieldVATAmount: true,
	FieldVATRate:   true,
}

// IsAmountField reports whether a field holds a numeric monetary/rate value.
func IsAmountField(name string) bool {
	return amountFields[name]
}

// FieldProvenance records which source produced a field value, with what
// confidence and method. Every populated field must carry one.
type FieldProvenance struct {
	Source        string    `json:"source"`
	RawConfidence float64   `json:"raw_confidence"`
	Method        string    `json:"method"`
	Timestamp     time.Time `json:"timestamp"`
	Region        string    `json:"region,omitempty"`
}

// ExtractionRecord is the canonical output unit of the pipeline.
type ExtractionRecord struct {
	Fields          map[string]string          `json:"fields"`
	LineItems       []LineItem                 `json:"line_items,omitempty"`
	ConfidenceScore float64                    `json:"confidence_score"`
	Issues          []string                   `json:"issues,omitempty"`
	Provenance      map[string]FieldProvenance `json:"provenance"`
	ProcessedAt     time.Time                  `json:"processed_at"`

	// RawDebug holds a truncated provider raw response for diagnostics.
	// Consensus and calibration never read it.
	RawDebug string `json:"raw_debug,omitempty"`
}

// NewRecord returns an empty record stamped with the current time.
func NewRecord() *ExtractionRecord {
	return &ExtractionRecord{
		Fields:      make(map[string]string),
		Provenance:  make(map[string]FieldProvenance),
		ProcessedAt: time.Now().UTC(),
	}
}

// Field returns the value for name, or "" if unset.
func (r *ExtractionRecord) Field(name string) string {
	return r.Fields[name]
}

// SetField stores a non-empty value with its provenance. Empty values are
// ignored so a field without provenance can never exist.
func (r *ExtractionRecord) SetField(name, value string, prov FieldProvenance) {
	if value == "" {
		return
	}
	if r.Fields == nil {
		r.Fields = make(map[string]string)
	}
	if r.Provenance == nil {
		r.Provenance = make(map[string]FieldProvenance)
	}
	r.Fields[name] = value
	r.Provenance[name] = prov
}

// SetAmount stores a numeric field formatted to two decimals.
func (r *ExtractionRecord) SetAmount(name string, value float64, prov FieldProvenance) {
	if name == FieldVATRate {
		r.SetField(name, strconv.FormatFloat(value, 'f', -1, 64), prov)
		return
	}
	r.SetField(name, fmt.Sprintf("%.2f", value), prov)
}

// Amount parses a numeric field. The second return is false when the field
// is unset or unparsable.
func (r *ExtractionRecord) Amount(name string) (float64, bool) {
	v, ok := r.Fields[name]
	if !ok || v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// AddIssue appends a human-readable extraction problem. Duplicates are kept
// out so repeated merge passes stay idempotent.
func (r *ExtractionRecord) AddIssue(issue string) {
	for _, existing := range r.Issues {
		if existing == issue {
			return
		}
	}
	r.Issues = append(r.Issues, issue)
}

// MergeIssues unions another record's issues into this one.
func (r *ExtractionRecord) MergeIssues(other *ExtractionRecord) {
	for _, issue := range other.Issues {
		r.AddIssue(issue)
	}
}

// CheckTotals verifies net_amount + vat_amount == total within tolerance
// whenever all three are populated. A violation is recorded as an issue,
// never corrected.
func (r *ExtractionRecord) CheckTotals() {
	total, okT := r.Amount(FieldTotal)
	net, okN := r.Amount(FieldNetAmount)
	vat, okV := r.Amount(FieldVATAmount)
	if !okT || !okN || !okV {
		return
	}
	if math.Abs(total-(net+vat)) > TotalsTolerance {
		r.AddIssue(fmt.Sprintf(
			"inconsistent totals: net %.2f + vat %.2f does not match total %.2f",
			net, vat, total))
	}
}

// Clone returns a deep copy of the record.
func (r *ExtractionRecord) Clone() *ExtractionRecord {
	out := &ExtractionRecord{
		ConfidenceScore: r.ConfidenceScore,
		ProcessedAt:     r.ProcessedAt,
		RawDebug:        r.RawDebug,
		Fields:          make(map[string]string, len(r.Fields)),
		Provenance:      make(map[string]FieldProvenance, len(r.Provenance)),
	}
	for k, v := range r.Fields {
		out.Fields[k] = v
	}
	for k, v := range r.Provenance {
		out.Provenance[k] = v
	}
	out.Issues = append(out.Issues, r.Issues...)
	out.LineItems = append(out.LineItems, r.LineItems...)
	return out
}
