package provider

import (
	"time"

	"github.com/contaflow/docextract/internal/model"
)

// buildRecord converts a backend payload into a canonical record, enforcing
// the shared contract rules: placeholder rejection, monetary normalization,
// tax-id prefixing, per-field provenance, completeness-based confidence.
func buildRecord(raw *rawExtraction, source, method, rawDebug string) *model.ExtractionRecord {
	rec := model.NewRecord()
	now := time.Now().UTC()
	selfReported := float64(raw.Confidence)
	prov := func() model.FieldProvenance {
		return model.FieldProvenance{
			Source:        source,
			RawConfidence: selfReported,
			Method:        method,
			Timestamp:     now,
		}
	}

	taxID, taxCountry := NormalizeTaxID(raw.TaxID, raw.Vendor)
	if taxCountry == "" && raw.TaxIDCountry != "" {
		// Trust an explicit country claim only when the id itself is
		// unprefixed and the claim is a plausible code.
		if len(raw.TaxIDCountry) == 2 {
			taxCountry = raw.TaxIDCountry
		}
	}

	stringFields := map[string]string{
		model.FieldVendor:        CleanField(raw.Vendor, DefaultPlaceholders),
		model.FieldTaxID:         taxID,
		model.FieldTaxIDCountry:  taxCountry,
		model.FieldVendorAddress: CleanField(raw.VendorAddress, DefaultPlaceholders),
		model.FieldVendorPhone:   CleanField(raw.VendorPhone, DefaultPlaceholders),
		model.FieldInvoiceNumber: CleanField(raw.InvoiceNumber, DefaultPlaceholders),
		model.FieldIssueDate:     CleanField(raw.IssueDate, DefaultPlaceholders),
		model.FieldCategory:      CleanField(raw.Category, DefaultPlaceholders),
		model.FieldDescription:   CleanField(raw.Description, DefaultPlaceholders),
		model.FieldPaymentType:   CleanField(raw.PaymentType, DefaultPlaceholders),
	}
	for name, value := range stringFields {
		rec.SetField(name, value, prov())
	}

	if raw.Total != 0 {
		rec.SetAmount(model.FieldTotal, float64(raw.Total), prov())
	}
	if raw.NetAmount != 0 {
		rec.SetAmount(model.FieldNetAmount, float64(raw.NetAmount), prov())
	}
	if raw.VATAmount != 0 {
		rec.SetAmount(model.FieldVATAmount, float64(raw.VATAmount), prov())
	}
	if raw.VATRate != 0 {
		rec.SetAmount(model.FieldVATRate, model.NormalizeRate(float64(raw.VATRate)), prov())
	}

	for _, li := range raw.LineItems {
		item := model.LineItem{
			Description: CleanField(li.Description, DefaultPlaceholders),
			Quantity:    float64(li.Quantity),
			UnitPrice:   float64(li.UnitPrice),
			NetAmount:   float64(li.NetAmount),
			VATRate:     model.NormalizeRate(float64(li.VATRate)),
			VATAmount:   float64(li.VATAmount),
			TotalAmount: float64(li.TotalAmount),
		}
		if !item.Empty() {
			rec.LineItems = append(rec.LineItems, item)
		}
	}

	for _, issue := range raw.Issues {
		rec.AddIssue(issue)
	}
	rec.CheckTotals()

	rec.ConfidenceScore = scoreConfidence(selfReported, rec.Fields)
	rec.RawDebug = truncate(rawDebug, 500)
	return rec
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
