// Package export writes processed extractions to a review worksheet so a
// bookkeeper can work through low-confidence documents in bulk.
package export

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/contaflow/docextract/internal/model"
	"github.com/contaflow/docextract/internal/store"
)

// reviewHeader is the worksheet column order.
var reviewHeader = []string{
	"document_id", "filename", "tenant", "vendor", "tax_id", "invoice_number",
	"issue_date", "net_amount", "vat_amount", "vat_rate", "total", "category",
	"confidence", "line_items", "issues", "processed_at",
}

// WriteReview writes the records to an .xlsx review sheet, lowest
// confidence first so the riskiest extractions are at the top.
func WriteReview(path string, records []store.StoredRecord) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("review")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, col := range reviewHeader {
		header.AddCell().SetString(col)
	}

	ordered := make([]store.StoredRecord, len(records))
	copy(ordered, records)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Record.ConfidenceScore < ordered[j].Record.ConfidenceScore
	})

	for _, rec := range ordered {
		row := sheet.AddRow()
		r := rec.Record
		cells := []string{
			rec.DocumentID,
			rec.Filename,
			rec.Tenant,
			r.Field(model.FieldVendor),
			r.Field(model.FieldTaxID),
			r.Field(model.FieldInvoiceNumber),
			r.Field(model.FieldIssueDate),
			r.Field(model.FieldNetAmount),
			r.Field(model.FieldVATAmount),
			r.Field(model.FieldVATRate),
			r.Field(model.FieldTotal),
			r.Field(model.FieldCategory),
			fmt.Sprintf("%.2f", r.ConfidenceScore),
			formatLineItems(r.LineItems),
			strings.Join(r.Issues, "; "),
			r.ProcessedAt.Format("2006-01-02 15:04"),
		}
		for _, value := range cells {
			row.AddCell().SetString(value)
		}
	}

	return eris.Wrap(f.Save(path), "export: save workbook")
}

func formatLineItems(items []model.LineItem) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, fmt.Sprintf("%s x%.0f = %.2f", item.Description, item.Quantity, item.TotalAmount))
	}
	return strings.Join(parts, "; ")
}
