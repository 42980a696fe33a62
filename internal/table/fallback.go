package table

import (
	"regexp"
	"strings"

	"github.com/contaflow/docextract/internal/model"
)

// itemLineRe matches a typical receipt row: optional quantity, description,
// trailing amount. Example: "2 Café com leite 3,40".
var itemLineRe = regexp.MustCompile(`^\s*(\d+(?:[.,]\d+)?\s+)?(.+?)\s+(-?\d{1,3}(?:[.,]\d{3})*[.,]\d{2})\s*$`)

// totalWords marks rows that summarize rather than itemize.
var totalWords = []string{"total", "subtotal", "iva", "vat", "tax", "troco", "change", "saldo"}

// parseTextTable is the lower-trust secondary strategy: a line-oriented scan
// of the raw text for rows shaped like quantity/description/amount.
func parseTextTable(text string) *model.ExtractionRecord {
	rec := model.NewRecord()
	matched := 0
	for _, line := range strings.Split(text, "\n") {
		m := itemLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		desc := strings.TrimSpace(m[2])
		if desc == "" || isSummaryRow(desc) {
			continue
		}
		amount, ok := model.ParseAmount(m[3])
		if !ok {
			continue
		}
		item := model.LineItem{
			Description: desc,
			TotalAmount: amount,
		}
		if m[1] != "" {
			if qty, ok := model.ParseAmount(m[1]); ok {
				item.Quantity = qty
				if qty > 0 {
					item.UnitPrice = amount / qty
				}
			}
		}
		rec.LineItems = append(rec.LineItems, item)
		matched++
	}

	// Base confidence grows with corroborating rows; the caller applies the
	// fallback penalty on top.
	switch {
	case matched == 0:
		rec.ConfidenceScore = 0
	case matched < 3:
		rec.ConfidenceScore = 0.5
	default:
		rec.ConfidenceScore = 0.65
	}
	return rec
}

func isSummaryRow(desc string) bool {
	lower := strings.ToLower(desc)
	for _, w := range totalWords {
		if strings.HasPrefix(lower, w) {
			return true
		}
	}
	return false
}
