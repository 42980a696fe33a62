package manager

import (
	"context"
	"strings"
	"time"

	"github.com/contaflow/docextract/internal/model"
)

// categoryKeywords maps expense categories to the vendor/description words
// that suggest them. Scanned in order; first hit wins.
var categoryKeywords = []struct {
	category string
	words    []string
}{
	{"refeicoes", []string{"restaurante", "restaurant", "café", "cafe", "pastelaria", "snack", "refeição", "refeicao", "menu", "almoço", "jantar"}},
	{"combustivel", []string{"combustível", "combustivel", "gasolina", "gasóleo", "gasoleo", "fuel", "galp", "repsol", "cepsa"}},
	{"alojamento", []string{"hotel", "alojamento", "hostel", "booking", "estadia"}},
	{"portagens", []string{"via verde", "portagem", "toll"}},
	{"comunicacoes", []string{"vodafone", "telecom", "telemóvel", "telemovel", "internet"}},
	{"material_escritorio", []string{"papelaria", "escritório", "escritorio", "staples", "office"}},
}

const defaultCategory = "outras_despesas"

// enhance applies the post-consensus improvements: table line items when
// none survived the merge, arithmetic completion of the amount triple, and
// a keyword category suggestion.
func (m *Manager) enhance(ctx context.Context, doc model.Document, final *model.ExtractionRecord, tableRec *model.ExtractionRecord) {
	if len(final.LineItems) == 0 {
		if tableRec == nil && m.table != nil && strings.TrimSpace(textOf(doc)) != "" && ctx.Err() == nil {
			rec, err := m.table.ExtractLineItems(ctx, textOf(doc), doc.Filename)
			if err == nil {
				tableRec = rec
			}
		}
		if tableRec != nil && len(tableRec.LineItems) > 0 {
			final.LineItems = append(final.LineItems, tableRec.LineItems...)
			final.MergeIssues(tableRec)
		}
	}

	deriveMissingAmount(final)
	suggestCategory(doc, final)
	final.CheckTotals()
}

// deriveMissingAmount completes the net/vat/total triple when exactly one
// member is missing. This is the one place derivation, not flagging, is the
// right response to a gap.
func deriveMissingAmount(rec *model.ExtractionRecord) {
	total, okT := rec.Amount(model.FieldTotal)
	net, okN := rec.Amount(model.FieldNetAmount)
	vat, okV := rec.Amount(model.FieldVATAmount)

	prov := model.FieldProvenance{
		Source:        "derivation",
		Method:        "arithmetic",
		RawConfidence: 0.9,
		Timestamp:     time.Now().UTC(),
	}
	switch {
	case okN && okV && !okT:
		rec.SetAmount(model.FieldTotal, net+vat, prov)
	case okT && okN && !okV:
		rec.SetAmount(model.FieldVATAmount, total-net, prov)
	case okT && okV && !okN:
		rec.SetAmount(model.FieldNetAmount, total-vat, prov)
	}
}

// suggestCategory fills an empty category from vendor/description/document
// keywords, defaulting to the catch-all expense bucket.
func suggestCategory(doc model.Document, rec *model.ExtractionRecord) {
	if rec.Field(model.FieldCategory) != "" {
		return
	}
	haystack := strings.ToLower(strings.Join([]string{
		rec.Field(model.FieldVendor),
		rec.Field(model.FieldDescription),
		textOf(doc),
	}, "\n"))

	category := defaultCategory
	confidence := 0.3
	for _, group := range categoryKeywords {
		for _, word := range group.words {
			if strings.Contains(haystack, word) {
				category, confidence = group.category, 0.5
				break
			}
		}
		if category != defaultCategory {
			break
		}
	}
	rec.SetField(model.FieldCategory, category, model.FieldProvenance{
		Source:        "keyword-suggestion",
		Method:        "keyword",
		RawConfidence: confidence,
		Timestamp:     time.Now().UTC(),
	})
}
