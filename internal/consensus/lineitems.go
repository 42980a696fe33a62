package consensus

import (
	"strings"

	"github.com/agext/levenshtein"

	"github.com/contaflow/docextract/internal/model"
)

// itemGroup collects near-identical line items observed across input records.
type itemGroup struct {
	representative model.LineItem
	members        []model.LineItem
	similaritySum  float64
}

// mergeLineItems groups items from every input by similarity, keeps groups
// with enough cross-source support, and selects the most complete member of
// each group. The result is deduplicated, not concatenated.
func (e *Engine) mergeLineItems(records []*model.ExtractionRecord) []model.LineItem {
	var groups []*itemGroup
	for _, rec := range records {
		for _, item := range rec.LineItems {
			placed := false
			for _, g := range groups {
				score := e.similarity(g.representative, item)
				if score >= e.opts.MinConfidence {
					g.members = append(g.members, item)
					g.similaritySum += score
					placed = true
					break
				}
			}
			if !placed {
				groups = append(groups, &itemGroup{
					representative: item,
					members:        []model.LineItem{item},
					similaritySum:  1,
				})
			}
		}
	}

	var out []model.LineItem
	for _, g := range groups {
		confidence := g.similaritySum / float64(len(g.members))
		agreement := float64(len(g.members)) / float64(len(records))
		if agreement > 1 {
			agreement = 1
		}
		if confidence < e.opts.MinConfidence || agreement < e.opts.MinAgreement {
			continue
		}
		out = append(out, mostComplete(g.members))
	}
	return out
}

// similarity scores two line items in [0,1] as a weighted combination of
// description closeness and near-exact amount matches.
func (e *Engine) similarity(a, b model.LineItem) float64 {
	w := e.opts.Similarity
	score := w.Description * levenshtein.Similarity(
		strings.ToLower(strings.TrimSpace(a.Description)),
		strings.ToLower(strings.TrimSpace(b.Description)),
		nil,
	)
	if amountsMatch(a.TotalAmount, b.TotalAmount) {
		score += w.Total
	}
	if amountsMatch(a.Quantity, b.Quantity) {
		score += w.Quantity
	}
	if amountsMatch(a.VATAmount, b.VATAmount) {
		score += w.VATAmount
	}
	return score
}

// amountsMatch treats two absent values as matching; a present value never
// matches an absent one.
func amountsMatch(a, b float64) bool {
	if a == 0 && b == 0 {
		return true
	}
	if a == 0 || b == 0 {
		return false
	}
	return model.AmountsEqual(a, b)
}

// mostComplete picks the member with the most populated sub-fields, with a
// bonus for a substantive description. Ties keep the earliest member.
func mostComplete(members []model.LineItem) model.LineItem {
	best := members[0]
	bestScore := completeness(best)
	for _, item := range members[1:] {
		if s := completeness(item); s > bestScore {
			best, bestScore = item, s
		}
	}
	return best
}

func completeness(item model.LineItem) float64 {
	var score float64
	if strings.TrimSpace(item.Description) != "" {
		score++
	}
	if len(strings.TrimSpace(item.Description)) > 10 {
		score += 0.5
	}
	for _, v := range []float64{
		item.Quantity, item.UnitPrice, item.NetAmount,
		item.VATRate, item.VATAmount, item.TotalAmount,
	} {
		if v != 0 {
			score++
		}
	}
	return score
}
