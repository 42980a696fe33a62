// Package consensus reconciles multiple extraction candidates for one
// document into a single record: tolerant field-level merge with
// confidence-based conflict resolution, and similarity-grouped line items.
package consensus

import (
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/contaflow/docextract/internal/model"
)

// maxConfidence caps the merged confidence: a consensus result is never
// reported as near-certain.
const maxConfidence = 0.95

// Engine merges extraction candidates.
type Engine struct {
	opts Options
}

// NewEngine creates an engine with the given options.
func NewEngine(opts Options) *Engine {
	return &Engine{opts: opts}
}

// Merge reconciles the input records into one. Consensus of a single record
// is identity. At least one record is required.
func (e *Engine) Merge(records []*model.ExtractionRecord) (*model.ExtractionRecord, error) {
	if len(records) == 0 {
		return nil, eris.New("consensus: no input records")
	}
	if len(records) == 1 {
		return records[0].Clone(), nil
	}

	out := model.NewRecord()
	agreed, resolved := e.mergeFields(records, out)

	agreement := 1.0
	if resolved > 0 {
		agreement = float64(agreed) / float64(resolved)
	}

	var sum float64
	for _, rec := range records {
		sum += rec.ConfidenceScore
		out.MergeIssues(rec)
	}
	out.ConfidenceScore = math.Min(sum/float64(len(records))*(0.7+0.3*agreement), maxConfidence)

	out.LineItems = e.mergeLineItems(records)
	out.CheckTotals()

	zap.L().Debug("consensus: merged records",
		zap.Int("inputs", len(records)),
		zap.Int("agreed_fields", agreed),
		zap.Int("resolved_fields", resolved),
		zap.Float64("confidence", out.ConfidenceScore),
	)
	return out, nil
}

// mergeFields resolves every field populated by any input and reports how
// many multi-source fields agreed out of how many were contested at all.
func (e *Engine) mergeFields(records []*model.ExtractionRecord, out *model.ExtractionRecord) (agreed, resolved int) {
	for _, name := range model.KnownFields {
		var holders []*model.ExtractionRecord
		for _, rec := range records {
			if rec.Field(name) != "" {
				holders = append(holders, rec)
			}
		}
		if len(holders) == 0 {
			continue
		}
		if len(holders) == 1 {
			out.SetField(name, holders[0].Field(name), holders[0].Provenance[name])
			continue
		}

		resolved++
		if allAgree(name, holders) {
			agreed++
			best := highestConfidence(holders)
			out.SetField(name, best.Field(name), best.Provenance[name])
			continue
		}

		best := highestConfidence(holders)
		out.SetField(name, best.Field(name), best.Provenance[name])
		out.AddIssue(fmt.Sprintf("field %s: sources disagree (%s); kept value from most confident source",
			name, joinValues(name, holders)))
	}
	return agreed, resolved
}

// FieldsEqual compares two values for the given field: numeric tolerance for
// monetary fields, trimmed case-insensitive equality otherwise. The manual
// correction ledger uses the same rule.
func FieldsEqual(name, a, b string) bool {
	if model.IsAmountField(name) {
		fa, okA := model.ParseAmount(a)
		fb, okB := model.ParseAmount(b)
		if okA && okB {
			return model.AmountsEqual(fa, fb)
		}
	}
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func allAgree(name string, holders []*model.ExtractionRecord) bool {
	first := holders[0].Field(name)
	for _, rec := range holders[1:] {
		if !FieldsEqual(name, first, rec.Field(name)) {
			return false
		}
	}
	return true
}

func highestConfidence(holders []*model.ExtractionRecord) *model.ExtractionRecord {
	best := holders[0]
	for _, rec := range holders[1:] {
		if rec.ConfidenceScore > best.ConfidenceScore {
			best = rec
		}
	}
	return best
}

func joinValues(name string, holders []*model.ExtractionRecord) string {
	parts := make([]string, 0, len(holders))
	for _, rec := range holders {
		label := rec.Provenance[name].Source
		if label == "" {
			label = "unknown"
		}
		parts = append(parts, fmt.Sprintf("%s=%q", label, rec.Field(name)))
	}
	return strings.Join(parts, ", ")
}
