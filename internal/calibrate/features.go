// Package calibrate recomputes the headline confidence of an extraction
// from a richer feature vector than the raw self-reported score, using a
// small linear model updated online from consensus snapshots and manual
// corrections.
package calibrate

import (
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/contaflow/docextract/internal/model"
)

// FeatureCount is the fixed width of the calibration feature vector.
const FeatureCount = 8

// Feature vector slots, in model-weight order.
const (
	featModelConfidence = iota
	featAgreement
	featCompleteness
	featConsistency
	featPlausibility
	featOCRQuality
	featImageQuality
	featStructureQuality
)

// completenessFields are the fields whose presence drives the completeness
// feature.
var completenessFields = []string{
	model.FieldVendor, model.FieldIssueDate, model.FieldTotal, model.FieldTaxID,
}

// standardVATRates are the rates considered plausible (exempt plus the three
// Portuguese bands).
var standardVATRates = []float64{0, 0.06, 0.13, 0.23}

// QualityUnknown marks a quality estimate nobody measured. Unknown values
// fall back to the neutral 0.5; a measured 0 stays 0.
var QualityUnknown = math.NaN()

// Quality carries document-level quality estimates that cannot be derived
// from the record alone.
type Quality struct {
	OCR       float64
	Image     float64
	Structure float64
}

// UnknownQuality is the Quality to pass when no estimates were measured.
func UnknownQuality() Quality {
	return Quality{OCR: QualityUnknown, Image: QualityUnknown, Structure: QualityUnknown}
}

// Features builds the 8-dimensional calibration vector for a record.
func Features(rec *model.ExtractionRecord, q Quality) [FeatureCount]float64 {
	var x [FeatureCount]float64
	x[featModelConfidence] = clamp01(rec.ConfidenceScore)
	x[featAgreement] = provenanceAgreement(rec)
	x[featCompleteness] = completeness(rec)
	x[featConsistency] = consistency(rec)
	x[featPlausibility] = plausibility(rec)
	x[featOCRQuality] = orNeutral(q.OCR)
	x[featImageQuality] = orNeutral(q.Image)
	x[featStructureQuality] = orNeutral(q.Structure)
	return x
}

// provenanceAgreement is the mean raw confidence across the record's field
// provenances, a proxy for how much the contributing sources agreed.
func provenanceAgreement(rec *model.ExtractionRecord) float64 {
	if len(rec.Provenance) == 0 {
		return clamp01(rec.ConfidenceScore)
	}
	var sum float64
	for _, prov := range rec.Provenance {
		sum += prov.RawConfidence
	}
	return clamp01(sum / float64(len(rec.Provenance)))
}

func completeness(rec *model.ExtractionRecord) float64 {
	present := 0
	for _, name := range completenessFields {
		if rec.Field(name) != "" {
			present++
		}
	}
	return float64(present) / float64(len(completenessFields))
}

// consistency starts at 1 and is penalized for internal contradictions.
func consistency(rec *model.ExtractionRecord) float64 {
	score := 1.0
	total, okT := rec.Amount(model.FieldTotal)
	net, okN := rec.Amount(model.FieldNetAmount)
	vat, okV := rec.Amount(model.FieldVATAmount)
	if okT && okN && okV && math.Abs(total-(net+vat)) > model.TotalsTolerance {
		score *= 0.8
	}
	if d, err := time.Parse("2006-01-02", rec.Field(model.FieldIssueDate)); err == nil {
		if d.After(time.Now().AddDate(0, 0, 1)) {
			score *= 0.7
		}
	}
	return score
}

// plausibility starts at 1 and is penalized for values outside the
// document population's normal ranges.
func plausibility(rec *model.ExtractionRecord) float64 {
	score := 1.0
	if total, ok := rec.Amount(model.FieldTotal); ok {
		if total <= 0 || total > 1e6 {
			score *= 0.6
		}
	}
	if rate, ok := rec.Amount(model.FieldVATRate); ok && !standardRate(rate) {
		score *= 0.7
	}
	return score
}

func standardRate(rate float64) bool {
	for _, std := range standardVATRates {
		if math.Abs(rate-std) < 0.005 {
			return true
		}
	}
	return false
}

var (
	confusionRe = regexp.MustCompile(`[Il1]{3,}|[0OQ]{3,}`)
	wideGapRe   = regexp.MustCompile(`[^\S\n]{4,}`)
	amountTailRe = regexp.MustCompile(`\d[.,]\d{2}\s*$`)
)

// EstimateOCRQuality scores how cleanly a document's text survived OCR by
// counting recognition defects: character-confusion runs, implausibly long
// tokens, and collapsed column whitespace.
func EstimateOCRQuality(text string) float64 {
	if strings.TrimSpace(text) == "" {
		return 0.5
	}
	words := strings.Fields(text)
	defects := 0
	for _, w := range words {
		if len(w) > 25 {
			defects++
		}
		if confusionRe.MatchString(w) {
			defects++
		}
	}
	defects += len(wideGapRe.FindAllString(text, -1))
	return clamp01(1 - 2*float64(defects)/float64(len(words)+1))
}

var structureKeywords = [][]string{
	{"total"},
	{"iva", "vat", "tax"},
	{"nif", "vat number", "tax id"},
	{"data", "date"},
	{"fatura", "invoice", "recibo", "receipt"},
}

// EstimateStructureQuality scores how much the text looks like a laid-out
// financial document: expected section keywords plus consistent item rows
// ending in an amount.
func EstimateStructureQuality(text string) float64 {
	if strings.TrimSpace(text) == "" {
		return 0.5
	}
	lower := strings.ToLower(text)
	score := 0.3
	for _, group := range structureKeywords {
		for _, kw := range group {
			if strings.Contains(lower, kw) {
				score += 0.08
				break
			}
		}
	}
	amountRows := 0
	for _, line := range strings.Split(text, "\n") {
		if amountTailRe.MatchString(line) {
			amountRows++
		}
	}
	if amountRows >= 3 {
		score += 0.3
	} else if amountRows > 0 {
		score += 0.15
	}
	return clamp01(score)
}

func orNeutral(v float64) float64 {
	if math.IsNaN(v) {
		return 0.5
	}
	return clamp01(v)
}

func clamp01(f float64) float64 {
	if f < 0 || math.IsNaN(f) {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
