package classifier

import (
	"context"

	"go.uber.org/zap"

	"github.com/contaflow/docextract/internal/model"
)

// Decision is the processing policy for one document.
type Decision struct {
	UseVision    bool           `json:"use_vision"`
	UseConsensus bool           `json:"use_consensus"`
	Priority     model.Priority `json:"priority"`
}

// FailOpen is the safest policy: full vision, full consensus, medium
// priority. Any classification failure lands here rather than on cheaper
// processing.
func FailOpen() Decision {
	return Decision{UseVision: true, UseConsensus: true, Priority: model.PriorityMedium}
}

// Classifier turns document features into a processing decision.
type Classifier struct {
	analyzer FeatureAnalyzer
}

// New creates a classifier. A nil analyzer gets the heuristic default.
func New(analyzer FeatureAnalyzer) *Classifier {
	if analyzer == nil {
		analyzer = HeuristicAnalyzer{}
	}
	return &Classifier{analyzer: analyzer}
}

// Classify never returns an error: a failed analysis fails open.
func (c *Classifier) Classify(ctx context.Context, doc model.Document) Decision {
	f, err := c.analyzer.Analyze(ctx, doc)
	if err != nil {
		zap.L().Warn("classifier: feature analysis failed, failing open",
			zap.String("filename", doc.Filename),
			zap.Error(err),
		)
		return FailOpen()
	}
	if f.Length <= 0 {
		zap.L().Warn("classifier: empty feature set, failing open",
			zap.String("filename", doc.Filename),
		)
		return FailOpen()
	}
	return Decision{
		UseVision:    countSignals(visionSignals(f)) >= 3,
		UseConsensus: countSignals(consensusSignals(f)) >= 4,
		Priority:     priority(f),
	}
}

func visionSignals(f model.DocumentFeatures) []bool {
	return []bool{
		f.HasTables,
		f.ImageQuality > 0.7,
		f.OCRQuality < 0.8,
		f.LayoutKind == model.LayoutStructured,
		f.Complexity > 0.7,
		f.FinancialDensity > 0.6,
		f.HasKeyword("table") || f.HasKeyword("image") || f.HasKeyword("logo"),
	}
}

func consensusSignals(f model.DocumentFeatures) []bool {
	return []bool{
		f.Length > 1000,
		f.OCRQuality < 0.9,
		f.HasTables,
		f.Complexity > 0.8,
		f.FinancialDensity > 0.7,
		f.LanguageConfidence < 0.9,
		len(f.Keywords) > 5,
	}
}

// priority runs a majority vote across the three tier rule sets. Ties go to
// the higher-urgency tier.
func priority(f model.DocumentFeatures) model.Priority {
	high := countSignals([]bool{
		f.FinancialDensity > 0.8,
		f.Complexity > 0.8,
		f.OCRQuality < 0.6,
		f.Length > 5000,
	})
	medium := countSignals([]bool{
		f.FinancialDensity > 0.5,
		f.Complexity > 0.5,
		f.HasTables,
		f.Length > 1000,
	})
	low := countSignals([]bool{
		f.FinancialDensity <= 0.5,
		f.Complexity <= 0.5,
		f.Length <= 1000,
	})

	switch {
	case high >= medium && high >= low:
		return model.PriorityHigh
	case medium >= low:
		return model.PriorityMedium
	default:
		return model.PriorityLow
	}
}

func countSignals(signals []bool) int {
	n := 0
	for _, s := range signals {
		if s {
			n++
		}
	}
	return n
}
