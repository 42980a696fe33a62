// Package corrections is the observational ledger of human review: which
// fields extractions get wrong, how often, and what the fixes look like. It
// never applies a correction to a record; it only feeds the calibrator.
package corrections

import (
	"fmt"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/contaflow/docextract/internal/calibrate"
	"github.com/contaflow/docextract/internal/consensus"
	"github.com/contaflow/docextract/internal/model"
)

// Metadata describes the review session that produced a correction.
type Metadata struct {
	CorrectedBy   string
	TimeToCorrect time.Duration
}

// FieldAccuracy counts how often a field needed no change.
type FieldAccuracy struct {
	Correct int `json:"correct"`
	Total   int `json:"total"`
}

// Statistics is a read-only snapshot of the ledger.
type Statistics struct {
	Documents        int                      `json:"documents"`
	FieldCorrections int                      `json:"field_corrections"`
	AccuracyByField  map[string]FieldAccuracy `json:"accuracy_by_field"`
	CommonErrors     map[string]int           `json:"common_errors"`
	AvgTimeToCorrect time.Duration            `json:"avg_time_to_correct"`
}

// TrainingExample pairs the feature vector of a corrected extraction with
// the fraction of its reviewed fields that were already right.
type TrainingExample struct {
	DocumentID string                          `json:"document_id"`
	Features   [calibrate.FeatureCount]float64 `json:"features"`
	Target     float64                         `json:"target"`
}

// Collector accumulates corrections. Safe for concurrent use.
type Collector struct {
	mu               sync.Mutex
	documents        int
	fieldCorrections int
	accuracy         map[string]*FieldAccuracy
	errors           map[string]int
	totalTime        time.Duration
	examples         []TrainingExample
}

// NewCollector returns an empty ledger.
func NewCollector() *Collector {
	return &Collector{
		accuracy: make(map[string]*FieldAccuracy),
		errors:   make(map[string]int),
	}
}

// Record ingests one reviewed document. corrections maps field names to the
// reviewer's final values; a field equal to the original counts as correct,
// anything else counts against that field and its error pattern.
func (c *Collector) Record(documentID string, original *model.ExtractionRecord, corrections map[string]string, meta Metadata) error {
	if original == nil {
		return eris.New("corrections: nil original extraction")
	}
	if len(corrections) == 0 {
		return eris.New("corrections: no corrected fields")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	correct := 0
	for name, corrected := range corrections {
		acc := c.accuracy[name]
		if acc == nil {
			acc = &FieldAccuracy{}
			c.accuracy[name] = acc
		}
		acc.Total++

		originalValue := original.Field(name)
		if consensus.FieldsEqual(name, originalValue, corrected) {
			acc.Correct++
			correct++
			continue
		}
		c.fieldCorrections++
		c.errors[fmt.Sprintf("%s:%s->%s", name, originalValue, corrected)]++
	}

	c.documents++
	c.totalTime += meta.TimeToCorrect
	c.examples = append(c.examples, TrainingExample{
		DocumentID: documentID,
		Features:   calibrate.Features(original, calibrate.UnknownQuality()),
		Target:     float64(correct) / float64(len(corrections)),
	})
	return nil
}

// Statistics returns a snapshot; the maps are copies.
func (c *Collector) Statistics() Statistics {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Statistics{
		Documents:        c.documents,
		FieldCorrections: c.fieldCorrections,
		AccuracyByField:  make(map[string]FieldAccuracy, len(c.accuracy)),
		CommonErrors:     make(map[string]int, len(c.errors)),
	}
	for name, acc := range c.accuracy {
		stats.AccuracyByField[name] = *acc
	}
	for key, count := range c.errors {
		stats.CommonErrors[key] = count
	}
	if c.documents > 0 {
		stats.AvgTimeToCorrect = c.totalTime / time.Duration(c.documents)
	}
	return stats
}

// TrainingData returns the stored feature/target pairs for external reuse.
func (c *Collector) TrainingData() []TrainingExample {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]TrainingExample, len(c.examples))
	copy(out, c.examples)
	return out
}

// MeanFieldAccuracy averages per-field accuracy across all reviewed fields.
// The second return is false until any data exists.
func (c *Collector) MeanFieldAccuracy() (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var sum float64
	fields := 0
	for _, acc := range c.accuracy {
		if acc.Total == 0 {
			continue
		}
		sum += float64(acc.Correct) / float64(acc.Total)
		fields++
	}
	if fields == 0 {
		return 0, false
	}
	return sum / float64(fields), true
}
