package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/contaflow/docextract/internal/model"
)

// Provider is the capability contract every extraction backend implements.
// Each call is self-contained; implementations hold no per-document state.
type Provider interface {
	Name() string
	Capabilities() Capabilities

	ExtractText(ctx context.Context, text, filename string) (*model.ExtractionRecord, error)
	ExtractImage(ctx context.Context, data []byte, mimeType, filename string) (*model.ExtractionRecord, error)
	ExtractPDF(ctx context.Context, data []byte, filename string) (*model.ExtractionRecord, error)
}

// Capabilities describes a provider's operating profile. The processor
// manager ranks fallback candidates by AccuracyFor the document's mime type.
type Capabilities struct {
	Name             string        `json:"name"`
	Kind             string        `json:"kind"` // "vision", "structured", "table"
	SupportedFormats []string      `json:"supported_formats"`
	Specialties      []string      `json:"specialties,omitempty"`
	AvgLatency       time.Duration `json:"avg_latency"`
	CostPerDocument  float64       `json:"cost_per_document"`
	BaseAccuracy     float64       `json:"base_accuracy"`
	AccuracyByFormat map[string]float64 `json:"accuracy_by_format,omitempty"`
}

// Supports reports whether the provider accepts documents of this mime type.
func (c Capabilities) Supports(mimeType string) bool {
	for _, f := range c.SupportedFormats {
		if f == mimeType {
			return true
		}
	}
	return false
}

// AccuracyFor returns the self-reported accuracy for a mime type, falling
// back to the provider's base accuracy.
func (c Capabilities) AccuracyFor(mimeType string) float64 {
	if acc, ok := c.AccuracyByFormat[mimeType]; ok {
		return acc
	}
	return c.BaseAccuracy
}

// Error wraps an upstream backend failure. Providers surface these instead
// of degrading to empty low-confidence results; the processor manager's
// fallback chain decides what happens next.
type Error struct {
	Provider string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err as a provider failure attributed to name.
func NewError(name string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Provider: name, Err: err}
}
