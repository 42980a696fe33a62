// Package ocr pre-extracts text from PDF documents so the classifier and
// quality heuristics have something to look at before a provider runs.
package ocr

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/contaflow/docextract/internal/config"
)

// Extractor turns raw PDF bytes into plain text.
type Extractor interface {
	Extract(ctx context.Context, data []byte) (string, error)
}

// New creates an Extractor based on config.
func New(cfg config.OCRConfig) (Extractor, error) {
	switch cfg.Provider {
	case "local", "":
		return NewPdfToText(cfg.PdfToTextPath), nil
	case "mistral":
		if cfg.MistralKey == "" {
			return nil, eris.New("ocr: mistral provider requires ocr.mistral_key")
		}
		return NewMistralOCR(cfg.MistralKey, cfg.MistralModel), nil
	default:
		return nil, eris.Errorf("ocr: unknown provider %q", cfg.Provider)
	}
}
