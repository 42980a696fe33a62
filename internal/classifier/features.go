// Package classifier decides how a document should be processed: vision or
// text-only, single provider or multi-provider consensus, and at what
// priority. Feature extraction is pluggable; the decision rules are fixed.
package classifier

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	openai "github.com/sashabaranov/go-openai"

	"github.com/contaflow/docextract/internal/calibrate"
	"github.com/contaflow/docextract/internal/model"
	"github.com/contaflow/docextract/internal/provider"
)

// FeatureAnalyzer derives DocumentFeatures from a raw document. The default
// is a deterministic text heuristic; an LLM-backed analyzer is available
// when richer judgment is worth the latency.
type FeatureAnalyzer interface {
	Analyze(ctx context.Context, doc model.Document) (model.DocumentFeatures, error)
}

// documentKeywords are the signal words scanned for during analysis.
var documentKeywords = []string{
	"fatura", "invoice", "recibo", "receipt", "total", "iva", "vat",
	"nif", "subtotal", "table", "tabela", "image", "imagem", "logo",
	"contribuinte", "desconto",
}

// ptStopwords drive a crude language-confidence estimate: receipts from
// this pipeline's population are Portuguese or English.
var ptStopwords = []string{"de", "da", "do", "com", "para", "não", "uma", "the", "of", "and", "for"}

var amountRe = regexp.MustCompile(`\d+[.,]\d{2}`)

// HeuristicAnalyzer derives features from the document text alone, with no
// network dependency. It is the default analyzer.
type HeuristicAnalyzer struct{}

func (HeuristicAnalyzer) Analyze(_ context.Context, doc model.Document) (model.DocumentFeatures, error) {
	text := doc.Text()
	if strings.TrimSpace(text) == "" {
		return model.DocumentFeatures{}, eris.New("classifier: document has no analyzable text")
	}
	lower := strings.ToLower(text)
	lines := strings.Split(text, "\n")

	var keywords []string
	for _, kw := range documentKeywords {
		if strings.Contains(lower, kw) {
			keywords = append(keywords, kw)
		}
	}

	amountLines := 0
	for _, line := range lines {
		if amountRe.MatchString(line) {
			amountLines++
		}
	}
	density := float64(amountLines) / float64(len(lines))

	f := model.DocumentFeatures{
		Length:             len(text),
		OCRQuality:         calibrate.EstimateOCRQuality(text),
		FileType:           fileType(doc.MimeType),
		Keywords:           keywords,
		HasTables:          amountLines >= 3,
		LanguageConfidence: languageConfidence(lower),
		Complexity:         clamp01(0.2 + float64(len(lines))/100 + float64(len(keywords))/20),
		FinancialDensity:   clamp01(density),
	}
	if f.FileType == "image" {
		// Without pixel analysis this stays a neutral estimate.
		f.ImageQuality = 0.5
	}
	switch {
	case f.HasTables && (f.HasKeyword("fatura") || f.HasKeyword("invoice")):
		f.LayoutKind = model.LayoutStructured
	case amountLines > 0:
		f.LayoutKind = model.LayoutSemiStructured
	default:
		f.LayoutKind = model.LayoutUnstructured
	}
	return f, nil
}

func languageConfidence(lower string) float64 {
	words := strings.Fields(lower)
	if len(words) == 0 {
		return 0
	}
	hits := 0
	for _, w := range words {
		for _, stop := range ptStopwords {
			if w == stop {
				hits++
				break
			}
		}
	}
	return clamp01(0.5 + 4*float64(hits)/float64(len(words)))
}

func fileType(mime string) string {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return "image"
	case strings.Contains(mime, "pdf"):
		return "pdf"
	default:
		return "text"
	}
}

const analyzerPrompt = `Analyze the document and return ONLY this JSON object:
{"length": 0, "ocr_quality": 0, "file_type": "", "keywords": [],
 "has_tables": false, "image_quality": 0, "language_confidence": 0,
 "complexity": 0, "layout_kind": "structured|semi-structured|unstructured",
 "financial_density": 0}
All float values are 0-1 fractions.`

// LLMAnalyzer asks a completion backend for the feature schema. Failures
// propagate so the classifier can fail open.
type LLMAnalyzer struct {
	client  provider.OpenAIClient
	modelID string
}

// NewLLMAnalyzer creates an analyzer backed by a JSON-mode completion model.
func NewLLMAnalyzer(client provider.OpenAIClient, modelID string) *LLMAnalyzer {
	return &LLMAnalyzer{client: client, modelID: modelID}
}

func (a *LLMAnalyzer) Analyze(ctx context.Context, doc model.Document) (model.DocumentFeatures, error) {
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.modelID,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: analyzerPrompt + "\n\nDocument:\n" + doc.Text()},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return model.DocumentFeatures{}, eris.Wrap(err, "classifier: analyze document")
	}
	if len(resp.Choices) == 0 {
		return model.DocumentFeatures{}, eris.New("classifier: empty completion")
	}
	body := provider.FirstJSONObject(resp.Choices[0].Message.Content)
	if body == "" {
		return model.DocumentFeatures{}, eris.New("classifier: no JSON object in response")
	}
	var f model.DocumentFeatures
	if err := json.Unmarshal([]byte(body), &f); err != nil {
		return model.DocumentFeatures{}, eris.Wrap(err, "classifier: decode features")
	}
	if f.Length == 0 {
		f.Length = len(doc.Text())
	}
	return f, nil
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
