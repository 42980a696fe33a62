// Package table extracts tabular line items from financial documents. It is
// provider-shaped so the processor manager can treat it as one more
// extraction source during consensus.
package table

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/rotisserie/eris"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/contaflow/docextract/internal/model"
	"github.com/contaflow/docextract/internal/provider"
	"github.com/contaflow/docextract/internal/resilience"
)

const (
	// fallbackPenalty scales down the confidence of the secondary text
	// strategy to reflect reduced trust.
	fallbackPenalty = 0.7

	// minPrimaryConfidence is the threshold below which the primary
	// structured strategy is considered to have failed.
	minPrimaryConfidence = 0.5

	// itemTolerance is the per-check arithmetic tolerance (1 cent).
	itemTolerance = 0.01
)

const tablePrompt = `Extract every line item row from the document's item table.
Return ONLY this JSON object:
{
  "line_items": [{"description": "", "quantity": 0, "unit_price": 0,
    "net_amount": 0, "vat_rate": 0, "vat_amount": 0, "total_amount": 0}],
  "confidence": 0
}
Rules: amounts as plain decimals, vat_rate as a 0-1 fraction, preserve the
document's row order, confidence in [0,1] for how reliably the table was read.`

// Extractor reads line items with a structured LLM strategy and falls back
// to a heuristic text parse when the primary strategy comes back empty or
// under-confident.
type Extractor struct {
	client provider.OpenAIClient
	model  string
	retry  resilience.RetryConfig
}

// NewExtractor creates a table extractor backed by a JSON-mode completion
// client.
func NewExtractor(client provider.OpenAIClient, modelID string) *Extractor {
	return &Extractor{
		client: client,
		model:  modelID,
		retry:  resilience.DefaultRetryConfig(),
	}
}

func (e *Extractor) Name() string { return "table" }

// Capabilities lets the manager rank the extractor alongside full providers.
func (e *Extractor) Capabilities() provider.Capabilities {
	return provider.Capabilities{
		Name:             e.Name(),
		Kind:             "table",
		SupportedFormats: []string{"text/plain"},
		Specialties:      []string{"line_items", "tables"},
		AvgLatency:       4 * time.Second,
		CostPerDocument:  0.004,
		BaseAccuracy:     0.82,
	}
}

// tablePayload is the structured strategy's response shape.
type tablePayload struct {
	LineItems []struct {
		Description string             `json:"description"`
		Quantity    provider.FlexFloat `json:"quantity"`
		UnitPrice   provider.FlexFloat `json:"unit_price"`
		NetAmount   provider.FlexFloat `json:"net_amount"`
		VATRate     provider.FlexFloat `json:"vat_rate"`
		VATAmount   provider.FlexFloat `json:"vat_amount"`
		TotalAmount provider.FlexFloat `json:"total_amount"`
	} `json:"line_items"`
	Confidence provider.FlexFloat `json:"confidence"`
}

// ExtractLineItems runs the primary strategy and, when it yields nothing
// usable, the penalized fallback over the same document text.
func (e *Extractor) ExtractLineItems(ctx context.Context, text, filename string) (*model.ExtractionRecord, error) {
	rec, err := e.structured(ctx, text, filename)
	if err == nil && len(rec.LineItems) > 0 && rec.ConfidenceScore >= minPrimaryConfidence {
		validateItems(rec)
		return rec, nil
	}
	if err != nil {
		zap.L().Warn("table: structured strategy failed, using text fallback",
			zap.String("filename", filename),
			zap.Error(err),
		)
	} else {
		zap.L().Debug("table: structured strategy under-confident, using text fallback",
			zap.String("filename", filename),
			zap.Int("items", len(rec.LineItems)),
			zap.Float64("confidence", rec.ConfidenceScore),
		)
	}

	fb := parseTextTable(text)
	fb.ConfidenceScore *= fallbackPenalty
	fb.AddIssue("line items recovered by fallback table strategy")
	validateItems(fb)
	if err != nil && len(fb.LineItems) == 0 {
		// Nothing recovered either way: surface the primary failure.
		return nil, provider.NewError(e.Name(), err)
	}
	return fb, nil
}

func (e *Extractor) structured(ctx context.Context, text, filename string) (*model.ExtractionRecord, error) {
	resp, err := resilience.DoVal(ctx, e.retry, func(ctx context.Context) (openai.ChatCompletionResponse, error) {
		return e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: e.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: tablePrompt + "\n\nDocument (" + filename + "):\n" + text},
			},
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
		})
	})
	if err != nil {
		return nil, eris.Wrap(err, "table: structured extraction")
	}
	if len(resp.Choices) == 0 {
		return nil, eris.New("table: empty completion")
	}

	body := provider.FirstJSONObject(resp.Choices[0].Message.Content)
	if body == "" {
		return nil, eris.New("table: no JSON object in response")
	}
	var payload tablePayload
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return nil, eris.Wrap(err, "table: decode payload")
	}

	rec := model.NewRecord()
	rec.ConfidenceScore = clamp01(float64(payload.Confidence))
	for _, li := range payload.LineItems {
		item := model.LineItem{
			Description: li.Description,
			Quantity:    float64(li.Quantity),
			UnitPrice:   float64(li.UnitPrice),
			NetAmount:   float64(li.NetAmount),
			VATRate:     model.NormalizeRate(float64(li.VATRate)),
			VATAmount:   float64(li.VATAmount),
			TotalAmount: float64(li.TotalAmount),
		}
		if !item.Empty() {
			rec.LineItems = append(rec.LineItems, item)
		}
	}
	return rec, nil
}

// validateItems runs the three arithmetic checks per item. Failing items
// are flagged, never dropped, so a reviewer can see and fix them.
func validateItems(rec *model.ExtractionRecord) {
	for _, item := range rec.LineItems {
		label := item.Description
		if label == "" {
			label = "(no description)"
		}
		if item.Quantity != 0 && item.UnitPrice != 0 && item.NetAmount != 0 {
			if math.Abs(item.NetAmount-item.Quantity*item.UnitPrice) > itemTolerance {
				rec.AddIssue(fmt.Sprintf("line item %q: net %.2f does not match quantity %.2f x unit price %.2f",
					label, item.NetAmount, item.Quantity, item.UnitPrice))
			}
		}
		if item.NetAmount != 0 && item.VATRate != 0 && item.VATAmount != 0 {
			if math.Abs(item.VATAmount-item.NetAmount*item.VATRate) > itemTolerance {
				rec.AddIssue(fmt.Sprintf("line item %q: vat %.2f does not match net %.2f x rate %.2f",
					label, item.VATAmount, item.NetAmount, item.VATRate))
			}
		}
		if item.NetAmount != 0 && item.VATAmount != 0 && item.TotalAmount != 0 {
			if math.Abs(item.TotalAmount-(item.NetAmount+item.VATAmount)) > itemTolerance {
				rec.AddIssue(fmt.Sprintf("line item %q: total %.2f does not match net %.2f + vat %.2f",
					label, item.TotalAmount, item.NetAmount, item.VATAmount))
			}
		}
	}
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
