package provider

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/rotisserie/eris"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/contaflow/docextract/internal/model"
	"github.com/contaflow/docextract/internal/resilience"
)

// OpenAIClient is the subset of *openai.Client the provider uses.
type OpenAIClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIProvider is the secondary structured-output provider. It requests
// strict JSON-mode completions and is the cheaper consensus counterpart to
// the vision provider.
type OpenAIProvider struct {
	client  OpenAIClient
	model   string
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// NewOpenAIProvider creates the structured-output provider.
func NewOpenAIProvider(client OpenAIClient, modelID string) *OpenAIProvider {
	return &OpenAIProvider{
		client:  client,
		model:   modelID,
		limiter: rate.NewLimiter(3, 6),
		retry:   resilience.DefaultRetryConfig(),
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Capabilities() Capabilities {
	return Capabilities{
		Name:             p.Name(),
		Kind:             "structured",
		SupportedFormats: []string{"text/plain", "image/png", "image/jpeg", "image/webp"},
		Specialties:      []string{"structured_output", "text_documents"},
		AvgLatency:       5 * time.Second,
		CostPerDocument:  0.008,
		BaseAccuracy:     0.87,
		AccuracyByFormat: map[string]float64{
			"text/plain": 0.90,
			"image/png":  0.84,
			"image/jpeg": 0.84,
		},
	}
}

func (p *OpenAIProvider) ExtractText(ctx context.Context, text, filename string) (*model.ExtractionRecord, error) {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: extractionSystemPrompt},
		{
			Role:    openai.ChatMessageRoleUser,
			Content: extractionUserPrompt + "\n\nDocument (" + filename + "):\n" + text,
		},
	}
	return p.extract(ctx, messages, "openai_text")
}

func (p *OpenAIProvider) ExtractImage(ctx context.Context, data []byte, mimeType, filename string) (*model.ExtractionRecord, error) {
	dataURL := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: extractionSystemPrompt},
		{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: extractionUserPrompt + "\n\nFilename: " + filename},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: dataURL}},
			},
		},
	}
	return p.extract(ctx, messages, "openai_vision")
}

// ExtractPDF is not natively supported by the chat API; the capabilities
// advertise this so the manager routes PDFs elsewhere. Callers that still
// get here receive a typed provider failure, never an empty success.
func (p *OpenAIProvider) ExtractPDF(ctx context.Context, data []byte, filename string) (*model.ExtractionRecord, error) {
	return nil, NewError(p.Name(), eris.New("pdf input not supported, provide extracted text"))
}

func (p *OpenAIProvider) extract(ctx context.Context, messages []openai.ChatCompletionMessage, method string) (*model.ExtractionRecord, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, NewError(p.Name(), err)
	}

	resp, err := resilience.DoVal(ctx, p.retry, func(ctx context.Context) (openai.ChatCompletionResponse, error) {
		return p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:    p.model,
			Messages: messages,
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
		})
	})
	if err != nil {
		return nil, NewError(p.Name(), err)
	}
	if len(resp.Choices) == 0 {
		return nil, NewError(p.Name(), eris.New("empty completion"))
	}

	text := resp.Choices[0].Message.Content
	raw, err := parseExtractionJSON(text)
	if err != nil {
		return nil, NewError(p.Name(), eris.Wrap(err, "malformed response"))
	}
	return buildRecord(raw, p.Name(), method, text), nil
}
