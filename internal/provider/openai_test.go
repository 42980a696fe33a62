package provider

import (
	"context"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contaflow/docextract/internal/model"
)

type mockOpenAI struct {
	response string
	err      error
	lastReq  openai.ChatCompletionRequest
}

func (m *mockOpenAI) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	m.lastReq = req
	if m.err != nil {
		return openai.ChatCompletionResponse{}, m.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: m.response}},
		},
	}, nil
}

func TestOpenAIProvider_ExtractText(t *testing.T) {
	mock := &mockOpenAI{response: `{"vendor":"ACME LDA","total":123.00,"net_amount":100.00,"vat_amount":23.00,"vat_rate":0.23,"confidence":0.9}`}
	p := NewOpenAIProvider(mock, "gpt-4o-mini")

	rec, err := p.ExtractText(context.Background(), "invoice text", "inv.txt")
	require.NoError(t, err)

	assert.Equal(t, "ACME LDA", rec.Field(model.FieldVendor))
	total, ok := rec.Amount(model.FieldTotal)
	require.True(t, ok)
	assert.InDelta(t, 123.00, total, 0.001)
	assert.Empty(t, rec.Issues)

	// JSON mode is always requested.
	require.NotNil(t, mock.lastReq.ResponseFormat)
	assert.Equal(t, openai.ChatCompletionResponseFormatTypeJSONObject, mock.lastReq.ResponseFormat.Type)
}

func TestOpenAIProvider_BackendFailureIsTyped(t *testing.T) {
	mock := &mockOpenAI{err: errors.New("invalid api key")}
	p := NewOpenAIProvider(mock, "gpt-4o-mini")

	_, err := p.ExtractText(context.Background(), "text", "f.txt")
	require.Error(t, err)

	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "openai", pe.Provider)
}

func TestOpenAIProvider_MalformedResponseIsError(t *testing.T) {
	mock := &mockOpenAI{response: "sorry, I cannot help with that"}
	p := NewOpenAIProvider(mock, "gpt-4o-mini")

	_, err := p.ExtractText(context.Background(), "text", "f.txt")
	var pe *Error
	require.ErrorAs(t, err, &pe)
}

func TestOpenAIProvider_PDFUnsupported(t *testing.T) {
	p := NewOpenAIProvider(&mockOpenAI{}, "gpt-4o-mini")
	_, err := p.ExtractPDF(context.Background(), []byte("%PDF"), "f.pdf")
	assert.Error(t, err)
	assert.False(t, p.Capabilities().Supports("application/pdf"))
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	p := NewOpenAIProvider(&mockOpenAI{}, "gpt-4o-mini")
	reg.Register(p)

	assert.Same(t, p, reg.Get("openai"))
	assert.Nil(t, reg.Get("missing"))
	assert.Equal(t, []string{"openai"}, reg.List())
	assert.Len(t, reg.All(), 1)
}

func TestCapabilities_AccuracyFor(t *testing.T) {
	caps := NewOpenAIProvider(&mockOpenAI{}, "gpt-4o-mini").Capabilities()
	assert.InDelta(t, 0.90, caps.AccuracyFor("text/plain"), 0.001)
	assert.InDelta(t, caps.BaseAccuracy, caps.AccuracyFor("application/unknown"), 0.001)
}
