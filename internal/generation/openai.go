package generation

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"

	"github.com/bull/rag-server/internal/domain"
)

// DefaultModel is the chat model used when none is configured.
const DefaultModel = "gpt-4o"

// OpenAIGenerator answers with an OpenAI chat model in JSON mode.
type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	temperature float64
}

// NewOpenAIGenerator creates a generator on an existing client, usually the
// one the embedder was built with.
func NewOpenAIGenerator(client *openai.Client, model string, temperature float64) *OpenAIGenerator {
	if model == "" {
		model = DefaultModel
	}
	return &OpenAIGenerator{client: client, model: model, temperature: temperature}
}

func (g *OpenAIGenerator) Generate(ctx context.Context, p domain.Prompt) (*domain.Completion, error) {
	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(SystemInstruction()),
			openai.UserMessage(BuildUserPrompt(p)),
		},
		Model:       openai.ChatModel(g.model),
		Temperature: openai.Float(g.temperature),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{
				Type: "json_object",
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("chat completion returned no choices")
	}

	c, err := ParseCompletion(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return c, nil
}
