package llm

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIProvider generates text through the OpenAI chat completions API.
type OpenAIProvider struct {
	Model       string
	Temperature float64
	apiKey      string
	client      *openai.Client
}

// NewOpenAIProvider creates a provider reading its key from apiKeyEnv.
// Extra request options (base URL, retries) are passed through to the SDK.
func NewOpenAIProvider(model, apiKeyEnv string, temperature float64, opts ...option.RequestOption) *OpenAIProvider {
	key := os.Getenv(apiKeyEnv)
	client := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(key)}, opts...)...)
	return &OpenAIProvider{
		Model:       model,
		Temperature: temperature,
		apiKey:      key,
		client:      &client,
	}
}

// IsConfigured checks if the API key is set.
func (o *OpenAIProvider) IsConfigured() bool {
	return o.apiKey != ""
}

// Generate sends a prompt to OpenAI and returns the response.
func (o *OpenAIProvider) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if o.apiKey == "" {
		return "", fmt.Errorf("OpenAI API key not configured")
	}

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		MaxTokens:   openai.Int(int64(maxTokens)),
		Temperature: openai.Float(o.Temperature),
	})
	if err != nil {
		return "", fmt.Errorf("openai API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in OpenAI response")
	}
	return resp.Choices[0].Message.Content, nil
}

// OpenAIEmbedder generates embeddings through the OpenAI embeddings API.
type OpenAIEmbedder struct {
	Model      string
	Dimensions int
	client     *openai.Client
}

// NewOpenAIEmbedder creates an embedder producing vectors of the given size.
func NewOpenAIEmbedder(model, apiKeyEnv string, dimensions int, opts ...option.RequestOption) *OpenAIEmbedder {
	client := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(os.Getenv(apiKeyEnv))}, opts...)...)
	return &OpenAIEmbedder{Model: model, Dimensions: dimensions, client: &client}
}

// Embed generates embeddings for the given texts.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(e.Model),
	}
	if e.Dimensions > 0 {
		params.Dimensions = openai.Int(int64(e.Dimensions))
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai returned %d embeddings for %d texts", len(resp.Data), len(texts))
	}

	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	out := make([][]float64, len(data))
	for i, d := range data {
		out[i] = d.Embedding
	}
	return out, nil
}
