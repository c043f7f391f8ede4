package ai

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

type openAIConfig struct {
	APIKey       string `json:"api_key"`
	BaseURL      string `json:"base_url"`
	Organization string `json:"organization"`
}

type openAIProvider struct {
	name   string
	client *openai.Client
}

func newOpenAIClient(cfg *openAIConfig, defaultBaseURL string, httpClient *http.Client) *openai.Client {
	clientConfig := openai.DefaultConfig(strings.TrimSpace(cfg.APIKey))
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if baseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if cfg.Organization != "" {
		clientConfig.OrgID = cfg.Organization
	}
	if httpClient != nil {
		clientConfig.HTTPClient = httpClient
	}
	return openai.NewClientWithConfig(clientConfig)
}

func (p *openAIProvider) Name() string {
	return p.name
}

func (p *openAIProvider) Complete(ctx context.Context, model string, req CompletionRequest) (string, error) {
	if p.client == nil {
		return "", ErrUnavailable
	}
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})
	temperature := float32(req.Temperature)
	if temperature == 0 {
		// the client omits a zero temperature, which leaves the provider default
		temperature = math.SmallestNonzeroFloat32
	}
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%s chat completion: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s response has no choices", p.name)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (p *openAIProvider) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	if p.client == nil {
		return nil, ErrUnavailable
	}
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(model),
	})
	if err != nil {
		return nil, fmt.Errorf("%s embeddings: %w", p.name, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%s returned %d embeddings for %d inputs", p.name, len(resp.Data), len(texts))
	}
	results := make([][]float32, len(texts))
	for _, data := range resp.Data {
		if data.Index < 0 || data.Index >= len(results) {
			return nil, fmt.Errorf("%s returned embedding index %d out of range", p.name, data.Index)
		}
		results[data.Index] = data.Embedding
	}
	return results, nil
}

func createOpenAIProvider(args interface{}) (*openAIProvider, error) {
	cfg := &openAIConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	provider := &openAIProvider{name: "openai"}
	if strings.TrimSpace(cfg.APIKey) != "" {
		provider.client = newOpenAIClient(cfg, "", nil)
	}
	return provider, nil
}

func init() {
	Register("openai", func(args interface{}) (IAIProvider, error) {
		return createOpenAIProvider(args)
	})
	RegisterEmbed("openai", func(args interface{}) (IEmbedProvider, error) {
		return createOpenAIProvider(args)
	})
}
