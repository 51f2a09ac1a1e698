package router

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// chatClient captures the subset of go-openai used by OpenAIProvider, the
// same narrowing goa-ai's openai adapter applies to its own ChatClient
// interface (features/model/openai/client.go).
type chatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIProvider is an api_fallback / local_quality tier Provider backed by
// the OpenAI-compatible Chat Completions API (also used for self-hosted
// OpenAI-API-compatible local model servers).
type OpenAIProvider struct {
	chat         chatClient
	defaultModel string
}

func NewOpenAIProvider(apiKey, defaultModel string) (*OpenAIProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("router: openai api key is required")
	}
	if strings.TrimSpace(defaultModel) == "" {
		return nil, errors.New("router: openai default model is required")
	}
	return &OpenAIProvider{chat: openai.NewClient(apiKey), defaultModel: defaultModel}, nil
}

// NewOpenAICompatibleProvider builds a provider against a self-hosted
// OpenAI-API-compatible endpoint (e.g. vLLM, Ollama's OpenAI shim), backing
// the local_fast/local_quality tiers without a second HTTP client type.
func NewOpenAICompatibleProvider(baseURL, apiKey, defaultModel string) (*OpenAIProvider, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("router: base_url is required")
	}
	if strings.TrimSpace(defaultModel) == "" {
		return nil, errors.New("router: default model is required")
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return &OpenAIProvider{chat: openai.NewClientWithConfig(cfg), defaultModel: defaultModel}, nil
}

func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (Response, error) {
	modelID := req.Model
	if modelID == "" {
		modelID = p.defaultModel
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	request := openai.ChatCompletionRequest{
		Model:       modelID,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	}

	resp, err := p.chat.CreateChatCompletion(ctx, request)
	if err != nil {
		return Response{}, fmt.Errorf("router: openai complete: %w", err)
	}

	var text string
	if len(resp.Choices) > 0 {
		text = resp.Choices[0].Message.Content
	}

	return Response{
		Text:         text,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}
