package router

import (
	"context"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

type fakeChatClient struct {
	lastReq openai.ChatCompletionRequest
	resp    openai.ChatCompletionResponse
	err     error
}

func (f *fakeChatClient) CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.lastReq = request
	return f.resp, f.err
}

func TestOpenAIProviderCompleteUsesSystemAndUserMessages(t *testing.T) {
	fake := &fakeChatClient{
		resp: openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: "hi there"}}},
			Usage:   openai.Usage{PromptTokens: 5, CompletionTokens: 3},
		},
	}
	p := &OpenAIProvider{chat: fake, defaultModel: "gpt-default"}

	resp, err := p.Complete(context.Background(), Request{Prompt: "hello", SystemPrompt: "be terse"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != "hi there" {
		t.Errorf("Text = %q", resp.Text)
	}
	if resp.InputTokens != 5 || resp.OutputTokens != 3 {
		t.Errorf("Usage = %+v", resp)
	}
	if len(fake.lastReq.Messages) != 2 {
		t.Fatalf("Messages = %d, want 2 (system + user)", len(fake.lastReq.Messages))
	}
	if fake.lastReq.Messages[0].Role != openai.ChatMessageRoleSystem {
		t.Errorf("first message role = %q, want system", fake.lastReq.Messages[0].Role)
	}
}

func TestOpenAIProviderCompletePropagatesError(t *testing.T) {
	fake := &fakeChatClient{err: errors.New("boom")}
	p := &OpenAIProvider{chat: fake, defaultModel: "m"}
	if _, err := p.Complete(context.Background(), Request{Prompt: "hi"}); err == nil {
		t.Fatal("expected error to propagate")
	}
}

func TestNewOpenAIProviderRequiresAPIKey(t *testing.T) {
	if _, err := NewOpenAIProvider("", "m"); err == nil {
		t.Fatal("expected error for empty api key")
	}
}

func TestNewOpenAICompatibleProviderRequiresBaseURL(t *testing.T) {
	if _, err := NewOpenAICompatibleProvider("", "", "m"); err == nil {
		t.Fatal("expected error for empty base url")
	}
}
