package router

import (
	"context"
	"errors"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

type fakeAnthropicMessages struct {
	lastParams sdk.MessageNewParams
	resp       *sdk.Message
	err        error
}

func (f *fakeAnthropicMessages) New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error) {
	f.lastParams = body
	return f.resp, f.err
}

func TestAnthropicProviderCompleteExtractsTextAndUsage(t *testing.T) {
	fake := &fakeAnthropicMessages{
		resp: &sdk.Message{
			Content: []sdk.ContentBlockUnion{
				{Type: "text", Text: "hello "},
				{Type: "text", Text: "world"},
			},
			Usage: sdk.Usage{InputTokens: 12, OutputTokens: 8},
		},
	}
	p := &AnthropicProvider{msg: fake, defaultModel: "claude-default"}

	resp, err := p.Complete(context.Background(), Request{Prompt: "hi", SystemPrompt: "be nice"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != "hello world" {
		t.Errorf("Text = %q, want %q", resp.Text, "hello world")
	}
	if resp.InputTokens != 12 || resp.OutputTokens != 8 {
		t.Errorf("Usage = %+v", resp)
	}
	if string(fake.lastParams.Model) != "claude-default" {
		t.Errorf("Model = %q, want claude-default", fake.lastParams.Model)
	}
}

func TestAnthropicProviderCompletePropagatesError(t *testing.T) {
	fake := &fakeAnthropicMessages{err: errors.New("boom")}
	p := &AnthropicProvider{msg: fake, defaultModel: "m"}
	if _, err := p.Complete(context.Background(), Request{Prompt: "hi"}); err == nil {
		t.Fatal("expected error to propagate")
	}
}

func TestNewAnthropicProviderRequiresAPIKey(t *testing.T) {
	if _, err := NewAnthropicProvider("", "m"); err == nil {
		t.Fatal("expected error for empty api key")
	}
}
