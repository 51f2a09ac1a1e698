package router

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

type fakeBedrockRuntime struct {
	lastInput *bedrockruntime.ConverseInput
	output    *bedrockruntime.ConverseOutput
	err       error
}

func (f *fakeBedrockRuntime) Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.lastInput = params
	return f.output, f.err
}

func TestBedrockProviderCompleteExtractsTextAndUsage(t *testing.T) {
	fake := &fakeBedrockRuntime{
		output: &bedrockruntime.ConverseOutput{
			Output: &brtypes.ConverseOutputMemberMessage{
				Value: brtypes.Message{
					Role: brtypes.ConversationRoleAssistant,
					Content: []brtypes.ContentBlock{
						&brtypes.ContentBlockMemberText{Value: "hello "},
						&brtypes.ContentBlockMemberText{Value: "bedrock"},
					},
				},
			},
			Usage: &brtypes.TokenUsage{
				InputTokens:  aws.Int32(10),
				OutputTokens: aws.Int32(4),
			},
		},
	}
	p := &BedrockProvider{runtime: fake, defaultModel: "nova-default"}

	resp, err := p.Complete(context.Background(), Request{Prompt: "hi", SystemPrompt: "be brief"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != "hello bedrock" {
		t.Errorf("Text = %q", resp.Text)
	}
	if resp.InputTokens != 10 || resp.OutputTokens != 4 {
		t.Errorf("Usage = %+v", resp)
	}
	if *fake.lastInput.ModelId != "nova-default" {
		t.Errorf("ModelId = %q, want nova-default", *fake.lastInput.ModelId)
	}
}

func TestBedrockProviderCompletePropagatesError(t *testing.T) {
	fake := &fakeBedrockRuntime{err: errors.New("boom")}
	p := &BedrockProvider{runtime: fake, defaultModel: "m"}
	if _, err := p.Complete(context.Background(), Request{Prompt: "hi"}); err == nil {
		t.Fatal("expected error to propagate")
	}
}

func TestNewBedrockProviderRequiresRuntime(t *testing.T) {
	if _, err := NewBedrockProvider(nil, "m"); err == nil {
		t.Fatal("expected error for nil runtime")
	}
}
