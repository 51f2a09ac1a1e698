package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// bedrockRuntimeClient mirrors the subset of *bedrockruntime.Client the
// provider needs, the same narrowing goa-ai's bedrock adapter applies to its
// RuntimeClient interface (features/model/bedrock/client.go).
type bedrockRuntimeClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockProvider is an api_fallback tier Provider backed by the AWS Bedrock
// Converse API.
type BedrockProvider struct {
	runtime      bedrockRuntimeClient
	defaultModel string
}

func NewBedrockProvider(runtime bedrockRuntimeClient, defaultModel string) (*BedrockProvider, error) {
	if runtime == nil {
		return nil, errors.New("router: bedrock runtime client is required")
	}
	if defaultModel == "" {
		return nil, errors.New("router: bedrock default model is required")
	}
	return &BedrockProvider{runtime: runtime, defaultModel: defaultModel}, nil
}

func (p *BedrockProvider) Complete(ctx context.Context, req Request) (Response, error) {
	modelID := req.Model
	if modelID == "" {
		modelID = p.defaultModel
	}

	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(modelID),
		Messages: []brtypes.Message{
			{
				Role: brtypes.ConversationRoleUser,
				Content: []brtypes.ContentBlock{
					&brtypes.ContentBlockMemberText{Value: req.Prompt},
				},
			},
		},
	}
	if req.SystemPrompt != "" {
		input.System = []brtypes.SystemContentBlock{
			&brtypes.SystemContentBlockMemberText{Value: req.SystemPrompt},
		}
	}
	if cfg := inferenceConfig(req.MaxTokens, req.Temperature); cfg != nil {
		input.InferenceConfig = cfg
	}

	output, err := p.runtime.Converse(ctx, input)
	if err != nil {
		return Response{}, fmt.Errorf("router: bedrock converse: %w", err)
	}

	return translateConverseOutput(output), nil
}

func inferenceConfig(maxTokens int, temperature float64) *brtypes.InferenceConfiguration {
	var cfg brtypes.InferenceConfiguration
	if maxTokens > 0 {
		cfg.MaxTokens = aws.Int32(int32(maxTokens))
	}
	if temperature > 0 {
		cfg.Temperature = aws.Float32(float32(temperature))
	}
	if cfg.MaxTokens == nil && cfg.Temperature == nil {
		return nil
	}
	return &cfg
}

func translateConverseOutput(output *bedrockruntime.ConverseOutput) Response {
	var resp Response
	if msg, ok := output.Output.(*brtypes.ConverseOutputMemberMessage); ok {
		for _, block := range msg.Value.Content {
			if tb, ok := block.(*brtypes.ContentBlockMemberText); ok {
				resp.Text += tb.Value
			}
		}
	}
	if usage := output.Usage; usage != nil {
		resp.InputTokens = int(ptrInt32(usage.InputTokens))
		resp.OutputTokens = int(ptrInt32(usage.OutputTokens))
	}
	return resp
}

func ptrInt32(p *int32) int32 {
	if p == nil {
		return 0
	}
	return *p
}
