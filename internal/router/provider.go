package router

import "context"

// Request is a provider-agnostic completion request. It intentionally omits
// the rich multi-part message model goa-ai's model.Request carries (images,
// documents, citations, tool schemas) since the router's domain is
// text-in/text-out agent actions, not a general chat UI — see DESIGN.md for
// the simplification rationale.
type Request struct {
	SystemPrompt string
	Prompt       string
	Model        string
	MaxTokens    int
	Temperature  float64
}

// Response is a provider-agnostic completion result.
type Response struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// Provider is implemented by each tier's model adapters (anthropic, openai,
// bedrock, local), mirroring goa-ai's model.Client.Complete shape
// (features/model/anthropic/client.go, features/model/bedrock/client.go).
type Provider interface {
	Complete(ctx context.Context, req Request) (Response, error)
}
