package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// LocalProvider is a local_fast/local_quality tier Provider for self-hosted
// model servers that speak Ollama's native /api/generate endpoint rather than
// the OpenAI-compatible shim (NewOpenAICompatibleProvider covers that case).
// Grounded on the LM Studio HTTP embedding client's request/response cycle
// (internal/memory/embedding_lmstudio.go in the ODSapper-CLIAIRMONITOR pack).
type LocalProvider struct {
	baseURL      string
	defaultModel string
	client       *http.Client
}

func NewLocalProvider(baseURL, defaultModel string, timeout time.Duration) *LocalProvider {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &LocalProvider{
		baseURL:      strings.TrimRight(baseURL, "/"),
		defaultModel: defaultModel,
		client:       &http.Client{Timeout: timeout},
	}
}

type localGenerateRequest struct {
	Model   string  `json:"model"`
	Prompt  string  `json:"prompt"`
	System  string  `json:"system,omitempty"`
	Stream  bool    `json:"stream"`
	Options options `json:"options,omitempty"`
}

type options struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type localGenerateResponse struct {
	Response        string `json:"response"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

func (p *LocalProvider) Complete(ctx context.Context, req Request) (Response, error) {
	modelID := req.Model
	if modelID == "" {
		modelID = p.defaultModel
	}

	body, err := json.Marshal(localGenerateRequest{
		Model:  modelID,
		Prompt: req.Prompt,
		System: req.SystemPrompt,
		Stream: false,
		Options: options{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
		},
	})
	if err != nil {
		return Response{}, fmt.Errorf("router: marshal local request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("router: build local request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("router: local complete: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return Response{}, fmt.Errorf("router: local server error: %s - %s", resp.Status, string(respBody))
	}

	var out localGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Response{}, fmt.Errorf("router: decode local response: %w", err)
	}

	return Response{
		Text:         out.Response,
		InputTokens:  out.PromptEvalCount,
		OutputTokens: out.EvalCount,
	}, nil
}
