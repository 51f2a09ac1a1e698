package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLocalProviderCompleteParsesGenerateResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req localGenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Prompt != "hi" {
			t.Errorf("Prompt = %q, want hi", req.Prompt)
		}
		_ = json.NewEncoder(w).Encode(localGenerateResponse{
			Response:        "local answer",
			PromptEvalCount: 7,
			EvalCount:       3,
		})
	}))
	defer srv.Close()

	p := NewLocalProvider(srv.URL, "llama-default", 0)
	resp, err := p.Complete(context.Background(), Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != "local answer" {
		t.Errorf("Text = %q", resp.Text)
	}
	if resp.InputTokens != 7 || resp.OutputTokens != 3 {
		t.Errorf("Usage = %+v", resp)
	}
}

func TestLocalProviderCompleteReturnsErrorOnNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	p := NewLocalProvider(srv.URL, "m", 0)
	if _, err := p.Complete(context.Background(), Request{Prompt: "hi"}); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}
