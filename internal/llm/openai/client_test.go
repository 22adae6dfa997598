package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/setupdesk/setup-desk/internal/llm"
)

func TestCompleteSuccess(t *testing.T) {
	var receivedAuth string
	var receivedModel string
	var receivedPrompt string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		receivedAuth = req.Header.Get("Authorization")
		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		receivedModel = body.Model
		if len(body.Messages) > 0 {
			receivedPrompt = body.Messages[0].Content
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "  completion text  "}},
			},
		})
	}))
	defer server.Close()

	client := New(Config{
		APIKey:  "secret",
		BaseURL: server.URL,
		Model:   "gpt-4o-mini",
	}, testLogger())

	reply, err := client.Complete(context.Background(), "classify this")
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if reply != "completion text" {
		t.Fatalf("unexpected reply: %q", reply)
	}
	if receivedAuth != "Bearer secret" {
		t.Fatalf("unexpected auth header: %q", receivedAuth)
	}
	if receivedModel != "gpt-4o-mini" {
		t.Fatalf("unexpected model: %q", receivedModel)
	}
	if receivedPrompt != "classify this" {
		t.Fatalf("unexpected prompt: %q", receivedPrompt)
	}
}

func TestCompleteMissingAPIKey(t *testing.T) {
	client := New(Config{BaseURL: "https://api.example.com/v1"}, testLogger())
	_, err := client.Complete(context.Background(), "hello")
	if !errors.Is(err, llm.ErrUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}

func TestCompleteNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := New(Config{APIKey: "secret", BaseURL: server.URL}, testLogger())
	if _, err := client.Complete(context.Background(), "hello"); err == nil {
		t.Fatal("expected error on non-2xx status")
	}
}

func TestCompleteEmptyPromptShortCircuits(t *testing.T) {
	client := New(Config{APIKey: "secret", BaseURL: "https://api.example.com/v1"}, testLogger())
	reply, err := client.Complete(context.Background(), "   ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "" {
		t.Fatalf("expected empty reply, got %q", reply)
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
