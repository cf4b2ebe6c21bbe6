package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"extracto/internal/config"
)

func completionBody(content string) map[string]any {
	return map[string]any{
		"choices": []any{
			map[string]any{
				"message": map[string]any{
					"content": content,
				},
			},
		},
	}
}

func TestGenerateReturnsContent(t *testing.T) {
	var gotBody chatCompletionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer test" {
			t.Fatalf("unexpected authorization header %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if err := json.NewEncoder(w).Encode(completionBody("result text")); err != nil {
			t.Fatalf("encode response: %v", err)
		}
	}))
	defer server.Close()

	client := NewClient(config.LLM{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	content, err := client.Generate(context.Background(), Request{
		System:       "system prompt",
		Prompt:       "user prompt",
		Temperature:  0.1,
		MaxTokens:    2000,
		ResponseJSON: true,
	})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if content != "result text" {
		t.Fatalf("unexpected content %q", content)
	}
	if gotBody.Model != "demo-model" {
		t.Fatalf("unexpected model %q", gotBody.Model)
	}
	if gotBody.Temperature != 0.1 || gotBody.MaxTokens != 2000 {
		t.Fatalf("request knobs not forwarded: %+v", gotBody)
	}
	if gotBody.ResponseFormat["type"] != "json_object" {
		t.Fatalf("expected json response format, got %v", gotBody.ResponseFormat)
	}
	if len(gotBody.Messages) != 2 || gotBody.Messages[0].Role != "system" {
		t.Fatalf("unexpected messages %+v", gotBody.Messages)
	}
}

func TestGenerateRetriesOnServerError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(completionBody("second try"))
	}))
	defer server.Close()

	client := NewClient(
		config.LLM{APIKey: "test", BaseURL: server.URL, Model: "demo"},
		WithSleeper(func(time.Duration) {}),
	)
	content, err := client.Generate(context.Background(), Request{Prompt: "hello"})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if content != "second try" {
		t.Fatalf("unexpected content %q", content)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
}

func TestGenerateDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient(
		config.LLM{APIKey: "test", BaseURL: server.URL, Model: "demo"},
		WithSleeper(func(time.Duration) {}),
	)
	if _, err := client.Generate(context.Background(), Request{Prompt: "hello"}); err == nil {
		t.Fatal("expected error for http 400")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected 1 call, got %d", calls.Load())
	}
}

func TestGenerateRequiresPrompt(t *testing.T) {
	client := NewClient(config.LLM{APIKey: "test", BaseURL: "http://localhost", Model: "demo"})
	if _, err := client.Generate(context.Background(), Request{}); err == nil {
		t.Fatal("expected error for empty prompt")
	}
}

func TestParseRetryAfterSeconds(t *testing.T) {
	delay, ok := parseRetryAfter("3")
	if !ok || delay != 3*time.Second {
		t.Fatalf("unexpected retry-after %v %v", delay, ok)
	}
	if _, ok := parseRetryAfter(""); ok {
		t.Fatal("expected empty header to be ignored")
	}
}

func TestDecodeJSONHandlesCodeFences(t *testing.T) {
	cases := []struct {
		name    string
		payload string
	}{
		{"plain", `{"title":"Report"}`},
		{"fenced", "```json\n{\"title\":\"Report\"}\n```"},
		{"prose", "Here is the result: {\"title\":\"Report\"} as requested."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var parsed struct {
				Title string `json:"title"`
			}
			if err := DecodeJSON(tc.payload, &parsed); err != nil {
				t.Fatalf("DecodeJSON failed: %v", err)
			}
			if parsed.Title != "Report" {
				t.Fatalf("unexpected title %q", parsed.Title)
			}
		})
	}
}

func TestDecodeJSONRejectsGarbage(t *testing.T) {
	var target map[string]any
	if err := DecodeJSON("not json at all", &target); err == nil {
		t.Fatal("expected decode error")
	}
	if err := DecodeJSON("", &target); err == nil {
		t.Fatal("expected error for empty payload")
	}
}
