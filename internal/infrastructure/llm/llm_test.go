package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"copywriter/internal/domain/entity"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestHTTPClient_Complete(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Auth-Token") != "Bearer secret" {
			t.Errorf("auth header = %q", r.Header.Get("X-Auth-Token"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"choices": [{"message": {"role": "assistant", "content": "hello copy"}}]}`)
	}))
	defer srv.Close()

	c, err := NewHTTPClient(Settings{APIKey: "secret", Model: "m1", BaseURL: srv.URL, AuthHeader: "X-Auth-Token", Temperature: 0.3}, discard())
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}
	text, err := c.Complete(context.Background(), entity.Prompt{
		Kind:    entity.PromptKindDraft,
		System:  "sys",
		User:    "write",
		History: []entity.Message{{Content: "earlier"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if text != "hello copy" {
		t.Errorf("text = %q", text)
	}
	if got.Model != "m1" || got.Temperature != 0.3 || len(got.Messages) != 3 {
		t.Fatalf("request = %+v", got)
	}
	if got.Messages[0].Role != "system" || got.Messages[1].Role != "user" || got.Messages[2].Content != "write" {
		t.Errorf("messages = %+v", got.Messages)
	}
}

func TestHTTPClient_Errors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantErr    string
		statusType bool
	}{
		{"api error message", http.StatusTooManyRequests, `{"error": {"message": "slow down"}}`, "429 - slow down", true},
		{"plain body", http.StatusBadGateway, "upstream gone", "502 - upstream gone", true},
		{"empty content", http.StatusOK, `{"choices": []}`, ErrEmptyResponse.Error(), false},
		{"invalid json", http.StatusOK, `{"choices": [`, "invalid json", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				io.WriteString(w, tc.body)
			}))
			defer srv.Close()

			c, err := NewHTTPClient(Settings{APIKey: "k", Model: "m", BaseURL: srv.URL}, discard())
			if err != nil {
				t.Fatalf("NewHTTPClient: %v", err)
			}
			_, err = c.Complete(context.Background(), entity.Prompt{User: "x"})
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("err = %v, want containing %q", err, tc.wantErr)
			}
			var se *StatusError
			if errors.As(err, &se) != tc.statusType {
				t.Errorf("StatusError presence mismatch for %v", err)
			}
		})
	}
}

func TestOpenAIClient_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("authorization = %q", r.Header.Get("Authorization"))
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		if body["model"] != "gpt-test" {
			t.Errorf("model = %v", body["model"])
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id": "c1", "object": "chat.completion", "created": 1, "model": "gpt-test",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "{\"ok\": true}"}}]}`)
	}))
	defer srv.Close()

	c, err := NewOpenAIClient(Settings{APIKey: "sk-test", Model: "gpt-test", BaseURL: srv.URL + "/v1/"})
	if err != nil {
		t.Fatalf("NewOpenAIClient: %v", err)
	}
	text, err := c.Complete(context.Background(), entity.Prompt{Kind: entity.PromptKindScore, System: "s", User: "u"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if text != `{"ok": true}` {
		t.Errorf("text = %q", text)
	}
}

func TestOpenAIClient_Stream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"Hello", " world"} {
			io.WriteString(w, `data: {"id":"c1","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"content":"`+part+`"}}]}`+"\n\n")
		}
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c, err := NewOpenAIClient(Settings{APIKey: "k", Model: "m", BaseURL: srv.URL + "/v1/"})
	if err != nil {
		t.Fatalf("NewOpenAIClient: %v", err)
	}
	var tokens []string
	text, err := c.Stream(context.Background(), entity.Prompt{User: "u"}, func(tok string) { tokens = append(tokens, tok) })
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if text != "Hello world" || len(tokens) != 2 {
		t.Errorf("text = %q, tokens = %v", text, tokens)
	}
}

// flakyServer answers failures times with status before returning a completion.
func flakyServer(t *testing.T, failures int32, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= failures {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After-Ms", "1")
			w.WriteHeader(status)
			io.WriteString(w, `{"error": {"message": "try later"}}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id": "c1", "object": "chat.completion", "created": 1, "model": "m",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "ok"}}]}`)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestHTTPClient_Retry(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
	tests := []struct {
		name      string
		failures  int32
		status    int
		wantCalls int32
		wantErr   bool
	}{
		{"recovers", 2, http.StatusServiceUnavailable, 3, false},
		{"gives up", 5, http.StatusServiceUnavailable, 3, true},
		{"rate limit retried", 1, http.StatusTooManyRequests, 2, false},
		{"client error not retried", 5, http.StatusBadRequest, 1, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv, calls := flakyServer(t, tc.failures, tc.status)
			c, err := NewHTTPClient(Settings{APIKey: "k", Model: "m", BaseURL: srv.URL, Retry: policy}, discard())
			if err != nil {
				t.Fatalf("NewHTTPClient: %v", err)
			}
			text, err := c.Complete(context.Background(), entity.Prompt{User: "x"})
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if !tc.wantErr && text != "ok" {
				t.Errorf("text = %q", text)
			}
			if tc.wantErr {
				var se *StatusError
				if !errors.As(err, &se) || se.StatusCode != tc.status {
					t.Errorf("err = %v, want StatusError %d", err, tc.status)
				}
			}
			if got := calls.Load(); got != tc.wantCalls {
				t.Errorf("calls = %d, want %d", got, tc.wantCalls)
			}
		})
	}
}

func TestHTTPClient_RetryStopsOnCancel(t *testing.T) {
	srv, calls := flakyServer(t, 100, http.StatusServiceUnavailable)
	policy := RetryPolicy{MaxAttempts: 50, BaseDelay: time.Hour, MaxDelay: time.Hour}
	c, err := NewHTTPClient(Settings{APIKey: "k", Model: "m", BaseURL: srv.URL, Retry: policy}, discard())
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = c.Complete(ctx, entity.Prompt{User: "x"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("retry wait ignored the context")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestOpenAIClient_Retry(t *testing.T) {
	tests := []struct {
		name      string
		attempts  int
		wantCalls int32
		wantErr   bool
	}{
		{"sdk retries up to the policy", 3, 3, false},
		{"single attempt", 1, 1, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv, calls := flakyServer(t, 2, http.StatusServiceUnavailable)
			c, err := NewOpenAIClient(Settings{APIKey: "k", Model: "m", BaseURL: srv.URL + "/v1/", Retry: RetryPolicy{MaxAttempts: tc.attempts}})
			if err != nil {
				t.Fatalf("NewOpenAIClient: %v", err)
			}
			_, err = c.Complete(context.Background(), entity.Prompt{User: "u"})
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if got := calls.Load(); got != tc.wantCalls {
				t.Errorf("calls = %d, want %d", got, tc.wantCalls)
			}
		})
	}
}

func TestNew_HTTPProviderRetries(t *testing.T) {
	srv, calls := flakyServer(t, 1, http.StatusBadGateway)
	c, err := New(Settings{
		Provider: "http", APIKey: "k", Model: "m", BaseURL: srv.URL,
		Retry: RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond},
	}, discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Complete(context.Background(), entity.Prompt{User: "x"}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		s       Settings
		wantErr bool
	}{
		{"mock", Settings{Provider: "mock"}, false},
		{"empty is mock", Settings{}, false},
		{"openai", Settings{Provider: "OpenAI", APIKey: "k", Model: "gpt-4o-mini"}, false},
		{"groq with retry", Settings{Provider: "groq", APIKey: "k", Model: "llama", Retry: RetryPolicy{MaxAttempts: 3}}, false},
		{"deepseek without key", Settings{Provider: "deepseek", Model: "deepseek-chat"}, true},
		{"http without url", Settings{Provider: "http", APIKey: "k", Model: "m"}, true},
		{"unknown", Settings{Provider: "bard"}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, err := New(tc.s, discard())
			if (err != nil) != tc.wantErr {
				t.Fatalf("New err = %v, wantErr %v", err, tc.wantErr)
			}
			if err == nil && c == nil {
				t.Error("nil client without error")
			}
		})
	}
}

func TestMockLLM(t *testing.T) {
	m := NewMockLLM()
	draft, err := m.Complete(context.Background(), entity.Prompt{Kind: entity.PromptKindDraft, User: "You are a professional copywriter specializing in the PAS formula."})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if !strings.HasPrefix(draft, "## PAS draft") {
		t.Errorf("draft = %q", draft)
	}
	scores, _ := m.Complete(context.Background(), entity.Prompt{Kind: entity.PromptKindScore})
	if !json.Valid([]byte(scores)) {
		t.Errorf("scores are not JSON: %s", scores)
	}
}
