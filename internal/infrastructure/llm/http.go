package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"copywriter/internal/domain/entity"
	"copywriter/internal/infrastructure/metrics"
)

// StatusError is a non-200 answer from a chat completions endpoint.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("llm api error: %d - %s", e.StatusCode, e.Body)
}

// HTTPClient posts plain chat completion requests to BaseURL. It suits gateways
// that are OpenAI shaped but need a custom auth header. 429 and 5xx answers and
// transport errors are retried under Settings.Retry.
type HTTPClient struct {
	apiKey      string
	url         string
	model       string
	authHeader  string
	temperature float64
	maxTokens   int
	retry       RetryPolicy
	client      *http.Client
	logger      *slog.Logger
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

func NewHTTPClient(s Settings, logger *slog.Logger) (*HTTPClient, error) {
	if err := validate(s); err != nil {
		return nil, err
	}
	if s.BaseURL == "" {
		return nil, errors.New("http provider needs llm.base_url")
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	header := s.AuthHeader
	if header == "" {
		header = "Authorization"
	}
	return &HTTPClient{
		apiKey:      s.APIKey,
		url:         s.BaseURL,
		model:       s.Model,
		authHeader:  header,
		temperature: s.Temperature,
		maxTokens:   s.MaxTokens,
		retry:       s.Retry,
		client:      &http.Client{Timeout: timeout},
		logger:      logger,
	}, nil
}

func (g *HTTPClient) Complete(ctx context.Context, prompt entity.Prompt) (string, error) {
	metrics.IncLLMRequest(g.model, string(prompt.Kind))
	start := time.Now()
	defer func() { metrics.ObserveLLMDuration(g.model, time.Since(start)) }()

	request := g.buildRequest(prompt)
	return withRetry(ctx, g.retry, g.logger, string(prompt.Kind), func() (string, error) {
		body, err := g.makeRequest(ctx, request)
		if err != nil {
			return "", err
		}

		content := gjson.GetBytes(body, "choices.0.message.content")
		if !content.Exists() || strings.TrimSpace(content.String()) == "" {
			metrics.IncError("llm", "empty_response")
			return "", ErrEmptyResponse
		}
		return content.String(), nil
	})
}

func (g *HTTPClient) buildRequest(prompt entity.Prompt) chatRequest {
	req := chatRequest{
		Model:       g.model,
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
	}
	if prompt.System != "" {
		req.Messages = append(req.Messages, chatMessage{Role: "system", Content: prompt.System})
	}
	for _, h := range prompt.History {
		role := h.Role
		if role == "" {
			role = "user"
		}
		req.Messages = append(req.Messages, chatMessage{Role: role, Content: h.Content})
	}
	req.Messages = append(req.Messages, chatMessage{Role: "user", Content: prompt.User})
	return req
}

func (g *HTTPClient) makeRequest(ctx context.Context, request chatRequest) ([]byte, error) {
	jsonData, err := json.Marshal(request)
	if err != nil {
		metrics.IncError("llm", "marshal_request")
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(jsonData))
	if err != nil {
		metrics.IncError("llm", "create_request")
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(g.authHeader, "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		metrics.IncError("llm", "http_do")
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.IncError("llm", "read_body")
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		metrics.IncError("llm", fmt.Sprintf("api_error_%d", resp.StatusCode))
		msg := gjson.GetBytes(body, "error.message").String()
		if msg == "" {
			msg = strings.TrimSpace(string(body))
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: msg}
	}
	if !gjson.ValidBytes(body) {
		metrics.IncError("llm", "decode_response")
		return nil, errors.New("failed to decode response: invalid json")
	}
	return body, nil
}
