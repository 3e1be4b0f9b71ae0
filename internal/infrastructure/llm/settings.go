package llm

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"copywriter/internal/domain/repository"
)

// Settings is everything a client needs; nothing is read from the environment here.
type Settings struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	AuthHeader  string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	Retry       RetryPolicy
}

const (
	ProviderOpenAI   = "openai"
	ProviderDeepSeek = "deepseek"
	ProviderGroq     = "groq"
	ProviderHTTP     = "http"
	ProviderMock     = "mock"
)

var defaultBaseURLs = map[string]string{
	ProviderOpenAI:   "https://api.openai.com/v1/",
	ProviderDeepSeek: "https://api.deepseek.com/v1/",
	ProviderGroq:     "https://api.groq.com/openai/v1/",
}

var ErrEmptyResponse = errors.New("model returned no content")

// New builds the client for s.Provider.
func New(s Settings, logger *slog.Logger) (repository.LLMClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	provider := strings.ToLower(strings.TrimSpace(s.Provider))

	var (
		client repository.LLMClient
		err    error
	)
	switch provider {
	case ProviderOpenAI, ProviderDeepSeek, ProviderGroq:
		if s.BaseURL == "" {
			s.BaseURL = defaultBaseURLs[provider]
		}
		client, err = NewOpenAIClient(s)
	case ProviderHTTP:
		client, err = NewHTTPClient(s, logger)
	case ProviderMock, "":
		return NewMockLLM(), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", s.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s client: %w", provider, err)
	}

	logger.Info("llm client ready", "provider", provider, "model", s.Model, "base_url", s.BaseURL, "max_attempts", max(1, s.Retry.MaxAttempts))
	return client, nil
}

func validate(s Settings) error {
	if s.APIKey == "" {
		return errors.New("api key missing; provide llm.api_key or LLM_API_KEY")
	}
	if s.Model == "" {
		return errors.New("llm model is required")
	}
	return nil
}
