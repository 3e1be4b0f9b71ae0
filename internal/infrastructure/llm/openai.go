package llm

import (
	"context"
	"fmt"
	"time"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"copywriter/internal/domain/entity"
	"copywriter/internal/infrastructure/metrics"
)

// OpenAIClient talks to any OpenAI compatible chat completions API through the
// official SDK. Retries are left to the SDK, bounded by Settings.Retry.
type OpenAIClient struct {
	client      openai.Client
	model       string
	temperature float64
	maxTokens   int
}

func NewOpenAIClient(s Settings) (*OpenAIClient, error) {
	if err := validate(s); err != nil {
		return nil, err
	}
	opts := []option.RequestOption{
		option.WithAPIKey(s.APIKey),
		option.WithMaxRetries(s.Retry.retries()),
	}
	if s.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(s.BaseURL))
	}
	if s.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(s.Timeout))
	}
	return &OpenAIClient{
		client:      openai.NewClient(opts...),
		model:       s.Model,
		temperature: s.Temperature,
		maxTokens:   s.MaxTokens,
	}, nil
}

func (o *OpenAIClient) params(prompt entity.Prompt) openai.ChatCompletionNewParams {
	var msgs []openai.ChatCompletionMessageParamUnion
	if prompt.System != "" {
		msgs = append(msgs, openai.SystemMessage(prompt.System))
	}
	for _, h := range prompt.History {
		switch h.Role {
		case "assistant":
			msgs = append(msgs, openai.ChatCompletionMessageParamOfAssistant(h.Content))
		case "system":
			msgs = append(msgs, openai.SystemMessage(h.Content))
		default:
			msgs = append(msgs, openai.UserMessage(h.Content))
		}
	}
	msgs = append(msgs, openai.UserMessage(prompt.User))

	p := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(o.model),
		Messages:    msgs,
		Temperature: openai.Float(o.temperature),
	}
	if o.maxTokens > 0 {
		p.MaxTokens = openai.Int(int64(o.maxTokens))
	}
	return p
}

func (o *OpenAIClient) Complete(ctx context.Context, prompt entity.Prompt) (string, error) {
	metrics.IncLLMRequest(o.model, string(prompt.Kind))
	start := time.Now()
	defer func() { metrics.ObserveLLMDuration(o.model, time.Since(start)) }()

	resp, err := o.client.Chat.Completions.New(ctx, o.params(prompt))
	if err != nil {
		metrics.IncError("llm", "chat_completion")
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		metrics.IncError("llm", "empty_response")
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream sends each content delta to onToken as it arrives and returns the
// accumulated text.
func (o *OpenAIClient) Stream(ctx context.Context, prompt entity.Prompt, onToken func(string)) (string, error) {
	metrics.IncLLMRequest(o.model, string(prompt.Kind))
	start := time.Now()
	defer func() { metrics.ObserveLLMDuration(o.model, time.Since(start)) }()

	stream := o.client.Chat.Completions.NewStreaming(ctx, o.params(prompt))
	defer stream.Close()

	acc := openai.ChatCompletionAccumulator{}
	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" && onToken != nil {
			onToken(chunk.Choices[0].Delta.Content)
		}
	}
	if err := stream.Err(); err != nil {
		metrics.IncError("llm", "chat_stream")
		return "", fmt.Errorf("chat completion stream: %w", err)
	}
	if len(acc.Choices) == 0 || acc.Choices[0].Message.Content == "" {
		metrics.IncError("llm", "empty_response")
		return "", ErrEmptyResponse
	}
	return acc.Choices[0].Message.Content, nil
}
