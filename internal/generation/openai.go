package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/consilio/consilio/internal/common/config"
	"github.com/consilio/consilio/internal/common/logger"
)

// ErrNoAPIKey is returned when constructing the client without credentials
var ErrNoAPIKey = errors.New("OpenAI API key is required")

// OpenAIGenerator implements Generator against the OpenAI chat API with
// bounded retries and a per-attempt timeout
type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	temperature float32
	maxRetries  int
	retryDelay  time.Duration
	timeout     time.Duration
	logger      *logger.Logger
}

var _ Generator = (*OpenAIGenerator)(nil)

// NewOpenAIGenerator creates a generator from configuration
func NewOpenAIGenerator(cfg config.OpenAIConfig, log *logger.Logger) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}

	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	timeout := cfg.TimeoutDuration()
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &OpenAIGenerator{
		client:      openai.NewClient(cfg.APIKey),
		model:       model,
		temperature: cfg.Temperature,
		maxRetries:  cfg.MaxRetries,
		retryDelay:  2 * time.Second,
		timeout:     timeout,
		logger:      log.WithFields(zap.String("component", "openai-generator")),
	}, nil
}

// Generate performs a chat completion. Attempts are retried with backoff;
// the caller's context cancels the whole call, including waits between
// attempts.
func (g *OpenAIGenerator) Generate(ctx context.Context, req *Request) (*Result, error) {
	messages := toChatMessages(BuildMessages(req))

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(calculateBackoff(g.retryDelay, attempt)):
			}
		}

		result, err := g.generateOnce(ctx, messages)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErr = fmt.Errorf("attempt %d: %w", attempt+1, err)
		g.logger.Warn("generation attempt failed",
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}

	return nil, fmt.Errorf("generation failed after %d attempts: %w", g.maxRetries+1, lastErr)
}

func (g *OpenAIGenerator) generateOnce(ctx context.Context, messages []openai.ChatCompletionMessage) (*Result, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.CreateChatCompletion(attemptCtx, openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    messages,
		Temperature: g.temperature,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("no completion choices returned")
	}

	return &Result{Content: resp.Choices[0].Message.Content}, nil
}

func toChatMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case MessageRoleSystem:
			role = openai.ChatMessageRoleSystem
		case MessageRoleAssistant:
			role = openai.ChatMessageRoleAssistant
		}
		out[i] = openai.ChatCompletionMessage{Role: role, Content: m.Content}
	}
	return out
}
