// Package llm wraps the chat-completions API used for coaching guidance,
// session summaries and graph extraction. The endpoint is configurable so
// any OpenAI-compatible provider works.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/reflective-journal-kernel/internal/jsonx"
)

// ErrTimeout is returned when a request exceeded the configured request
// timeout. Callers can distinguish it from provider errors.
var ErrTimeout = errors.New("llm: request timed out")

// Message is one turn of conversation history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Roles for Message.
const (
	RoleUser      = openai.ChatMessageRoleUser
	RoleAssistant = openai.ChatMessageRoleAssistant
)

// Config holds the client configuration.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	MaxRetries int
	Timeout    time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:    "https://api.openai.com/v1",
		Model:      "gpt-4o-mini",
		MaxRetries: 3,
		Timeout:    120 * time.Second,
	}
}

// Client is the chat-completions client.
type Client struct {
	api    *openai.Client
	config Config
	logger *zap.Logger
}

// NewClient creates a client. An empty API key is allowed at construction
// time; calls will fail with the provider's auth error.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = cfg.BaseURL

	return &Client{
		api:    openai.NewClientWithConfig(clientConfig),
		config: cfg,
		logger: logger.Named("llm"),
	}
}

// Chat sends a guidance-style request: system prompt, prior history, and
// the user's new message. Temperature suits conversational replies.
func (c *Client) Chat(ctx context.Context, systemPrompt string, history []Message, userMsg string) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt,
	})
	for _, m := range history {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: userMsg,
	})

	return c.complete(ctx, openai.ChatCompletionRequest{
		Model:       c.config.Model,
		Messages:    messages,
		Temperature: 0.7,
	})
}

// ExtractJSON sends a structured-output request at low temperature and
// returns the raw JSON bytes of the reply, with any markdown code fences
// stripped. The bytes are validated as JSON before returning.
func (c *Client) ExtractJSON(ctx context.Context, systemPrompt, text string) ([]byte, error) {
	reply, err := c.complete(ctx, openai.ChatCompletionRequest{
		Model: c.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		Temperature: 0.1,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, err
	}

	raw := []byte(StripFences(reply))
	if !jsonx.Valid(raw) {
		return nil, fmt.Errorf("model reply is not valid JSON (%d bytes)", len(raw))
	}
	return raw, nil
}

// complete runs one request with the fixed timeout and retry/backoff.
func (c *Client) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	var reply string
	err := c.doWithRetry(ctx, func(ctx context.Context) error {
		resp, err := c.api.CreateChatCompletion(ctx, req)
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("empty completion response")
		}
		reply = resp.Choices[0].Message.Content
		return nil
	})
	return reply, err
}

func (c *Client) doWithRetry(ctx context.Context, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			c.logger.Debug("retrying request",
				zap.Int("attempt", attempt), zap.Duration("backoff", backoff))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		reqCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
		err := fn(reqCtx)
		cancel()
		if err == nil {
			return nil
		}
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			// Request-level timeout, not caller cancellation.
			lastErr = fmt.Errorf("%w after %s", ErrTimeout, c.config.Timeout)
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err
	}
	return lastErr
}

// StripFences removes a surrounding markdown code fence (```json ... ```)
// from a model reply, if present.
func StripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	first := strings.IndexByte(text, '\n')
	last := strings.LastIndex(text, "```")
	if first == -1 || last <= first {
		return text
	}
	return strings.TrimSpace(text[first+1 : last])
}
