// ABOUTME: OpenAI-backed message rewriter used by the gpt identity setting
// ABOUTME: Rewords text into a more generic register while keeping its meaning
package llm

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/harper/veil/internal/util"
)

// DefaultModel is the default model for rewrite completions
const DefaultModel = "gpt-4.1"

// DefaultProtectedNoun is the proper noun the rewriter is told to leave untouched
const DefaultProtectedNoun = "code guessing"

const systemTemplate = `As a bot that helps people remain anonymous, you rewrite messages to sound more generic. Your responses should always have the same meaning, perspective and similar tone to the original message, but with different wording and grammar. Please take care to preserve the meaning of programming- and computer-related terms. %q is a proper noun and should never be changed. Chat markup should also be left alone.`

// ClientConfig holds configuration for the rewriter
type ClientConfig struct {
	APIKey         string
	Model          string
	ProtectedNoun  string
	RequestTimeout time.Duration
	MaxRetries     int
	RetryDelay     time.Duration
}

// DefaultConfig returns the default rewriter configuration
func DefaultConfig(apiKey string) *ClientConfig {
	model := os.Getenv("VEIL_OPENAI_MODEL")
	if model == "" {
		model = DefaultModel
	}

	return &ClientConfig{
		APIKey:         apiKey,
		Model:          model,
		ProtectedNoun:  DefaultProtectedNoun,
		RequestTimeout: 30 * time.Second,
		MaxRetries:     3,
		RetryDelay:     time.Second * 2,
	}
}

// Rewriter wraps the OpenAI API client with retry logic
type Rewriter struct {
	client     *openai.Client
	model      string
	system     string
	timeout    time.Duration
	maxRetries int
	retryDelay time.Duration
}

// NewRewriter creates a rewriter with the given API key using default configuration
func NewRewriter(apiKey string) (*Rewriter, error) {
	return NewRewriterWithConfig(DefaultConfig(apiKey))
}

// NewRewriterWithConfig creates a rewriter with custom configuration
func NewRewriterWithConfig(config *ClientConfig) (*Rewriter, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	noun := config.ProtectedNoun
	if noun == "" {
		noun = DefaultProtectedNoun
	}

	timeout := config.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Rewriter{
		client:     openai.NewClient(config.APIKey),
		model:      config.Model,
		system:     fmt.Sprintf(systemTemplate, noun),
		timeout:    timeout,
		maxRetries: config.MaxRetries,
		retryDelay: config.RetryDelay,
	}, nil
}

// Rewrite rewords text through the chat completion API. The result keeps
// the original meaning and tone but different wording, so downstream case
// and punctuation filters still apply to it.
func (r *Rewriter) Rewrite(ctx context.Context, text string) (string, error) {
	var lastErr error

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(util.Backoff(r.retryDelay, attempt)):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		reqCtx, cancel := context.WithTimeout(ctx, r.timeout)

		resp, err := r.client.CreateChatCompletion(reqCtx, openai.ChatCompletionRequest{
			Model: r.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleSystem,
					Content: r.system,
				},
				{
					Role:    openai.ChatMessageRoleUser,
					Content: text,
				},
			},
		})
		cancel()

		if err != nil {
			lastErr = fmt.Errorf("attempt %d: %w", attempt+1, err)
			continue
		}

		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("attempt %d: no choices returned", attempt+1)
			continue
		}

		return strings.TrimSpace(resp.Choices[0].Message.Content), nil
	}

	return "", fmt.Errorf("failed to rewrite text after %d attempts: %w", r.maxRetries+1, lastErr)
}
