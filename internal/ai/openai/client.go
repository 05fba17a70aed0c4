// Package openai implements ai.Generator on top of any OpenAI compatible
// chat completion API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/spigell/career-minimax/internal/logger"
	"github.com/spigell/career-minimax/internal/utils"
)

const (
	Provider            = "openai"
	defaultModel        = goopenai.GPT4oMini
	defaultMaxRetries   = 3
	baseRetryDelay      = 2 * time.Second
	samplingTemperature = 0.2
)

type completer interface {
	CreateChatCompletion(ctx context.Context, req goopenai.ChatCompletionRequest) (goopenai.ChatCompletionResponse, error)
}

// Config selects the model and endpoint. BaseURL allows compatible servers.
type Config struct {
	APIKey     string
	Model      string
	BaseURL    string
	MaxRetries int
}

type Generator struct {
	client     completer
	model      string
	maxRetries int
	wait       func(ctx context.Context, d time.Duration) error
	logger     *zap.Logger
}

func NewGenerator(cfg Config, log *zap.Logger) (*Generator, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("openai api key is required")
	}

	clientCfg := goopenai.DefaultConfig(apiKey)
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		clientCfg.BaseURL = strings.TrimRight(base, "/")
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = defaultMaxRetries
	}

	return &Generator{
		client:     goopenai.NewClientWithConfig(clientCfg),
		model:      model,
		maxRetries: retries,
		logger:     logger.WithCommonFields(log, Provider, model),
	}, nil
}

// GenerateContent sends a system and a user message and returns the first
// choice. Rate limits and server errors are retried with backoff.
func (g *Generator) GenerateContent(ctx context.Context, system, message string) (string, error) {
	if g == nil || g.client == nil {
		return "", errors.New("openai generator is not initialized")
	}

	message = strings.TrimSpace(message)
	if message == "" {
		return "", errors.New("message must not be empty")
	}

	var messages []goopenai.ChatCompletionMessage
	if system = strings.TrimSpace(system); system != "" {
		messages = append(messages, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleSystem, Content: system})
	}
	messages = append(messages, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleUser, Content: message})

	req := goopenai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: samplingTemperature,
		Messages:    messages,
	}

	wait := g.wait
	if wait == nil {
		wait = utils.WaitFor
	}
	log := logger.WithFields(g.logger)

	var lastErr error
	for attempt := 1; attempt <= g.maxRetries; attempt++ {
		start := time.Now()
		resp, err := g.client.CreateChatCompletion(ctx, req)
		if err == nil {
			log.Debug("chat completion",
				zap.Duration("latency", time.Since(start)),
				zap.Int("total_tokens", resp.Usage.TotalTokens),
			)
			if len(resp.Choices) == 0 {
				return "", errors.New("no response from openai")
			}
			output := strings.TrimSpace(resp.Choices[0].Message.Content)
			if output == "" {
				return "", errors.New("openai returned empty response")
			}
			return output, nil
		}

		lastErr = fmt.Errorf("openai api error: %w", err)
		if !temporary(err) || attempt == g.maxRetries {
			break
		}

		delay := baseRetryDelay << (attempt - 1)
		log.Warn("openai request failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := wait(ctx, delay); err != nil {
			return "", err
		}
	}

	return "", lastErr
}

func temporary(err error) bool {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= http.StatusInternalServerError
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= http.StatusInternalServerError
	}
	return false
}

func (g *Generator) Model() string {
	if g == nil {
		return ""
	}
	return g.model
}
