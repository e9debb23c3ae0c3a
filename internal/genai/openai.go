package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/watcherhq/watcher/internal/config"
	"github.com/watcherhq/watcher/internal/models"
)

// OpenAIGenerator implements Generator on top of the OpenAI chat completions
// API.
type OpenAIGenerator struct {
	client  *openai.Client
	cfg     config.OpenAIConfig
	prompts *PromptTemplates
	logger  *slog.Logger
}

const (
	maxAttempts = 3
	baseDelay   = 1 * time.Second
)

// NewOpenAIGenerator creates a generator from the given configuration.
func NewOpenAIGenerator(cfg config.OpenAIConfig, logger *slog.Logger) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key not configured")
	}

	return &OpenAIGenerator{
		client:  openai.NewClient(cfg.APIKey),
		cfg:     cfg,
		prompts: NewPromptTemplates(),
		logger:  logger,
	}, nil
}

// GenerateConfig asks the model for an extraction config and validates the
// result before returning it. An unvalidated config is never returned.
func (g *OpenAIGenerator) GenerateConfig(ctx context.Context, url, description string) (models.ExtractionConfig, error) {
	if strings.TrimSpace(description) == "" {
		return models.ExtractionConfig{}, fmt.Errorf("%w: empty description", ErrInvalidGeneratedConfig)
	}

	raw, err := g.complete(ctx, g.prompts.ConfigSystemPrompt, g.prompts.BuildConfigPrompt(url, description), true)
	if err != nil {
		return models.ExtractionConfig{}, err
	}

	cfg, err := ParseConfigResponse(raw)
	if err != nil {
		g.logger.Warn("generated config rejected", "url", url, "error", err)
		return models.ExtractionConfig{}, err
	}

	g.logger.Info("config generated", "url", url, "fields", len(cfg.Fields))
	return cfg, nil
}

// GenerateSummary asks the model for a one-line summary of the diff.
func (g *OpenAIGenerator) GenerateSummary(ctx context.Context, diff models.Diff) (string, error) {
	if diff.Empty() {
		return "", fmt.Errorf("cannot summarize an empty diff")
	}

	raw, err := g.complete(ctx, g.prompts.SummarySystemPrompt, g.prompts.BuildSummaryPrompt(diff), false)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(raw), nil
}

// complete runs one chat completion with a per-call timeout and bounded
// retries on rate limiting. Transport-level failures map to
// ErrServiceUnavailable.
func (g *OpenAIGenerator) complete(ctx context.Context, system, user string, jsonMode bool) (string, error) {
	request := openai.ChatCompletionRequest{
		Model:       g.cfg.Model,
		Temperature: g.cfg.Temperature,
		MaxTokens:   g.cfg.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	}
	if jsonMode {
		request.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	var resp openai.ChatCompletionResponse
	var err error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		apiCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
		start := time.Now()
		resp, err = g.client.CreateChatCompletion(apiCtx, request)
		cancel()

		g.logger.Debug("openai call complete",
			"attempt", attempt+1,
			"duration_ms", time.Since(start).Milliseconds(),
			"success", err == nil,
		)

		if err == nil {
			break
		}

		if isRateLimited(err) && attempt < maxAttempts-1 {
			delay := baseDelay*time.Duration(1<<uint(attempt)) + time.Duration(rand.Intn(500))*time.Millisecond
			g.logger.Warn("openai rate limited, retrying",
				"attempt", attempt+1,
				"delay_ms", delay.Milliseconds(),
			)
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("%w: %v", ErrServiceUnavailable, ctx.Err())
			case <-time.After(delay):
			}
			continue
		}

		break
	}

	if err != nil {
		if isUnavailable(err) {
			return "", fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
		}
		return "", fmt.Errorf("openai api call failed: %w", err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("%w: empty completion from model %s", ErrInvalidGeneratedConfig, g.cfg.Model)
	}

	return resp.Choices[0].Message.Content, nil
}

// ParseConfigResponse decodes and validates a model response. Invalid output
// maps to ErrInvalidGeneratedConfig so the caller can route to manual entry.
func ParseConfigResponse(raw string) (models.ExtractionConfig, error) {
	cleaned := strings.TrimSpace(raw)
	// Models occasionally wrap the object in a markdown fence despite the
	// instructions; strip it rather than rejecting outright.
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var cfg models.ExtractionConfig
	if err := json.Unmarshal([]byte(cleaned), &cfg); err != nil {
		return models.ExtractionConfig{}, fmt.Errorf("%w: %v", ErrInvalidGeneratedConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return models.ExtractionConfig{}, fmt.Errorf("%w: %v", ErrInvalidGeneratedConfig, err)
	}

	return cfg, nil
}

func isRateLimited(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429
	}
	s := err.Error()
	return strings.Contains(s, "429") || strings.Contains(s, "Too Many Requests") || strings.Contains(s, "Rate limit")
}

func isUnavailable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode >= 500 || apiErr.HTTPStatusCode == 429
	}
	return false
}
