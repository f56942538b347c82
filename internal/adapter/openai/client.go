// Package openai implements domain.Generator on any OpenAI-compatible chat
// completions endpoint (OpenAI, Groq, a local Ollama /v1), and
// domain.Transcriber on its audio transcriptions endpoint.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/couchcryptid/crisis-sim/internal/domain"
)

// Config selects the endpoint and sampling parameters.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration

	// TranscriptionModel is the speech-to-text model, e.g. "whisper-large-v3".
	TranscriptionModel string
}

// Client calls the chat completions API. It does not retry.
type Client struct {
	api    *goopenai.Client
	cfg    Config
	logger *slog.Logger
}

// NewClient creates a generation client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	oc := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.Timeout > 0 {
		oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		api:    goopenai.NewClientWithConfig(oc),
		cfg:    cfg,
		logger: logger,
	}
}

// Generate implements domain.Generator.
func (c *Client) Generate(ctx context.Context, req domain.GenerationRequest) (string, error) {
	messages := make([]goopenai.ChatCompletionMessage, 0, 2)
	if req.SystemRole != "" {
		messages = append(messages, goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleSystem,
			Content: req.SystemRole,
		})
	}
	messages = append(messages, goopenai.ChatCompletionMessage{
		Role:    goopenai.ChatMessageRoleUser,
		Content: req.UserPrompt,
	})

	maxTokens := c.cfg.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: c.cfg.Temperature,
		MaxTokens:   maxTokens,
		TopP:        req.TopP,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", domain.ErrGenerationUnavailable, describe(err), err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: response has no choices", domain.ErrGenerationUnavailable)
	}

	c.logger.Debug("chat completion",
		"dataset", req.Dataset,
		"model", resp.Model,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"finish_reason", resp.Choices[0].FinishReason,
		"duration", time.Since(start),
	)
	return resp.Choices[0].Message.Content, nil
}

// Transcribe implements domain.Transcriber.
func (c *Client) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	start := time.Now()
	resp, err := c.api.CreateTranscription(ctx, goopenai.AudioRequest{
		Model:    c.cfg.TranscriptionModel,
		FilePath: filename,
		Reader:   audio,
		Format:   goopenai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", domain.ErrTranscriptionUnavailable, describe(err), err)
	}

	c.logger.Debug("audio transcribed",
		"model", c.cfg.TranscriptionModel,
		"file", filename,
		"chars", len(resp.Text),
		"duration", time.Since(start),
	)
	return strings.TrimSpace(resp.Text), nil
}

// describe keeps the status code of API errors in the message.
func describe(err error) string {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Sprintf("api status %d: %s", apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Sprintf("request status %d: %v", reqErr.HTTPStatusCode, reqErr.Err)
	}
	return err.Error()
}
