package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const (
	// DefaultBaseURL is Gemini's OpenAI-compatible endpoint.
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
	// DefaultChatModel is used for text prompts when no model is configured.
	DefaultChatModel = "gemini-2.0-flash"
	// DefaultVisionModel is used for image prompts when no model is configured.
	DefaultVisionModel = "gemini-2.5-flash"
	// DefaultTimeout bounds a single outbound call.
	DefaultTimeout = 30 * time.Second
)

// ErrEmptyResponse is returned when the model answers without any content.
var ErrEmptyResponse = errors.New("llm: empty response")

// Generator is the text-generation capability the rest of the service depends on.
// Implementations must be safe for concurrent use.
type Generator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
	DescribeImage(ctx context.Context, prompt string, data []byte, mimeType string) (string, error)
}

// Config configures Client.
type Config struct {
	APIKey      string
	BaseURL     string
	ChatModel   string
	VisionModel string
	Timeout     time.Duration
}

// Client calls an OpenAI-compatible chat completion API.
type Client struct {
	client      *openai.Client
	chatModel   string
	visionModel string
	timeout     time.Duration
	logger      *zap.Logger
}

var _ Generator = (*Client)(nil)

// NewClient constructs a Client. Empty fields fall back to the package defaults.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm: api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = DefaultChatModel
	}
	if cfg.VisionModel == "" {
		cfg.VisionModel = DefaultVisionModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	oaCfg := openai.DefaultConfig(cfg.APIKey)
	oaCfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")

	return &Client{
		client:      openai.NewClientWithConfig(oaCfg),
		chatModel:   cfg.ChatModel,
		visionModel: cfg.VisionModel,
		timeout:     cfg.Timeout,
		logger:      logger.With(zap.String("component", "llm")),
	}, nil
}

// GenerateText sends a single user prompt and returns the model's text.
func (c *Client) GenerateText(ctx context.Context, prompt string) (string, error) {
	return c.complete(ctx, c.chatModel, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})
}

// DescribeImage sends a prompt together with an inline image.
func (c *Client) DescribeImage(ctx context.Context, prompt string, data []byte, mimeType string) (string, error) {
	if len(data) == 0 {
		return "", errors.New("llm: image data is empty")
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))

	return c.complete(ctx, c.visionModel, openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: prompt},
			{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    dataURL,
					Detail: openai.ImageURLDetailAuto,
				},
			},
		},
	})
}

func (c *Client) complete(ctx context.Context, model string, msg openai.ChatCompletionMessage) (string, error) {
	// The earlier of the caller's deadline and the client timeout wins.
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    []openai.ChatCompletionMessage{msg},
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion (%s): %w", model, err)
	}

	c.logger.Debug("chat completion done",
		zap.String("model", model),
		zap.Duration("latency", time.Since(start)),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
	)

	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	text := resp.Choices[0].Message.Content
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// StripCodeFence removes markdown code fences the model sometimes wraps JSON in.
func StripCodeFence(text string) string {
	cleaned := strings.ReplaceAll(text, "```json", "")
	cleaned = strings.ReplaceAll(cleaned, "```JSON", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	return strings.TrimSpace(cleaned)
}
