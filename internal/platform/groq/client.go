// Package groq talks to Groq's OpenAI-compatible chat endpoint.
package groq

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/yungbote/studykit-backend/internal/observability"
	"github.com/yungbote/studykit-backend/internal/platform/httpx"
	"github.com/yungbote/studykit-backend/internal/platform/logger"
)

const DefaultBaseURL = "https://api.groq.com/openai/v1"

type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

var ErrMissingAPIKey = errors.New("missing GROQ_API_KEY")

type Client struct {
	log   *logger.Logger
	api   *openai.Client
	model string
}

func NewClient(log *logger.Logger, cfg Config) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, ErrMissingAPIKey
	}
	conf := openai.DefaultConfig(key)
	conf.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if conf.BaseURL == "" {
		conf.BaseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	conf.HTTPClient = &http.Client{Timeout: timeout}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "llama-3.3-70b-versatile"
	}
	return &Client{
		log:   log.With("service", "GroqClient"),
		api:   openai.NewClientWithConfig(conf),
		model: model,
	}, nil
}

func (c *Client) Model() string { return c.model }

// GenerateText sends one system/user chat turn. A nil temperature leaves the
// provider default.
func (c *Client) GenerateText(ctx context.Context, system, user string, temperature *float64) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	}
	if temperature != nil {
		req.Temperature = float32(*temperature)
		if req.Temperature == 0 {
			// zero is dropped by omitempty on the wire
			req.Temperature = math.SmallestNonzeroFloat32
		}
	}

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		err = normalizeError(err)
		observability.Current().ObserveLLMRequest("groq", c.model, observability.StatusLabel(nil, err), time.Since(start), 0, 0)
		return "", err
	}
	observability.Current().ObserveLLMRequest("groq", c.model, "200", time.Since(start), resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("groq: response has no choices")
	}
	text := resp.Choices[0].Message.Content
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("groq: empty completion (finish_reason=%s)", resp.Choices[0].FinishReason)
	}
	return text, nil
}

// normalizeError exposes the HTTP status of go-openai errors through
// httpx.StatusError so callers classify them the same way as other providers.
func normalizeError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		return &httpx.StatusError{Service: "groq", StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		return &httpx.StatusError{Service: "groq", StatusCode: reqErr.HTTPStatusCode, Body: reqErr.Error()}
	}
	return err
}
