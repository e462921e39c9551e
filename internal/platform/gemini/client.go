// Package gemini wraps the Google Generative AI SDK for single-turn JSON generation.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/yungbote/studykit-backend/internal/observability"
	"github.com/yungbote/studykit-backend/internal/platform/httpx"
	"github.com/yungbote/studykit-backend/internal/platform/logger"
)

type Config struct {
	APIKey string
	Model  string
}

var ErrMissingAPIKey = errors.New("missing GEMINI_API_KEY")

type Client struct {
	log   *logger.Logger
	api   *genai.Client
	model string
}

func NewClient(ctx context.Context, log *logger.Logger, cfg Config) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, ErrMissingAPIKey
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-1.5-flash"
	}
	api, err := genai.NewClient(ctx, option.WithAPIKey(key))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &Client{
		log:   log.With("service", "GeminiClient"),
		api:   api,
		model: model,
	}, nil
}

func (c *Client) Model() string { return c.model }

func (c *Client) Close() error {
	if c == nil || c.api == nil {
		return nil
	}
	return c.api.Close()
}

// GenerateText asks for a JSON response. A nil temperature leaves the model default.
func (c *Client) GenerateText(ctx context.Context, system, user string, temperature *float64) (string, error) {
	m := c.api.GenerativeModel(c.model)
	m.GenerationConfig = genai.GenerationConfig{ResponseMIMEType: "application/json"}
	if temperature != nil {
		t := float32(*temperature)
		m.GenerationConfig.Temperature = &t
	}
	if strings.TrimSpace(system) != "" {
		m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	start := time.Now()
	resp, err := m.GenerateContent(ctx, genai.Text(user))
	if err != nil {
		err = normalizeError(err)
		observability.Current().ObserveLLMRequest("gemini", c.model, observability.StatusLabel(nil, err), time.Since(start), 0, 0)
		return "", err
	}
	in, out := 0, 0
	if resp.UsageMetadata != nil {
		in, out = int(resp.UsageMetadata.PromptTokenCount), int(resp.UsageMetadata.CandidatesTokenCount)
	}
	observability.Current().ObserveLLMRequest("gemini", c.model, "200", time.Since(start), in, out)

	text := ResponseText(resp)
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("gemini: empty response")
	}
	return text, nil
}

// ResponseText concatenates the text parts of the first candidate that has content.
func ResponseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		var b strings.Builder
		for _, p := range cand.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		if b.Len() > 0 {
			return b.String()
		}
	}
	return ""
}

func normalizeError(err error) error {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) && gErr.Code > 0 {
		return &httpx.StatusError{Service: "gemini", StatusCode: gErr.Code, Body: gErr.Message}
	}
	return err
}
