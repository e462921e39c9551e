package llm

import (
	"context"
	"errors"

	"github.com/yungbote/studykit-backend/internal/generation/generr"
	"github.com/yungbote/studykit-backend/internal/platform/gemini"
	"github.com/yungbote/studykit-backend/internal/platform/groq"
	"github.com/yungbote/studykit-backend/internal/platform/logger"
	"github.com/yungbote/studykit-backend/internal/platform/openai"
)

type Config struct {
	// DefaultProvider must be configured; it is checked at construction.
	DefaultProvider string

	OpenAI openai.Config
	Groq   groq.Config
	Gemini gemini.Config
}

// Build constructs a client for every provider that has a credential.
// OpenAI may be passed in prebuilt because the vector index shares it for
// embeddings.
func Build(ctx context.Context, log *logger.Logger, cfg Config, oa openai.Client) (*Registry, error) {
	def, err := ParseProvider(cfg.DefaultProvider)
	if err != nil {
		return nil, err
	}

	var clients []Client
	if oa == nil {
		oa, err = openai.NewClient(log, cfg.OpenAI)
		if err != nil && !errors.Is(err, openai.ErrMissingAPIKey) {
			return nil, &generr.ConfigurationError{Setting: "OPENAI", Reason: "client construction failed", Err: err}
		}
	}
	if oa != nil {
		clients = append(clients, Wrap(ProviderOpenAI, oa))
	}

	gc, err := groq.NewClient(log, cfg.Groq)
	switch {
	case err == nil:
		clients = append(clients, Wrap(ProviderGroq, gc))
	case !errors.Is(err, groq.ErrMissingAPIKey):
		return nil, &generr.ConfigurationError{Setting: "GROQ", Reason: "client construction failed", Err: err}
	}

	gm, err := gemini.NewClient(ctx, log, cfg.Gemini)
	switch {
	case err == nil:
		clients = append(clients, Wrap(ProviderGemini, gm))
	case !errors.Is(err, gemini.ErrMissingAPIKey):
		return nil, &generr.ConfigurationError{Setting: "GEMINI", Reason: "client construction failed", Err: err}
	}

	reg := NewRegistry(log, clients...)
	if _, err := reg.Get(def); err != nil {
		return nil, err
	}
	reg.log.Info("llm providers configured", "providers", reg.Configured(), "default", def)
	return reg, nil
}
