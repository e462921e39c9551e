package llm

import (
	"strings"

	"github.com/yungbote/studykit-backend/internal/generation/generr"
)

// Provider is the closed set of supported LLM backends.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderGroq   Provider = "groq"
	ProviderGemini Provider = "gemini"
)

const DefaultProvider = ProviderOpenAI

var Providers = []Provider{ProviderOpenAI, ProviderGroq, ProviderGemini}

// ParseProvider maps a request string onto a Provider. Empty selects the default.
func ParseProvider(s string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return DefaultProvider, nil
	case ProviderOpenAI, ProviderGroq, ProviderGemini:
		return p, nil
	default:
		return "", &generr.ConfigurationError{
			Setting: "provider",
			Reason:  "unknown provider " + strings.TrimSpace(s) + " (expected openai, groq or gemini)",
		}
	}
}

func (p Provider) credentialEnv() string {
	switch p {
	case ProviderGroq:
		return "GROQ_API_KEY"
	case ProviderGemini:
		return "GEMINI_API_KEY"
	default:
		return "OPENAI_API_KEY"
	}
}
