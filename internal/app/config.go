package app

import (
	"strings"
	"time"

	"github.com/yungbote/studykit-backend/internal/data/db"
	"github.com/yungbote/studykit-backend/internal/generation/llm"
	"github.com/yungbote/studykit-backend/internal/observability"
	"github.com/yungbote/studykit-backend/internal/platform/envutil"
	"github.com/yungbote/studykit-backend/internal/platform/gemini"
	"github.com/yungbote/studykit-backend/internal/platform/groq"
	"github.com/yungbote/studykit-backend/internal/platform/logger"
	"github.com/yungbote/studykit-backend/internal/platform/openai"
	"github.com/yungbote/studykit-backend/internal/platform/redis"
)

type Config struct {
	Port           string
	LogMode        string
	AllowedOrigins []string

	DB    db.Config
	LLM   llm.Config
	Redis redis.Config
	Otel  observability.OtelConfig

	// QdrantURL empty disables the vector index; retrieval then degrades to
	// no context and ingestion fails per source.
	QdrantURL string

	IngestMaxConcurrency int
	DownloadTimeout      time.Duration
	DownloadMaxRetries   int
	TopicExtractionK     int
	ContextK             int
	ShutdownTimeout      time.Duration
}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		Port:           envutil.String("PORT", "8080"),
		LogMode:        envutil.String("LOG_MODE", "development"),
		AllowedOrigins: splitList(envutil.String("CORS_ALLOWED_ORIGINS", "")),
		DB:             db.ConfigFromEnv(),
		LLM: llm.Config{
			DefaultProvider: envutil.String("DEFAULT_PROVIDER", string(llm.DefaultProvider)),
			OpenAI: openai.Config{
				APIKey:     envutil.String("OPENAI_API_KEY", ""),
				BaseURL:    envutil.String("OPENAI_BASE_URL", ""),
				Model:      envutil.String("OPENAI_MODEL", "gpt-4o"),
				EmbedModel: envutil.String("OPENAI_EMBED_MODEL", "text-embedding-3-small"),
				Timeout:    envutil.Seconds("OPENAI_TIMEOUT_SECONDS", 180*time.Second),
				MaxRetries: envutil.Int("OPENAI_MAX_RETRIES", 4),
			},
			Groq: groq.Config{
				APIKey:  envutil.String("GROQ_API_KEY", ""),
				BaseURL: envutil.String("GROQ_BASE_URL", groq.DefaultBaseURL),
				Model:   envutil.String("GROQ_MODEL", ""),
				Timeout: envutil.Seconds("GROQ_TIMEOUT_SECONDS", 120*time.Second),
			},
			Gemini: gemini.Config{
				APIKey: envutil.String("GEMINI_API_KEY", ""),
				Model:  envutil.String("GEMINI_MODEL", ""),
			},
		},
		Redis:                redis.ConfigFromEnv(),
		Otel:                 observability.OtelConfigFromEnv(),
		QdrantURL:            strings.TrimSpace(envutil.String("QDRANT_URL", "")),
		IngestMaxConcurrency: envutil.Int("INGEST_MAX_CONCURRENCY", 5),
		DownloadTimeout:      envutil.Seconds("INGEST_DOWNLOAD_TIMEOUT_SECONDS", 60*time.Second),
		DownloadMaxRetries:   envutil.Int("INGEST_DOWNLOAD_MAX_RETRIES", 2),
		TopicExtractionK:     envutil.Int("TOPIC_EXTRACTION_K", 5),
		ContextK:             envutil.Int("RAG_DEFAULT_K", 4),
		ShutdownTimeout:      envutil.Seconds("SHUTDOWN_TIMEOUT_SECONDS", 30*time.Second),
	}
	if log != nil {
		log.Info("config loaded",
			"port", cfg.Port,
			"db_driver", cfg.DB.Driver,
			"default_provider", cfg.LLM.DefaultProvider,
			"qdrant", cfg.QdrantURL != "",
			"redis", cfg.Redis.Addr != "",
			"ingest_max_concurrency", cfg.IngestMaxConcurrency,
		)
	}
	return cfg
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
