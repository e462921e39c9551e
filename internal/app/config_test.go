package app

import (
	"reflect"
	"testing"
	"time"

	"github.com/yungbote/studykit-backend/internal/platform/logger"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "CORS_ALLOWED_ORIGINS", "DEFAULT_PROVIDER", "QDRANT_URL", "INGEST_MAX_CONCURRENCY", "RAG_DEFAULT_K"} {
		t.Setenv(k, "")
	}
	cfg := LoadConfig(logger.Nop())
	if cfg.Port != "8080" || cfg.LLM.DefaultProvider != "openai" {
		t.Fatalf("port=%q provider=%q", cfg.Port, cfg.LLM.DefaultProvider)
	}
	if cfg.IngestMaxConcurrency != 5 || cfg.ContextK != 4 || cfg.QdrantURL != "" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.AllowedOrigins != nil {
		t.Fatalf("origins=%q", cfg.AllowedOrigins)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("DEFAULT_PROVIDER", "groq")
	t.Setenv("QDRANT_URL", " http://qdrant:6333 ")
	t.Setenv("INGEST_DOWNLOAD_TIMEOUT_SECONDS", "15")
	t.Setenv("SHUTDOWN_TIMEOUT_SECONDS", "3")

	cfg := LoadConfig(nil)
	if cfg.Port != "9000" || cfg.LLM.DefaultProvider != "groq" || cfg.QdrantURL != "http://qdrant:6333" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if want := []string{"https://a.example", "https://b.example"}; !reflect.DeepEqual(cfg.AllowedOrigins, want) {
		t.Fatalf("origins=%q want %q", cfg.AllowedOrigins, want)
	}
	if cfg.DownloadTimeout != 15*time.Second || cfg.ShutdownTimeout != 3*time.Second {
		t.Fatalf("durations: %v %v", cfg.DownloadTimeout, cfg.ShutdownTimeout)
	}
}
