package app

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/studykit-backend/internal/generation/generr"
	"github.com/yungbote/studykit-backend/internal/generation/llm"
	"github.com/yungbote/studykit-backend/internal/observability"
	"github.com/yungbote/studykit-backend/internal/platform/gcs"
	"github.com/yungbote/studykit-backend/internal/platform/logger"
	"github.com/yungbote/studykit-backend/internal/platform/openai"
	"github.com/yungbote/studykit-backend/internal/platform/qdrant"
	"github.com/yungbote/studykit-backend/internal/platform/redis"
)

type Clients struct {
	OpenAI  openai.Client
	LLM     *llm.Registry
	Vectors qdrant.VectorStore
	Objects gcs.ObjectReader
	Redis   *goredis.Client
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")

	// OpenAI is optional here; the registry rejects a default provider
	// without credentials.
	oa, err := openai.NewClient(log, cfg.LLM.OpenAI)
	if err != nil && !errors.Is(err, openai.ErrMissingAPIKey) {
		return Clients{}, &generr.ConfigurationError{Setting: "OPENAI_API_KEY", Reason: "client construction failed", Err: err}
	}

	registry, err := llm.Build(ctx, log, cfg.LLM, oa)
	if err != nil {
		return Clients{}, err
	}

	var vectors qdrant.VectorStore
	if cfg.QdrantURL != "" {
		qcfg, err := qdrant.ResolveConfigFromEnv()
		if err != nil {
			return Clients{}, &generr.ConfigurationError{Setting: "QDRANT_URL", Reason: "invalid qdrant config", Err: err}
		}
		vs, err := qdrant.NewVectorStore(log, qcfg)
		if err != nil {
			return Clients{}, fmt.Errorf("init qdrant: %w", err)
		}
		vectors = instrumentVectorStore("qdrant", vs, observability.Current())
	} else {
		log.Warn("QDRANT_URL not set; retrieval and ingestion are disabled")
	}

	var rdb *goredis.Client
	if cfg.Redis.Addr != "" {
		rdb, err = redis.NewClient(log, cfg.Redis)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis: %w", err)
		}
	}

	return Clients{
		OpenAI:  oa,
		LLM:     registry,
		Vectors: vectors,
		Objects: gcs.NewObjectReader(log, gcs.ClientOptionsFromEnv()...),
		Redis:   rdb,
	}, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Objects != nil {
		_ = c.Objects.Close()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}
