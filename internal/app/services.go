package app

import (
	"github.com/yungbote/studykit-backend/internal/data/repos"
	"github.com/yungbote/studykit-backend/internal/generation/orchestrator"
	"github.com/yungbote/studykit-backend/internal/generation/retriever"
	"github.com/yungbote/studykit-backend/internal/generation/topics"
	"github.com/yungbote/studykit-backend/internal/ingestion/chunker"
	"github.com/yungbote/studykit-backend/internal/ingestion/index"
	"github.com/yungbote/studykit-backend/internal/ingestion/jobs"
	"github.com/yungbote/studykit-backend/internal/ingestion/loader"
	"github.com/yungbote/studykit-backend/internal/ingestion/manager"
	"github.com/yungbote/studykit-backend/internal/platform/logger"
	"github.com/yungbote/studykit-backend/internal/platform/qdrant"
)

type Services struct {
	Loader     *loader.Loader
	Index      *index.Index
	Generation *orchestrator.Service
	Ingestion  *manager.Manager
}

func wireServices(log *logger.Logger, cfg Config, reposet Repos, clients Clients) Services {
	log.Info("Wiring services...")

	store := repos.NewSourceStore(reposet.Sources)
	docs := loader.New(log, clients.Objects, loader.Config{
		Timeout:    cfg.DownloadTimeout,
		MaxRetries: cfg.DownloadMaxRetries,
	})

	var embedder index.Embedder
	if clients.OpenAI != nil {
		embedder = clients.OpenAI
	}
	vectorIndex := index.New(log, embedder, clients.Vectors)

	var jobStore jobs.Store = jobs.NewMemoryStore()
	if clients.Redis != nil {
		jobStore = jobs.NewRedisStore(log, clients.Redis)
	}

	collection := envCollection()
	generation := orchestrator.NewService(
		log,
		clients.LLM,
		topics.NewResolver(log, store, docs),
		retriever.New(log, vectorIndex),
		orchestrator.Config{
			DefaultCollection: collection,
			ContextK:          cfg.ContextK,
			TopicK:            cfg.TopicExtractionK,
		},
	)
	ingestion := manager.New(log, store, docs, chunker.Default(), vectorIndex, jobStore, manager.Config{
		DefaultCollection: collection,
		MaxConcurrency:    cfg.IngestMaxConcurrency,
	})

	return Services{
		Loader:     docs,
		Index:      vectorIndex,
		Generation: generation,
		Ingestion:  ingestion,
	}
}

func envCollection() string {
	if cfg, err := qdrant.ResolveConfigFromEnv(); err == nil && cfg.Collection != "" {
		return cfg.Collection
	}
	return qdrant.DefaultCollection
}
