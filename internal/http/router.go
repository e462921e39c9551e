package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/studykit-backend/internal/http/handlers"
	httpMW "github.com/yungbote/studykit-backend/internal/http/middleware"
	"github.com/yungbote/studykit-backend/internal/observability"
	"github.com/yungbote/studykit-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	ServiceName    string
	AllowedOrigins []string
	Metrics        *observability.Metrics

	GenerationHandler *httpH.GenerationHandler
	IngestionHandler  *httpH.IngestionHandler
	HealthHandler     *httpH.HealthHandler
	MetricsHandler    *httpH.MetricsHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.AllowedOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.MetricsHandler != nil {
		r.GET("/metrics", cfg.MetricsHandler.Metrics)
	}

	// Generation
	if h := cfg.GenerationHandler; h != nil {
		r.POST("/mcq/create", h.CreateMCQs)
		r.POST("/flashcard/create", h.CreateFlashcards)
		r.POST("/test/create", h.CreateTest)
		r.POST("/summarizer/", h.Summarize)
		r.POST("/summarizer", h.Summarize)
		r.POST("/rag/chat", h.RAGChat)
	}

	// Ingestion
	if h := cfg.IngestionHandler; h != nil {
		ing := r.Group("/ingestion/ingest")
		{
			ing.POST("/pending", h.IngestPending)
			ing.POST("/study-kit", h.IngestStudyKit)
			ing.POST("/background/pending", h.StartPending)
			ing.POST("/background/study-kit", h.StartStudyKit)
			ing.GET("/jobs/:id", h.GetJob)
			ing.GET("/status", h.Status)
		}
	}

	return r
}
