package app

import (
	httpserver "github.com/yungbote/studykit-backend/internal/http"
	httpH "github.com/yungbote/studykit-backend/internal/http/handlers"
	"github.com/yungbote/studykit-backend/internal/observability"
	"github.com/yungbote/studykit-backend/internal/platform/logger"
)

type Handlers struct {
	Generation *httpH.GenerationHandler
	Ingestion  *httpH.IngestionHandler
	Health     *httpH.HealthHandler
	Metrics    *httpH.MetricsHandler
}

func wireHandlers(log *logger.Logger, services Services, metrics *observability.Metrics) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Generation: httpH.NewGenerationHandler(log, services.Generation),
		Ingestion:  httpH.NewIngestionHandler(log, services.Ingestion),
		Health:     httpH.NewHealthHandler(),
		Metrics:    httpH.NewMetricsHandler(metrics),
	}
}

func wireServer(log *logger.Logger, cfg Config, handlers Handlers, metrics *observability.Metrics) *httpserver.Server {
	log.Info("Wiring router...")
	serviceName := ""
	if cfg.Otel.Enabled {
		serviceName = cfg.Otel.ServiceName
	}
	return httpserver.NewServer(httpserver.RouterConfig{
		Log:               log,
		ServiceName:       serviceName,
		AllowedOrigins:    cfg.AllowedOrigins,
		Metrics:           metrics,
		GenerationHandler: handlers.Generation,
		IngestionHandler:  handlers.Ingestion,
		HealthHandler:     handlers.Health,
		MetricsHandler:    handlers.Metrics,
	})
}
