package handlers

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/studykit-backend/internal/http/response"
	"github.com/yungbote/studykit-backend/internal/ingestion/jobs"
	"github.com/yungbote/studykit-backend/internal/ingestion/manager"
	"github.com/yungbote/studykit-backend/internal/platform/logger"
)

// IngestionService is implemented by *manager.Manager.
type IngestionService interface {
	IngestPending(ctx context.Context, limit, maxConcurrency int, collection string) (*manager.PendingSummary, error)
	IngestStudyKit(ctx context.Context, studyKitID string, maxConcurrency int, collection string) (*manager.StudyKitSummary, error)
	StartPending(ctx context.Context, limit, maxConcurrency int, collection string) (*jobs.Job, error)
	StartStudyKit(ctx context.Context, studyKitID string, maxConcurrency int, collection string) (*jobs.Job, error)
	Job(ctx context.Context, id string) (*jobs.Job, error)
	Status(ctx context.Context) (*manager.StatusSummary, error)
}

type IngestionHandler struct {
	log *logger.Logger
	svc IngestionService
}

func NewIngestionHandler(log *logger.Logger, svc IngestionService) *IngestionHandler {
	return &IngestionHandler{log: log.With("handler", "IngestionHandler"), svc: svc}
}

type ingestPendingRequest struct {
	Limit          *int   `json:"limit"`
	MaxConcurrency *int   `json:"max_concurrency"`
	CollectionName string `json:"collection_name"`
}

type ingestStudyKitRequest struct {
	StudyKitID     string `json:"studyKitId"`
	MaxConcurrency *int   `json:"max_concurrency"`
	CollectionName string `json:"collection_name"`
}

// bindOptionalJSON accepts an empty body as all defaults.
func bindOptionalJSON(c *gin.Context, dst any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	return bindJSON(c, dst)
}

// POST /ingestion/ingest/pending
func (h *IngestionHandler) IngestPending(c *gin.Context) {
	var req ingestPendingRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	out, err := h.svc.IngestPending(c.Request.Context(),
		intOr(req.Limit, manager.DefaultPendingLimit),
		intOr(req.MaxConcurrency, manager.DefaultMaxConcurrency),
		req.CollectionName)
	if err != nil {
		response.RespondErr(c, fmt.Errorf("ingestion failed: %w", err))
		return
	}
	response.RespondOK(c, out)
}

// POST /ingestion/ingest/study-kit
func (h *IngestionHandler) IngestStudyKit(c *gin.Context) {
	var req ingestStudyKitRequest
	if !bindJSON(c, &req) {
		return
	}
	out, err := h.svc.IngestStudyKit(c.Request.Context(), req.StudyKitID,
		intOr(req.MaxConcurrency, manager.DefaultMaxConcurrency), req.CollectionName)
	if err != nil {
		response.RespondErr(c, fmt.Errorf("study kit ingestion failed: %w", err))
		return
	}
	response.RespondOK(c, out)
}

// POST /ingestion/ingest/background/pending
func (h *IngestionHandler) StartPending(c *gin.Context) {
	var req ingestPendingRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	job, err := h.svc.StartPending(c.Request.Context(),
		intOr(req.Limit, manager.DefaultPendingLimit),
		intOr(req.MaxConcurrency, manager.DefaultMaxConcurrency),
		req.CollectionName)
	if err != nil {
		response.RespondErr(c, fmt.Errorf("failed to start background ingestion: %w", err))
		return
	}
	response.RespondAccepted(c, gin.H{
		"message": "Ingestion started in background",
		"status":  "accepted",
		"job_id":  job.ID,
	})
}

// POST /ingestion/ingest/background/study-kit
func (h *IngestionHandler) StartStudyKit(c *gin.Context) {
	var req ingestStudyKitRequest
	if !bindJSON(c, &req) {
		return
	}
	job, err := h.svc.StartStudyKit(c.Request.Context(), req.StudyKitID,
		intOr(req.MaxConcurrency, manager.DefaultMaxConcurrency), req.CollectionName)
	if err != nil {
		response.RespondErr(c, fmt.Errorf("failed to start background ingestion: %w", err))
		return
	}
	response.RespondAccepted(c, gin.H{
		"message":    "Study kit ingestion started in background",
		"status":     "accepted",
		"job_id":     job.ID,
		"studyKitId": job.StudyKitID,
	})
}

// GET /ingestion/ingest/jobs/:id
func (h *IngestionHandler) GetJob(c *gin.Context) {
	job, err := h.svc.Job(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, job)
}

// GET /ingestion/ingest/status
func (h *IngestionHandler) Status(c *gin.Context) {
	out, err := h.svc.Status(c.Request.Context())
	if err != nil {
		response.RespondErr(c, fmt.Errorf("failed to get status: %w", err))
		return
	}
	response.RespondOK(c, out)
}
