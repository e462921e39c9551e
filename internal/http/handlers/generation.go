package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/studykit-backend/internal/generation/orchestrator"
	"github.com/yungbote/studykit-backend/internal/generation/schema"
	"github.com/yungbote/studykit-backend/internal/http/response"
	"github.com/yungbote/studykit-backend/internal/platform/logger"
)

const (
	defaultItemCount      = 5
	defaultTestDifficulty = "easy"
	defaultRAGK           = 4
)

// GenerationService is implemented by *orchestrator.Service.
type GenerationService interface {
	GenerateMCQs(ctx context.Context, req orchestrator.ItemRequest) (schema.MCQSet, error)
	GenerateFlashcards(ctx context.Context, req orchestrator.ItemRequest) (schema.FlashcardSet, error)
	GenerateTest(ctx context.Context, req orchestrator.TestRequest) (schema.TestSet, error)
	Summarize(ctx context.Context, req orchestrator.SummaryRequest) (schema.Summary, error)
	RAGChat(ctx context.Context, req orchestrator.RAGRequest) (schema.RAGAnswer, error)
}

type GenerationHandler struct {
	log *logger.Logger
	svc GenerationService
}

func NewGenerationHandler(log *logger.Logger, svc GenerationService) *GenerationHandler {
	return &GenerationHandler{log: log.With("handler", "GenerationHandler"), svc: svc}
}

type mcqRequest struct {
	Topic          string   `json:"topic"`
	Topics         []string `json:"topics"`
	StudyKitID     string   `json:"studyKitId"`
	NumQuestions   *int     `json:"num_questions"`
	Provider       string   `json:"provider"`
	UseRetriever   *bool    `json:"use_retriever"`
	CollectionName string   `json:"collection_name"`
}

type flashcardRequest struct {
	Topic          string   `json:"topic"`
	Topics         []string `json:"topics"`
	StudyKitID     string   `json:"studyKitId"`
	NumFlashcards  *int     `json:"num_flashcards"`
	Provider       string   `json:"provider"`
	UseRetriever   *bool    `json:"use_retriever"`
	CollectionName string   `json:"collection_name"`
}

type testRequest struct {
	Topic        string `json:"topic"`
	StudyKitID   string `json:"studyKitId"`
	NumQuestions *int   `json:"num_questions"`
	Difficulty   string `json:"difficulty"`
	Provider     string `json:"provider"`
}

type summaryRequest struct {
	Text     string `json:"text"`
	Provider string `json:"provider"`
}

type ragRequest struct {
	Query      string `json:"query"`
	Provider   string `json:"provider"`
	K          *int   `json:"k"`
	Collection string `json:"collection"`
}

// POST /mcq/create
func (h *GenerationHandler) CreateMCQs(c *gin.Context) {
	var req mcqRequest
	if !bindJSON(c, &req) {
		return
	}
	out, err := h.svc.GenerateMCQs(c.Request.Context(), orchestrator.ItemRequest{
		Topic:        req.Topic,
		Topics:       req.Topics,
		StudyKitID:   req.StudyKitID,
		N:            intOr(req.NumQuestions, defaultItemCount),
		Provider:     req.Provider,
		UseRetriever: boolOr(req.UseRetriever, true),
		Collection:   req.CollectionName,
	})
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, out)
}

// POST /flashcard/create
func (h *GenerationHandler) CreateFlashcards(c *gin.Context) {
	var req flashcardRequest
	if !bindJSON(c, &req) {
		return
	}
	out, err := h.svc.GenerateFlashcards(c.Request.Context(), orchestrator.ItemRequest{
		Topic:        req.Topic,
		Topics:       req.Topics,
		StudyKitID:   req.StudyKitID,
		N:            intOr(req.NumFlashcards, defaultItemCount),
		Provider:     req.Provider,
		UseRetriever: boolOr(req.UseRetriever, true),
		Collection:   req.CollectionName,
	})
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, out)
}

// POST /test/create
func (h *GenerationHandler) CreateTest(c *gin.Context) {
	var req testRequest
	if !bindJSON(c, &req) {
		return
	}
	difficulty := req.Difficulty
	if difficulty == "" {
		difficulty = defaultTestDifficulty
	}
	out, err := h.svc.GenerateTest(c.Request.Context(), orchestrator.TestRequest{
		Topic:      req.Topic,
		StudyKitID: req.StudyKitID,
		N:          intOr(req.NumQuestions, defaultItemCount),
		Difficulty: difficulty,
		Provider:   req.Provider,
	})
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, out)
}

// POST /summarizer/
func (h *GenerationHandler) Summarize(c *gin.Context) {
	var req summaryRequest
	if !bindJSON(c, &req) {
		return
	}
	out, err := h.svc.Summarize(c.Request.Context(), orchestrator.SummaryRequest{Text: req.Text, Provider: req.Provider})
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, out)
}

// POST /rag/chat
func (h *GenerationHandler) RAGChat(c *gin.Context) {
	var req ragRequest
	if !bindJSON(c, &req) {
		return
	}
	out, err := h.svc.RAGChat(c.Request.Context(), orchestrator.RAGRequest{
		Query:      req.Query,
		Provider:   req.Provider,
		K:          intOr(req.K, defaultRAGK),
		Collection: req.Collection,
	})
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, out)
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return false
	}
	return true
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
