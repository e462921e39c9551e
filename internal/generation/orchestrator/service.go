// Package orchestrator runs each study-aid task end to end: topic resolution,
// optional context retrieval, per-topic prompting, JSON extraction and schema
// validation, and aggregation in topic order.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/studykit-backend/internal/domain"
	"github.com/yungbote/studykit-backend/internal/generation/generr"
	"github.com/yungbote/studykit-backend/internal/generation/jsonx"
	"github.com/yungbote/studykit-backend/internal/generation/llm"
	"github.com/yungbote/studykit-backend/internal/generation/prompts"
	"github.com/yungbote/studykit-backend/internal/generation/schema"
	"github.com/yungbote/studykit-backend/internal/generation/topics"
	"github.com/yungbote/studykit-backend/internal/observability"
	"github.com/yungbote/studykit-backend/internal/platform/apierr"
	"github.com/yungbote/studykit-backend/internal/platform/ctxutil"
	"github.com/yungbote/studykit-backend/internal/platform/logger"
)

const (
	DefaultCollection = "study_resources"
	DefaultContextK   = 4

	DefaultTestDifficulty = schema.DifficultyEasy
	DefaultRAGK           = 4

	// NoContextAnswer is returned by RAG chat when retrieval finds nothing.
	NoContextAnswer = "I don't know — no relevant context found."

	creativeTemperature      = 0.3
	deterministicTemperature = 0.0
)

// ClientResolver maps a provider name to a configured client. *llm.Registry
// implements it.
type ClientResolver interface {
	Resolve(provider string) (llm.Client, error)
}

type TopicResolver interface {
	Resolve(ctx context.Context, req topics.Request, client llm.Client) []string
}

type ContextRetriever interface {
	Retrieve(ctx context.Context, query string, k int, collection string) ([]domain.ContextPassage, error)
}

type ItemRequest struct {
	Topic        string
	Topics       []string
	StudyKitID   string
	N            int
	Provider     string
	UseRetriever bool
	Collection   string
	// Contexts, when set, replace retrieval.
	Contexts []domain.ContextPassage
}

type TestRequest struct {
	Topic      string
	StudyKitID string
	N          int
	Difficulty string
	Provider   string
	Collection string
}

type SummaryRequest struct {
	Text     string
	Provider string
}

type RAGRequest struct {
	Query      string
	Provider   string
	K          int
	Collection string
}

type Config struct {
	DefaultCollection string
	// ContextK is how many passages item tasks retrieve.
	ContextK int
	// TopicK is how many topics to extract from a study kit.
	TopicK int
}

type Service struct {
	log       *logger.Logger
	clients   ClientResolver
	topics    TopicResolver
	retriever ContextRetriever
	cfg       Config
}

func NewService(log *logger.Logger, clients ClientResolver, topicResolver TopicResolver, retriever ContextRetriever, cfg Config) *Service {
	if strings.TrimSpace(cfg.DefaultCollection) == "" {
		cfg.DefaultCollection = DefaultCollection
	}
	if cfg.ContextK <= 0 {
		cfg.ContextK = DefaultContextK
	}
	if cfg.TopicK <= 0 {
		cfg.TopicK = topics.DefaultK
	}
	return &Service{
		log:       log.With("service", "GenerationService"),
		clients:   clients,
		topics:    topicResolver,
		retriever: retriever,
		cfg:       cfg,
	}
}

func (s *Service) GenerateMCQs(ctx context.Context, req ItemRequest) (out schema.MCQSet, err error) {
	ctx, done := s.begin(ctx, prompts.TaskMCQ, attribute.Int("n", req.N))
	defer func() { done(err) }()

	client, err := s.clients.Resolve(req.Provider)
	if err != nil {
		return schema.MCQSet{}, err
	}
	plan, contexts := s.prepare(ctx, client, req)
	items, err := fanOut(ctx, s, client, itemTask[schema.MCQSet, schema.MCQItem]{
		task:        prompts.TaskMCQ,
		temperature: creativeTemperature,
		validate:    schema.ValidateMCQSet,
		items:       func(v schema.MCQSet) []schema.MCQItem { return v.MCQs },
	}, plan, prompts.Input{Contexts: contexts})
	if err != nil {
		return schema.MCQSet{}, err
	}
	return schema.MCQSet{MCQs: items}, nil
}

func (s *Service) GenerateFlashcards(ctx context.Context, req ItemRequest) (out schema.FlashcardSet, err error) {
	ctx, done := s.begin(ctx, prompts.TaskFlashcard, attribute.Int("n", req.N))
	defer func() { done(err) }()

	client, err := s.clients.Resolve(req.Provider)
	if err != nil {
		return schema.FlashcardSet{}, err
	}
	plan, contexts := s.prepare(ctx, client, req)
	items, err := fanOut(ctx, s, client, itemTask[schema.FlashcardSet, schema.FlashcardItem]{
		task:        prompts.TaskFlashcard,
		temperature: creativeTemperature,
		validate:    schema.ValidateFlashcardSet,
		items:       func(v schema.FlashcardSet) []schema.FlashcardItem { return v.Flashcards },
	}, plan, prompts.Input{Contexts: contexts})
	if err != nil {
		return schema.FlashcardSet{}, err
	}
	return schema.FlashcardSet{Flashcards: items}, nil
}

// GenerateTest retrieves context only when the request names a study kit.
func (s *Service) GenerateTest(ctx context.Context, req TestRequest) (out schema.TestSet, err error) {
	ctx, done := s.begin(ctx, prompts.TaskTest, attribute.Int("n", req.N))
	defer func() { done(err) }()

	req.Difficulty = strings.ToLower(strings.TrimSpace(req.Difficulty))
	if req.Difficulty == "" {
		req.Difficulty = DefaultTestDifficulty
	}
	if !schema.IsDifficulty(req.Difficulty) {
		return schema.TestSet{}, apierr.New(http.StatusBadRequest, "invalid_difficulty",
			fmt.Errorf("difficulty must be easy, medium or hard, got %q", req.Difficulty))
	}
	client, err := s.clients.Resolve(req.Provider)
	if err != nil {
		return schema.TestSet{}, err
	}
	plan, contexts := s.prepare(ctx, client, ItemRequest{
		Topic:        req.Topic,
		StudyKitID:   req.StudyKitID,
		N:            req.N,
		UseRetriever: strings.TrimSpace(req.StudyKitID) != "",
		Collection:   req.Collection,
	})
	items, err := fanOut(ctx, s, client, itemTask[schema.TestSet, schema.TestItem]{
		task:        prompts.TaskTest,
		temperature: deterministicTemperature,
		validate:    schema.ValidateTestSet,
		items:       func(v schema.TestSet) []schema.TestItem { return v.Test },
	}, plan, prompts.Input{Difficulty: req.Difficulty, Contexts: contexts})
	if err != nil {
		return schema.TestSet{}, err
	}
	return schema.TestSet{Test: items}, nil
}

// Summarize makes one call over the literal text.
func (s *Service) Summarize(ctx context.Context, req SummaryRequest) (out schema.Summary, err error) {
	ctx, done := s.begin(ctx, prompts.TaskSummary)
	defer func() { done(err) }()

	if strings.TrimSpace(req.Text) == "" {
		return schema.Summary{}, apierr.BadRequest("invalid_request", "text is required")
	}
	client, err := s.clients.Resolve(req.Provider)
	if err != nil {
		return schema.Summary{}, err
	}
	return generateOne(ctx, client, prompts.TaskSummary, deterministicTemperature,
		prompts.Input{Text: req.Text}, schema.ValidateSummary)
}

// RAGChat answers a single question from retrieved passages. With no
// passages it returns NoContextAnswer without calling the model.
func (s *Service) RAGChat(ctx context.Context, req RAGRequest) (out schema.RAGAnswer, err error) {
	ctx, done := s.begin(ctx, prompts.TaskRAG, attribute.Int("k", req.K))
	defer func() { done(err) }()

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return schema.RAGAnswer{}, apierr.BadRequest("invalid_request", "query is required")
	}
	if req.K <= 0 {
		req.K = DefaultRAGK
	}
	client, err := s.clients.Resolve(req.Provider)
	if err != nil {
		return schema.RAGAnswer{}, err
	}

	passages := s.retrieve(ctx, query, req.K, s.collection(req.Collection))
	if len(passages) == 0 {
		return schema.RAGAnswer{Answer: NoContextAnswer, Citations: []string{}}, nil
	}
	return generateOne(ctx, client, prompts.TaskRAG, deterministicTemperature,
		prompts.Input{Query: query, K: req.K, Contexts: passages}, schema.ValidateRAGAnswer)
}

// prepare resolves topics, distributes n and fetches shared context once.
func (s *Service) prepare(ctx context.Context, client llm.Client, req ItemRequest) ([]Assignment, []domain.ContextPassage) {
	if req.N < 1 {
		return []Assignment{}, nil
	}
	resolved := s.resolveTopics(ctx, client, req)
	plan := Distribute(req.N, resolved)
	if len(plan) == 0 {
		return plan, nil
	}
	contexts := req.Contexts
	if req.UseRetriever && len(contexts) == 0 {
		contexts = s.retrieve(ctx, resolved[0], s.cfg.ContextK, s.collection(req.Collection))
	}
	return plan, contexts
}

func (s *Service) resolveTopics(ctx context.Context, client llm.Client, req ItemRequest) []string {
	treq := topics.Request{Topic: req.Topic, Topics: req.Topics, StudyKitID: req.StudyKitID, K: s.cfg.TopicK}
	if s.topics == nil {
		if explicit := topics.Clean(req.Topics); len(explicit) > 0 {
			return explicit
		}
		if t := strings.TrimSpace(req.Topic); t != "" {
			return []string{t}
		}
		return []string{}
	}
	return s.topics.Resolve(ctx, treq, client)
}

// retrieve never fails: a retriever error means no context.
func (s *Service) retrieve(ctx context.Context, query string, k int, collection string) []domain.ContextPassage {
	if s.retriever == nil {
		return nil
	}
	passages, err := s.retriever.Retrieve(ctx, query, k, collection)
	if err != nil {
		s.log.With(ctxutil.LogFields(ctx)...).Warn("context retrieval failed; continuing without context",
			"error", err, "collection", collection)
		return nil
	}
	return passages
}

func (s *Service) collection(name string) string {
	if n := strings.TrimSpace(name); n != "" {
		return n
	}
	return s.cfg.DefaultCollection
}

// begin opens the task span and returns a finisher that records the outcome.
func (s *Service) begin(ctx context.Context, task prompts.Task, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := observability.Tracer().Start(ctx, "generation."+string(task), trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		outcome := Outcome(err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
			s.log.With(ctxutil.LogFields(ctx)...).Warn("generation failed", "task", task, "outcome", outcome, "error", err)
		}
		span.End()
		observability.Current().ObserveGeneration(string(task), outcome, time.Since(start))
	}
}

// Outcome is the metric label for a task result.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if kind, ok := generr.KindOf(err); ok {
		return string(kind)
	}
	if _, ok := apierr.As(err); ok {
		return "invalid_request"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	return "error"
}

type itemTask[S any, I any] struct {
	task        prompts.Task
	temperature float64
	validate    func(parsed any, raw string) schema.Result[S]
	items       func(S) []I
}

// fanOut runs the plan sequentially and concatenates items in topic order.
// The first failing topic aborts the call and discards earlier results.
func fanOut[S any, I any](ctx context.Context, s *Service, client llm.Client, t itemTask[S, I], plan []Assignment, base prompts.Input) ([]I, error) {
	out := make([]I, 0)
	for _, a := range plan {
		in := base
		in.Topic = a.Topic
		in.N = a.Count
		set, err := generateOne(ctx, client, t.task, t.temperature, in, t.validate)
		if err != nil {
			return nil, fmt.Errorf("topic %q: %w", a.Topic, err)
		}
		items := t.items(set)
		s.log.With(ctxutil.LogFields(ctx)...).Debug("topic generated",
			"task", t.task, "topic", a.Topic, "requested", a.Count, "returned", len(items))
		out = append(out, items...)
	}
	return out, nil
}

// generateOne is build prompt, call model, extract JSON, validate.
func generateOne[S any](ctx context.Context, client llm.Client, task prompts.Task, temperature float64, in prompts.Input, validate func(any, string) schema.Result[S]) (S, error) {
	var zero S
	p, err := prompts.Build(task, in)
	if err != nil {
		return zero, err
	}

	ctx, span := observability.Tracer().Start(ctx, "llm.generate", trace.WithAttributes(
		attribute.String("provider", string(client.Provider())),
		attribute.String("model", client.Model()),
		attribute.String("topic", in.Topic),
		attribute.Int("n", in.N),
		attribute.String("schema", string(p.Schema)),
	))
	defer span.End()

	raw, err := client.Generate(ctx, llm.Request{System: p.System, User: p.User, Temperature: temperature})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "llm call failed")
		return zero, err
	}
	parsed, err := jsonx.Extract(raw)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "parse failed")
		return zero, err
	}
	res := validate(parsed, raw)
	if !res.OK() {
		span.RecordError(res.Diagnostic)
		span.SetStatus(codes.Error, "validation failed")
	}
	return res.Unwrap()
}
