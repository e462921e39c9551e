// Package manager runs source ingestion: download, extract, chunk, index and
// mark processed, for single sources and for bounded concurrent batches.
package manager

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/panics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/studykit-backend/internal/domain"
	"github.com/yungbote/studykit-backend/internal/ingestion/chunker"
	"github.com/yungbote/studykit-backend/internal/ingestion/jobs"
	"github.com/yungbote/studykit-backend/internal/observability"
	"github.com/yungbote/studykit-backend/internal/platform/apierr"
	"github.com/yungbote/studykit-backend/internal/platform/ctxutil"
	"github.com/yungbote/studykit-backend/internal/platform/logger"
)

const (
	DefaultPendingLimit   = 50
	DefaultMaxConcurrency = 5

	StatusSuccess = "success"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"

	ReasonNoText     = "no_text_content"
	ReasonMissingURL = "missing_file_url"

	errNilSource = "nil source record"
)

type SourceStore interface {
	FetchUnprocessed(ctx context.Context, limit int) ([]*domain.Source, error)
	GetByStudyKit(ctx context.Context, studyKitID string) ([]*domain.Source, error)
	MarkProcessed(ctx context.Context, id uuid.UUID, loaderUsed string) (bool, error)
	CountByProcessed(ctx context.Context) (processed int64, unprocessed int64, err error)
}

type DocumentLoader interface {
	Download(ctx context.Context, fileURL string) ([]byte, error)
	ExtractText(fileURL string, data []byte) (string, string, error)
}

type Splitter interface {
	Chunks(text string, meta map[string]any) []chunker.Chunk
}

type Indexer interface {
	Upsert(ctx context.Context, chunks []chunker.Chunk, collection string) (int, error)
}

type Config struct {
	DefaultCollection string
	MaxConcurrency    int
}

type Manager struct {
	log      *logger.Logger
	store    SourceStore
	loader   DocumentLoader
	splitter Splitter
	index    Indexer
	jobs     jobs.Store
	cfg      Config

	background sync.WaitGroup
}

func New(log *logger.Logger, store SourceStore, loader DocumentLoader, splitter Splitter, index Indexer, jobStore jobs.Store, cfg Config) *Manager {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultMaxConcurrency
	}
	if strings.TrimSpace(cfg.DefaultCollection) == "" {
		cfg.DefaultCollection = "study_resources"
	}
	if jobStore == nil {
		jobStore = jobs.NewMemoryStore()
	}
	return &Manager{
		log:      log.With("service", "IngestionManager"),
		store:    store,
		loader:   loader,
		splitter: splitter,
		index:    index,
		jobs:     jobStore,
		cfg:      cfg,
	}
}

type SourceResult struct {
	SourceID     string `json:"source_id"`
	Status       string `json:"status"`
	Reason       string `json:"reason,omitempty"`
	Error        string `json:"error,omitempty"`
	Chunks       int    `json:"chunks"`
	FileName     string `json:"file_name,omitempty"`
	DetectedType string `json:"detected_type,omitempty"`
}

type PendingSummary struct {
	TotalSources int            `json:"total_sources"`
	Processed    int            `json:"processed"`
	Failed       int            `json:"failed"`
	Skipped      int            `json:"skipped"`
	Results      []SourceResult `json:"results"`
}

type StudyKitSummary struct {
	StudyKitID       string         `json:"studyKitId"`
	TotalSources     int            `json:"total_sources"`
	AlreadyProcessed int            `json:"already_processed"`
	NewlyProcessed   int            `json:"newly_processed"`
	Failed           int            `json:"failed"`
	Skipped          int            `json:"skipped"`
	Results          []SourceResult `json:"results"`
}

type StatusSummary struct {
	UnprocessedCount int64 `json:"unprocessed_count"`
	ProcessedCount   int64 `json:"processed_count"`
	TotalSources     int64 `json:"total_sources"`
}

// ProcessSource ingests one source into collection. It never returns an
// error: every outcome is reported in the result.
func (m *Manager) ProcessSource(ctx context.Context, src *domain.Source, collection string) SourceResult {
	if src == nil {
		return SourceResult{Status: StatusFailed, Error: errNilSource, FileName: "unknown"}
	}
	collection = m.collection(collection)
	res := SourceResult{SourceID: src.ID.String(), FileName: fileName(src)}

	ctx, span := observability.Tracer().Start(ctx, "ingestion.source", trace.WithAttributes(
		attribute.String("source_id", res.SourceID),
		attribute.String("collection", collection),
	))
	defer span.End()
	log := m.log.With(append(ctxutil.LogFields(ctx), "source_id", res.SourceID, "file_name", res.FileName)...)

	fail := func(err error) SourceResult {
		span.RecordError(err)
		span.SetStatus(codes.Error, StatusFailed)
		log.Error("source ingestion failed", "error", err)
		res.Status, res.Error, res.Chunks = StatusFailed, err.Error(), 0
		return res
	}

	url := strings.TrimSpace(src.FileURL)
	if url == "" {
		log.Warn("source has no file url")
		res.Status, res.Reason = StatusSkipped, ReasonMissingURL
		return res
	}

	data, err := m.loader.Download(ctx, url)
	if err != nil {
		return fail(err)
	}
	text, detected, err := m.loader.ExtractText(url, data)
	if err != nil {
		return fail(fmt.Errorf("extract %s: %w", detected, err))
	}
	res.DetectedType = detected
	if strings.TrimSpace(text) == "" {
		log.Warn("no text extracted", "detected_type", detected)
		res.Status, res.Reason = StatusSkipped, ReasonNoText
		return res
	}

	fileType := strings.TrimSpace(src.FileType)
	if fileType == "" {
		fileType = detected
	}
	chunks := m.splitter.Chunks(text, map[string]any{
		"source_id":  res.SourceID,
		"file_url":   url,
		"file_name":  res.FileName,
		"file_type":  fileType,
		"studyKitId": src.StudyKitID,
		"file_size":  src.FileSize,
	})
	if _, err := m.index.Upsert(ctx, chunks, collection); err != nil {
		return fail(fmt.Errorf("index upsert: %w", err))
	}
	updated, err := m.store.MarkProcessed(ctx, src.ID, detected)
	if err != nil {
		return fail(fmt.Errorf("mark processed: %w", err))
	}
	if !updated {
		log.Warn("source row not updated when marking processed")
	}

	span.SetAttributes(attribute.Int("chunks", len(chunks)))
	log.Info("source ingested", "chunks", len(chunks), "detected_type", detected)
	res.Status, res.Chunks = StatusSuccess, len(chunks)
	return res
}

// IngestPending processes up to limit unprocessed sources.
func (m *Manager) IngestPending(ctx context.Context, limit, maxConcurrency int, collection string) (*PendingSummary, error) {
	if limit <= 0 {
		limit = DefaultPendingLimit
	}
	sources, err := m.store.FetchUnprocessed(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch unprocessed sources: %w", err)
	}
	results := m.processAll(ctx, sources, maxConcurrency, collection)
	out := &PendingSummary{TotalSources: len(sources), Results: results}
	out.Processed, out.Failed, out.Skipped = tally(results)
	m.log.Info("pending ingestion finished", append(ctxutil.LogFields(ctx),
		"total", out.TotalSources, "processed", out.Processed, "failed", out.Failed, "skipped", out.Skipped)...)
	return out, nil
}

// IngestStudyKit processes the study kit's sources that are not yet processed.
func (m *Manager) IngestStudyKit(ctx context.Context, studyKitID string, maxConcurrency int, collection string) (*StudyKitSummary, error) {
	studyKitID = strings.TrimSpace(studyKitID)
	if studyKitID == "" {
		return nil, apierr.BadRequest("invalid_request", "studyKitId is required")
	}
	all, err := m.store.GetByStudyKit(ctx, studyKitID)
	if err != nil {
		return nil, fmt.Errorf("fetch study kit sources: %w", err)
	}
	pending := make([]*domain.Source, 0, len(all))
	for _, s := range all {
		if !s.Processed {
			pending = append(pending, s)
		}
	}
	results := m.processAll(ctx, pending, maxConcurrency, collection)
	out := &StudyKitSummary{
		StudyKitID:       studyKitID,
		TotalSources:     len(all),
		AlreadyProcessed: len(all) - len(pending),
		Results:          results,
	}
	out.NewlyProcessed, out.Failed, out.Skipped = tally(results)
	m.log.Info("study kit ingestion finished", append(ctxutil.LogFields(ctx),
		"studyKitId", studyKitID, "total", out.TotalSources, "newly_processed", out.NewlyProcessed, "failed", out.Failed)...)
	return out, nil
}

func (m *Manager) Status(ctx context.Context) (*StatusSummary, error) {
	processed, unprocessed, err := m.store.CountByProcessed(ctx)
	if err != nil {
		return nil, fmt.Errorf("count sources: %w", err)
	}
	return &StatusSummary{
		UnprocessedCount: unprocessed,
		ProcessedCount:   processed,
		TotalSources:     processed + unprocessed,
	}, nil
}

// processAll is the bulkhead: at most maxConcurrency sources in flight, and
// a failing or panicking source only affects its own result.
func (m *Manager) processAll(ctx context.Context, sources []*domain.Source, maxConcurrency int, collection string) []SourceResult {
	if maxConcurrency <= 0 {
		maxConcurrency = m.cfg.MaxConcurrency
	}
	results := make([]SourceResult, len(sources))

	var g errgroup.Group
	g.SetLimit(maxConcurrency)
	for i, src := range sources {
		i, src := i, src
		if src == nil {
			m.log.Warn("skipping nil source record", ctxutil.LogFields(ctx)...)
			results[i] = m.ProcessSource(ctx, nil, collection)
			observability.Current().IncIngestedSource(results[i].Status)
			continue
		}
		g.Go(func() error {
			var pc panics.Catcher
			pc.Try(func() { results[i] = m.ProcessSource(ctx, src, collection) })
			if r := pc.Recovered(); r != nil {
				m.log.Error("source ingestion panicked", append(ctxutil.LogFields(ctx), "source_id", src.ID.String(), "panic", r.String())...)
				results[i] = SourceResult{
					SourceID: src.ID.String(),
					Status:   StatusFailed,
					Error:    r.AsError().Error(),
					FileName: fileName(src),
				}
			}
			observability.Current().IncIngestedSource(results[i].Status)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func tally(results []SourceResult) (success, failed, skipped int) {
	for _, r := range results {
		switch r.Status {
		case StatusSuccess:
			success++
		case StatusFailed:
			failed++
		case StatusSkipped:
			skipped++
		}
	}
	return
}

func (m *Manager) collection(name string) string {
	if n := strings.TrimSpace(name); n != "" {
		return n
	}
	return m.cfg.DefaultCollection
}

func fileName(src *domain.Source) string {
	if n := strings.TrimSpace(src.FileName); n != "" {
		return n
	}
	return "unknown"
}
