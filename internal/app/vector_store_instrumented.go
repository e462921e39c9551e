package app

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/studykit-backend/internal/observability"
	"github.com/yungbote/studykit-backend/internal/platform/qdrant"
)

// instrumentedVectorStore records a span and a metric sample per call.
type instrumentedVectorStore struct {
	provider string
	inner    qdrant.VectorStore
	metrics  *observability.Metrics
}

func instrumentVectorStore(provider string, inner qdrant.VectorStore, m *observability.Metrics) qdrant.VectorStore {
	if inner == nil {
		return nil
	}
	return &instrumentedVectorStore{provider: provider, inner: inner, metrics: m}
}

func (s *instrumentedVectorStore) EnsureCollection(ctx context.Context, collection string) error {
	ctx, done := s.start(ctx, "ensure_collection", attribute.String("collection", collection))
	err := s.inner.EnsureCollection(ctx, collection)
	done(err)
	return err
}

func (s *instrumentedVectorStore) Upsert(ctx context.Context, collection string, points []qdrant.Point) error {
	ctx, done := s.start(ctx, "upsert",
		attribute.String("collection", collection),
		attribute.Int("points", len(points)),
	)
	err := s.inner.Upsert(ctx, collection, points)
	done(err)
	return err
}

func (s *instrumentedVectorStore) Search(ctx context.Context, collection string, vector []float32, k int) ([]qdrant.Match, error) {
	ctx, done := s.start(ctx, "search",
		attribute.String("collection", collection),
		attribute.Int("k", k),
	)
	out, err := s.inner.Search(ctx, collection, vector, k)
	done(err)
	return out, err
}

func (s *instrumentedVectorStore) start(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	begin := time.Now()
	attrs = append(attrs, attribute.String("vector.provider", s.provider))
	ctx, span := observability.Tracer().Start(ctx, "vector."+operation, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		status := vectorStatus(err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, status)
		}
		span.End()
		s.metrics.ObserveVectorStoreOperation(s.provider, operation, status, time.Since(begin))
	}
}

// vectorStatus labels an outcome: success, the qdrant error code, or error.
func vectorStatus(err error) string {
	if err == nil {
		return "success"
	}
	var opErr *qdrant.OperationError
	if errors.As(err, &opErr) && opErr.Code != "" {
		return string(opErr.Code)
	}
	return "error"
}
