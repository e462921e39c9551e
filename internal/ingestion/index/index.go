// Package index embeds chunks into the vector store and serves similarity
// search over them.
package index

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/studykit-backend/internal/ingestion/chunker"
	"github.com/yungbote/studykit-backend/internal/platform/ctxutil"
	"github.com/yungbote/studykit-backend/internal/platform/logger"
	"github.com/yungbote/studykit-backend/internal/platform/qdrant"
)

const (
	DefaultCollection = qdrant.DefaultCollection
	DefaultBatchSize  = 64

	payloadText     = "text"
	payloadFileName = "file_name"
	payloadSourceID = "source_id"
)

// ErrNotConfigured is returned when the index has no vector store or embedder.
var ErrNotConfigured = errors.New("vector index not configured (set QDRANT_URL and OPENAI_API_KEY)")

type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

type Index struct {
	log       *logger.Logger
	embedder  Embedder
	store     qdrant.VectorStore
	batchSize int
}

func New(log *logger.Logger, embedder Embedder, store qdrant.VectorStore) *Index {
	return &Index{
		log:       log.With("service", "VectorIndex"),
		embedder:  embedder,
		store:     store,
		batchSize: DefaultBatchSize,
	}
}

// Upsert embeds chunks in batches and writes them to collection, creating
// the collection on first use. Point ids are derived from source_id and
// chunk_index so re-ingesting a source overwrites its points.
func (x *Index) Upsert(ctx context.Context, chunks []chunker.Chunk, collection string) (int, error) {
	collection = collectionOrDefault(collection)
	if len(chunks) == 0 {
		return 0, nil
	}
	if !x.ready() {
		return 0, ErrNotConfigured
	}
	if err := x.store.EnsureCollection(ctx, collection); err != nil {
		return 0, err
	}

	written := 0
	for start := 0; start < len(chunks); start += x.batchSize {
		end := start + x.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}
		vectors, err := x.embedder.Embed(ctx, texts)
		if err != nil {
			return written, fmt.Errorf("embed chunks: %w", err)
		}
		if len(vectors) != len(batch) {
			return written, fmt.Errorf("embed chunks: got %d vectors for %d inputs", len(vectors), len(batch))
		}

		points := make([]qdrant.Point, len(batch))
		for i, c := range batch {
			payload := make(map[string]any, len(c.Metadata)+1)
			for k, v := range c.Metadata {
				payload[k] = v
			}
			payload[payloadText] = c.Text
			points[i] = qdrant.Point{ID: pointID(c, start+i), Vector: vectors[i], Payload: payload}
		}
		if err := x.store.Upsert(ctx, collection, points); err != nil {
			return written, err
		}
		written += len(points)
	}
	x.log.Info("chunks indexed", append(ctxutil.LogFields(ctx), "collection", collection, "count", written)...)
	return written, nil
}

// Retrieve returns up to k chunk texts, best first, each prefixed with
// "[file_name] " when the chunk carries one.
func (x *Index) Retrieve(ctx context.Context, query string, k int, collection string) ([]string, error) {
	query = strings.TrimSpace(query)
	if query == "" || k <= 0 {
		return []string{}, nil
	}
	if !x.ready() {
		return nil, ErrNotConfigured
	}
	vectors, err := x.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors", len(vectors))
	}
	matches, err := x.store.Search(ctx, collectionOrDefault(collection), vectors[0], k)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		text, _ := m.Payload[payloadText].(string)
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if name, _ := m.Payload[payloadFileName].(string); strings.TrimSpace(name) != "" {
			text = "[" + strings.TrimSpace(name) + "] " + text
		}
		out = append(out, text)
	}
	return out, nil
}

func (x *Index) ready() bool {
	return x != nil && x.store != nil && x.embedder != nil
}

func pointID(c chunker.Chunk, fallback int) string {
	idx, ok := c.Metadata[chunker.MetaChunkIndex]
	if !ok {
		idx = fallback
	}
	if src, _ := c.Metadata[payloadSourceID].(string); src != "" {
		return fmt.Sprintf("%s:%v", src, idx)
	}
	return fmt.Sprintf("chunk:%v", idx)
}

func collectionOrDefault(c string) string {
	if c = strings.TrimSpace(c); c == "" {
		return DefaultCollection
	}
	return c
}
