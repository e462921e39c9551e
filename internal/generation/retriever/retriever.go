// Package retriever turns vector index hits into labeled context passages.
package retriever

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/yungbote/studykit-backend/internal/domain"
	"github.com/yungbote/studykit-backend/internal/generation/generr"
	"github.com/yungbote/studykit-backend/internal/platform/logger"
)

// Index is the similarity search side of the vector index. Hits come back
// best first, optionally prefixed with a "[label] " source tag.
type Index interface {
	Retrieve(ctx context.Context, query string, k int, collection string) ([]string, error)
}

type Retriever struct {
	log   *logger.Logger
	index Index
}

func New(log *logger.Logger, index Index) *Retriever {
	return &Retriever{log: log.With("service", "ContextRetriever"), index: index}
}

var labelPrefix = regexp.MustCompile(`^\[([^\]\n]+)\]\s*`)

// SplitLabel separates a leading "[label]" tag from the passage text.
func SplitLabel(raw string) domain.ContextPassage {
	raw = strings.TrimSpace(raw)
	if m := labelPrefix.FindStringSubmatchIndex(raw); m != nil {
		return domain.ContextPassage{
			Label: strings.TrimSpace(raw[m[2]:m[3]]),
			Text:  strings.TrimSpace(raw[m[1]:]),
		}
	}
	return domain.ContextPassage{Text: raw}
}

// Retrieve returns up to k passages in relevance order. Index failures are
// reported as *generr.RetrievalFailure so callers can fall back to no context.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int, collection string) ([]domain.ContextPassage, error) {
	if r == nil || r.index == nil {
		return nil, &generr.RetrievalFailure{Op: "retrieve", Err: errNoIndex}
	}
	query = strings.TrimSpace(query)
	if query == "" || k <= 0 {
		return []domain.ContextPassage{}, nil
	}
	hits, err := r.index.Retrieve(ctx, query, k, collection)
	if err != nil {
		return nil, &generr.RetrievalFailure{Op: "retrieve", Err: err}
	}
	out := make([]domain.ContextPassage, 0, len(hits))
	for _, h := range hits {
		p := SplitLabel(h)
		if p.Text == "" {
			continue
		}
		out = append(out, p)
	}
	r.log.Debug("context retrieved", "collection", collection, "k", k, "passages", len(out))
	return out, nil
}

var errNoIndex = errors.New("no vector index configured")
