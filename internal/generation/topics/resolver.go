// Package topics decides which topics a generation request covers.
package topics

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/yungbote/studykit-backend/internal/domain"
	"github.com/yungbote/studykit-backend/internal/generation/jsonx"
	"github.com/yungbote/studykit-backend/internal/generation/llm"
	"github.com/yungbote/studykit-backend/internal/generation/prompts"
	"github.com/yungbote/studykit-backend/internal/generation/schema"
	"github.com/yungbote/studykit-backend/internal/platform/ctxutil"
	"github.com/yungbote/studykit-backend/internal/platform/logger"
)

const (
	DefaultK = 5

	// Sample text budget for study kit topic extraction.
	MaxSnippetChars = 1200
	MaxSampleChars  = 15000
)

type SourceStore interface {
	FetchProcessed(ctx context.Context, studyKitID string) ([]*domain.Source, error)
}

type DocumentLoader interface {
	Download(ctx context.Context, fileURL string) ([]byte, error)
	ExtractText(fileURL string, data []byte) (text string, detectedType string, err error)
}

type Request struct {
	Topic      string
	Topics     []string
	StudyKitID string
	// K is how many topics to extract from a study kit. Zero means DefaultK.
	K int
}

type Resolver struct {
	log    *logger.Logger
	store  SourceStore
	loader DocumentLoader
}

func NewResolver(log *logger.Logger, store SourceStore, loader DocumentLoader) *Resolver {
	return &Resolver{log: log.With("service", "TopicResolver"), store: store, loader: loader}
}

// Resolve returns topics in priority order: explicit list, then study kit
// extraction, then the single topic. It never fails; extraction problems
// yield an empty list.
func (r *Resolver) Resolve(ctx context.Context, req Request, client llm.Client) []string {
	if explicit := Clean(req.Topics); len(explicit) > 0 {
		return explicit
	}
	weighted := r.ResolveWeighted(ctx, req, client)
	out := make([]string, 0, len(weighted))
	for _, w := range weighted {
		out = append(out, w.Topic)
	}
	return out
}

// Clean drops blank entries from an explicit topic list. Non-blank entries
// are kept as given, in order. A list of only blanks counts as no list.
func Clean(topics []string) []string {
	out := make([]string, 0, len(topics))
	for _, t := range topics {
		if strings.TrimSpace(t) != "" {
			out = append(out, t)
		}
	}
	return out
}

// ResolveWeighted is Resolve with the model's importance weights attached.
// Explicit and single topics carry no weight.
func (r *Resolver) ResolveWeighted(ctx context.Context, req Request, client llm.Client) []schema.WeightedTopic {
	explicit := Clean(req.Topics)
	switch {
	case len(explicit) > 0:
		out := make([]schema.WeightedTopic, 0, len(explicit))
		for _, t := range explicit {
			out = append(out, schema.WeightedTopic{Topic: t})
		}
		return out
	case strings.TrimSpace(req.StudyKitID) != "":
		return r.extract(ctx, strings.TrimSpace(req.StudyKitID), req.K, client)
	case strings.TrimSpace(req.Topic) != "":
		return []schema.WeightedTopic{{Topic: strings.TrimSpace(req.Topic)}}
	default:
		return []schema.WeightedTopic{}
	}
}

func (r *Resolver) extract(ctx context.Context, studyKitID string, k int, client llm.Client) []schema.WeightedTopic {
	log := r.log.With(append(ctxutil.LogFields(ctx), "studyKitId", studyKitID)...)
	empty := []schema.WeightedTopic{}
	if k <= 0 {
		k = DefaultK
	}
	if r.store == nil || client == nil {
		log.Warn("topic extraction unavailable", "has_store", r.store != nil, "has_client", client != nil)
		return empty
	}

	sources, err := r.store.FetchProcessed(ctx, studyKitID)
	if err != nil {
		log.Warn("topic extraction: fetch processed sources failed", "error", err)
		return empty
	}
	if len(sources) == 0 {
		log.Warn("topic extraction: study kit has no processed sources")
		return empty
	}

	sample := r.sampleText(ctx, log, sources)
	if strings.TrimSpace(sample) == "" {
		log.Warn("topic extraction: no sample text", "sources", len(sources))
		return empty
	}

	p, err := prompts.Build(prompts.TaskTopics, prompts.Input{SampleText: sample, K: k})
	if err != nil {
		log.Warn("topic extraction: prompt build failed", "error", err)
		return empty
	}
	raw, err := client.Generate(ctx, llm.Request{System: p.System, User: p.User, Temperature: 0})
	if err != nil {
		log.Warn("topic extraction: llm call failed", "error", err, "provider", client.Provider())
		return empty
	}
	parsed, err := jsonx.Extract(raw)
	if err != nil {
		log.Warn("topic extraction: unparseable model output", "error", err)
		return empty
	}
	list, err := schema.ValidateTopicList(parsed, raw).Unwrap()
	if err != nil {
		log.Warn("topic extraction: invalid topic list", "error", err)
		return empty
	}

	out := dedupe(list.Topics)
	if len(out) > k {
		out = out[:k]
	}
	log.Info("topics extracted", "count", len(out), "sample_chars", utf8.RuneCountInString(sample))
	return out
}

// sampleText concatenates per-document snippets, each headed by its file
// name, until MaxSampleChars is reached.
func (r *Resolver) sampleText(ctx context.Context, log *logger.Logger, sources []*domain.Source) string {
	if r.loader == nil {
		return ""
	}
	var b strings.Builder
	used := 0
	for _, src := range sources {
		if used >= MaxSampleChars {
			break
		}
		if src == nil || strings.TrimSpace(src.FileURL) == "" {
			continue
		}
		data, err := r.loader.Download(ctx, src.FileURL)
		if err != nil {
			log.Warn("topic extraction: download failed", "source_id", src.ID, "error", err)
			continue
		}
		text, _, err := r.loader.ExtractText(src.FileURL, data)
		if err != nil {
			log.Warn("topic extraction: text extraction failed", "source_id", src.ID, "error", err)
			continue
		}
		snippet := truncateRunes(collapseWhitespace(text), MaxSnippetChars)
		if snippet == "" {
			continue
		}
		name := strings.TrimSpace(src.FileName)
		if name == "" {
			name = src.ID.String()
		}
		part := "[" + name + "]\n" + snippet + "\n\n"
		part = truncateRunes(part, MaxSampleChars-used)
		b.WriteString(part)
		used += utf8.RuneCountInString(part)
	}
	return strings.TrimSpace(b.String())
}

func dedupe(in []schema.WeightedTopic) []schema.WeightedTopic {
	seen := make(map[string]bool, len(in))
	out := make([]schema.WeightedTopic, 0, len(in))
	for _, t := range in {
		t.Topic = strings.TrimSpace(t.Topic)
		key := strings.ToLower(t.Topic)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	return out
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max])
}
