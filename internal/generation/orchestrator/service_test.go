package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/yungbote/studykit-backend/internal/domain"
	"github.com/yungbote/studykit-backend/internal/generation/generr"
	"github.com/yungbote/studykit-backend/internal/generation/llm"
	"github.com/yungbote/studykit-backend/internal/generation/topics"
	"github.com/yungbote/studykit-backend/internal/platform/apierr"
	"github.com/yungbote/studykit-backend/internal/platform/logger"
)

// scriptedLLM answers each call with respond(call index, request).
type scriptedLLM struct {
	mu       sync.Mutex
	requests []llm.Request
	respond  func(i int, req llm.Request) (string, error)
}

func (f *scriptedLLM) Generate(ctx context.Context, req llm.Request) (string, error) {
	f.mu.Lock()
	i := len(f.requests)
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.respond(i, req)
}
func (f *scriptedLLM) Provider() llm.Provider { return llm.ProviderOpenAI }
func (f *scriptedLLM) Model() string          { return "fake-model" }

func (f *scriptedLLM) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type fakeRetriever struct {
	passages []domain.ContextPassage
	err      error
	queries  []string
	colls    []string
}

func (f *fakeRetriever) Retrieve(ctx context.Context, query string, k int, collection string) ([]domain.ContextPassage, error) {
	f.queries = append(f.queries, query)
	f.colls = append(f.colls, collection)
	return f.passages, f.err
}

var (
	countRe = regexp.MustCompile(`Generate exactly (\d+) multiple-choice questions about the topic: "([^"]+)"`)
	cardRe  = regexp.MustCompile(`Create (\d+) flashcards for the topic: "([^"]+)"`)
)

func mcqJSON(topic string, n int) string {
	items := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, map[string]any{
			"id":         fmt.Sprintf("q_%s_%d", topic, i),
			"questionId": i + 1,
			"question":   fmt.Sprintf("%s question %d?", topic, i+1),
			"choices": []map[string]string{
				{"key": "A", "text": "a"}, {"key": "B", "text": "b"},
				{"key": "C", "text": "c"}, {"key": "D", "text": "d"},
			},
			"correctOption": "B",
			"explanation":   []string{"Because."},
			"difficulty":    "medium",
			"tags":          []string{topic},
		})
	}
	b, _ := json.Marshal(map[string]any{"mcqs": items})
	return string(b)
}

// mcqModel returns exactly the requested count for the topic in the prompt.
func mcqModel() *scriptedLLM {
	return &scriptedLLM{respond: func(i int, req llm.Request) (string, error) {
		m := countRe.FindStringSubmatch(req.User)
		if m == nil {
			return "", fmt.Errorf("unexpected prompt: %s", req.User)
		}
		n, _ := strconv.Atoi(m[1])
		return mcqJSON(m[2], n), nil
	}}
}

func newService(client llm.Client, r ContextRetriever) *Service {
	reg := llm.NewRegistry(logger.Nop(), client)
	return NewService(logger.Nop(), reg, topics.NewResolver(logger.Nop(), nil, nil), r, Config{})
}

func TestGenerateMCQsDistributesAcrossTopicsInOrder(t *testing.T) {
	t.Parallel()

	model := mcqModel()
	svc := newService(model, nil)
	out, err := svc.GenerateMCQs(context.Background(), ItemRequest{
		Topics: []string{"Binary Search", "Hashing"},
		N:      5,
	})
	if err != nil {
		t.Fatalf("GenerateMCQs: %v", err)
	}
	if len(out.MCQs) != 5 {
		t.Fatalf("got %d items want 5", len(out.MCQs))
	}
	for i, want := range []string{"Binary Search", "Binary Search", "Binary Search", "Hashing", "Hashing"} {
		if out.MCQs[i].Tags[0] != want {
			t.Fatalf("item %d from %q want %q", i, out.MCQs[i].Tags[0], want)
		}
	}
	if model.calls() != 2 {
		t.Fatalf("calls=%d want 2", model.calls())
	}
	for _, req := range model.requests {
		if req.Temperature != creativeTemperature {
			t.Fatalf("temperature=%v", req.Temperature)
		}
	}
}

func TestGenerateMCQsEmptyTopicsIsEmptyResult(t *testing.T) {
	t.Parallel()

	model := mcqModel()
	out, err := newService(model, nil).GenerateMCQs(context.Background(), ItemRequest{N: 3})
	if err != nil {
		t.Fatalf("GenerateMCQs: %v", err)
	}
	if out.MCQs == nil || len(out.MCQs) != 0 || model.calls() != 0 {
		t.Fatalf("want empty non-nil result and no calls, got %#v calls=%d", out.MCQs, model.calls())
	}
	b, _ := json.Marshal(out)
	if string(b) != `{"mcqs":[]}` {
		t.Fatalf("json=%s", b)
	}
}

func TestValidationFailureAbortsWholeRequest(t *testing.T) {
	t.Parallel()

	model := &scriptedLLM{respond: func(i int, req llm.Request) (string, error) {
		if i == 0 {
			return mcqJSON("A", 1), nil
		}
		return strings.Replace(mcqJSON("B", 1), `"correctOption":"B"`, `"correctOption":"E"`, 1), nil
	}}
	out, err := newService(model, nil).GenerateMCQs(context.Background(), ItemRequest{Topics: []string{"A", "B", "C"}, N: 3})
	var ve *generr.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err=%v want ValidationError", err)
	}
	if ve.Schema != "mcq-set" || !strings.Contains(err.Error(), `topic "B"`) {
		t.Fatalf("error lacks schema or topic: %v", err)
	}
	if len(out.MCQs) != 0 {
		t.Fatalf("partial result leaked: %d items", len(out.MCQs))
	}
	if model.calls() != 2 {
		t.Fatalf("third topic should not run, calls=%d", model.calls())
	}
}

func TestProseOutputIsParseError(t *testing.T) {
	t.Parallel()

	prose := &scriptedLLM{respond: func(int, llm.Request) (string, error) {
		return "Sorry, I cannot help with that.", nil
	}}
	svc := newService(prose, nil)
	ctx := context.Background()

	_, err := svc.GenerateMCQs(ctx, ItemRequest{Topic: "x", N: 1})
	checkParse := func(name string, err error) {
		t.Helper()
		var pe *generr.ParseError
		if !errors.As(err, &pe) {
			t.Fatalf("%s: err=%v want ParseError", name, err)
		}
		if !strings.Contains(pe.Raw, "Sorry") {
			t.Fatalf("%s: raw not carried", name)
		}
	}
	checkParse("mcq", err)
	_, err = svc.GenerateFlashcards(ctx, ItemRequest{Topic: "x", N: 1})
	checkParse("flashcards", err)
	_, err = svc.GenerateTest(ctx, TestRequest{Topic: "x", N: 1})
	checkParse("test", err)
	_, err = svc.Summarize(ctx, SummaryRequest{Text: "some text"})
	checkParse("summary", err)
}

func TestSummarizeStripsFences(t *testing.T) {
	t.Parallel()

	model := &scriptedLLM{respond: func(int, llm.Request) (string, error) {
		return "```json\n{\"summary\":\"x\"}\n```", nil
	}}
	out, err := newService(model, nil).Summarize(context.Background(), SummaryRequest{Text: "Binary search halves the range."})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if out.Summary != "x" {
		t.Fatalf("summary=%q", out.Summary)
	}
	if model.requests[0].Temperature != deterministicTemperature {
		t.Fatalf("summary temperature=%v", model.requests[0].Temperature)
	}
}

func TestSummarizeRejectsEmptyText(t *testing.T) {
	t.Parallel()

	model := &scriptedLLM{respond: func(int, llm.Request) (string, error) { return `{"summary":"x"}`, nil }}
	_, err := newService(model, nil).Summarize(context.Background(), SummaryRequest{Text: "  "})
	var ae *apierr.Error
	if !errors.As(err, &ae) || ae.Status != http.StatusBadRequest {
		t.Fatalf("err=%v want 400 apierr", err)
	}
	if model.calls() != 0 {
		t.Fatalf("model should not be called")
	}
}

func TestRAGChatWithoutPassagesReturnsSentinel(t *testing.T) {
	t.Parallel()

	model := &scriptedLLM{respond: func(int, llm.Request) (string, error) { return `{"answer":"no","citations":[]}`, nil }}
	for name, r := range map[string]ContextRetriever{
		"empty":  &fakeRetriever{},
		"failed": &fakeRetriever{err: errors.New("qdrant down")},
		"nil":    nil,
	} {
		out, err := newService(model, r).RAGChat(context.Background(), RAGRequest{Query: "what is hashing?"})
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		b, _ := json.Marshal(out)
		if string(b) != `{"answer":"I don't know — no relevant context found.","citations":[]}` {
			t.Fatalf("%s: got %s", name, b)
		}
	}
	if model.calls() != 0 {
		t.Fatalf("LLM called %d times", model.calls())
	}
}

func TestRAGChatUsesNumberedContextAndCollection(t *testing.T) {
	t.Parallel()

	r := &fakeRetriever{passages: []domain.ContextPassage{
		{Text: "Hash tables map keys to buckets.", Label: "week2.pdf"},
		{Text: "Collisions are chained."},
	}}
	model := &scriptedLLM{respond: func(int, llm.Request) (string, error) {
		return `{"answer":"Keys map to buckets.","citations":["week2.pdf"]}`, nil
	}}
	out, err := newService(model, r).RAGChat(context.Background(), RAGRequest{Query: " what is hashing? ", Collection: "cs101"})
	if err != nil {
		t.Fatalf("RAGChat: %v", err)
	}
	if out.Answer != "Keys map to buckets." || len(out.Citations) != 1 || out.Citations[0] != "week2.pdf" {
		t.Fatalf("out=%+v", out)
	}
	if r.queries[0] != "what is hashing?" || r.colls[0] != "cs101" {
		t.Fatalf("retrieval query=%q collection=%q", r.queries[0], r.colls[0])
	}
	user := model.requests[0].User
	if !strings.Contains(user, "[1] source: week2.pdf") || !strings.Contains(user, "[2] source: passage-2") {
		t.Fatalf("numbered context missing:\n%s", user)
	}
}

func TestRetrieverFailureProceedsWithoutContext(t *testing.T) {
	t.Parallel()

	model := mcqModel()
	r := &fakeRetriever{err: &generr.RetrievalFailure{Op: "retrieve", Err: errors.New("timeout")}}
	out, err := newService(model, r).GenerateMCQs(context.Background(), ItemRequest{
		Topics: []string{"Graphs", "Trees"}, N: 2, UseRetriever: true,
	})
	if err != nil {
		t.Fatalf("GenerateMCQs: %v", err)
	}
	if len(out.MCQs) != 2 {
		t.Fatalf("items=%d", len(out.MCQs))
	}
	if len(r.queries) != 1 || r.queries[0] != "Graphs" || r.colls[0] != DefaultCollection {
		t.Fatalf("retrieval should run once on first topic: %q %q", r.queries, r.colls)
	}
	if strings.Contains(model.requests[0].User, "CONTEXT:") {
		t.Fatalf("prompt should have no context block")
	}
}

func TestRetrievedContextIsSharedAcrossTopics(t *testing.T) {
	t.Parallel()

	model := &scriptedLLM{respond: func(i int, req llm.Request) (string, error) {
		m := cardRe.FindStringSubmatch(req.User)
		if m == nil {
			return "", fmt.Errorf("unexpected prompt")
		}
		return fmt.Sprintf(`{"flashcards":[{"front":"%s","back":"b"}]}`, m[2]), nil
	}}
	r := &fakeRetriever{passages: []domain.ContextPassage{{Text: "Stacks are LIFO."}}}
	out, err := newService(model, r).GenerateFlashcards(context.Background(), ItemRequest{
		Topics: []string{"Stacks", "Queues"}, N: 2, UseRetriever: true, Collection: "kit-col",
	})
	if err != nil {
		t.Fatalf("GenerateFlashcards: %v", err)
	}
	if len(out.Flashcards) != 2 || out.Flashcards[0].Front != "Stacks" || out.Flashcards[1].Front != "Queues" {
		t.Fatalf("flashcards=%+v", out.Flashcards)
	}
	if len(r.queries) != 1 || r.colls[0] != "kit-col" {
		t.Fatalf("retrieval calls=%q colls=%q", r.queries, r.colls)
	}
	for _, req := range model.requests {
		if !strings.Contains(req.User, "CONTEXT:\nStacks are LIFO.") {
			t.Fatalf("context missing from prompt:\n%s", req.User)
		}
	}
}

func TestExplicitContextsSkipRetrieval(t *testing.T) {
	t.Parallel()

	model := mcqModel()
	r := &fakeRetriever{passages: []domain.ContextPassage{{Text: "retrieved"}}}
	_, err := newService(model, r).GenerateMCQs(context.Background(), ItemRequest{
		Topic: "Sorting", N: 1, UseRetriever: true,
		Contexts: []domain.ContextPassage{{Text: "supplied passage"}},
	})
	if err != nil {
		t.Fatalf("GenerateMCQs: %v", err)
	}
	if len(r.queries) != 0 {
		t.Fatalf("retriever should not be called")
	}
	if !strings.Contains(model.requests[0].User, "supplied passage") {
		t.Fatalf("supplied context missing")
	}
}

func TestGenerateTestDefaultsAndDifficulty(t *testing.T) {
	t.Parallel()

	model := &scriptedLLM{respond: func(int, llm.Request) (string, error) {
		return `{"test":[{"question":"2+2?","type":"mcq","options":["3","4","5","6"],"answer":"4"},{"question":"Sky is blue","type":"true_false","answer":"true"}]}`, nil
	}}
	r := &fakeRetriever{passages: []domain.ContextPassage{{Text: "ctx"}}}
	svc := newService(model, r)

	out, err := svc.GenerateTest(context.Background(), TestRequest{Topic: "Arithmetic", N: 5})
	if err != nil {
		t.Fatalf("GenerateTest: %v", err)
	}
	if len(out.Test) != 2 {
		t.Fatalf("items=%d", len(out.Test))
	}
	user := model.requests[0].User
	if !strings.Contains(user, "Create 5 test items") || !strings.Contains(user, "difficulty: easy") {
		t.Fatalf("defaults not applied:\n%s", user)
	}
	if len(r.queries) != 0 {
		t.Fatalf("test without a study kit should not retrieve")
	}

	_, err = svc.GenerateTest(context.Background(), TestRequest{Topic: "Arithmetic", Difficulty: "brutal"})
	var ae *apierr.Error
	if !errors.As(err, &ae) || ae.Status != http.StatusBadRequest {
		t.Fatalf("err=%v want 400", err)
	}
}

func TestUnknownProviderIsConfigurationError(t *testing.T) {
	t.Parallel()

	model := mcqModel()
	svc := newService(model, nil)
	_, err := svc.GenerateMCQs(context.Background(), ItemRequest{Topic: "x", N: 1, Provider: "anthropic-ish"})
	var ce *generr.ConfigurationError
	if !errors.As(err, &ce) || ce.Setting != "provider" {
		t.Fatalf("err=%v want provider ConfigurationError", err)
	}
	_, err = svc.Summarize(context.Background(), SummaryRequest{Text: "t", Provider: "groq"})
	if !errors.As(err, &ce) || ce.Setting != "GROQ_API_KEY" {
		t.Fatalf("err=%v want missing credential", err)
	}
	if model.calls() != 0 {
		t.Fatalf("model should not be called")
	}
}

func TestUpstreamErrorPropagates(t *testing.T) {
	t.Parallel()

	model := &scriptedLLM{respond: func(int, llm.Request) (string, error) {
		return "", &generr.UpstreamTransportError{Service: "openai", StatusCode: 503, Err: errors.New("unavailable")}
	}}
	_, err := newService(model, nil).GenerateFlashcards(context.Background(), ItemRequest{Topic: "x", N: 3})
	if kind, _ := generr.KindOf(err); kind != generr.KindUpstreamTransport {
		t.Fatalf("err=%v kind=%q", err, kind)
	}
	if !strings.Contains(model.requests[0].User, "Create 3 flashcards") {
		t.Fatalf("flashcard count not passed through:\n%s", model.requests[0].User)
	}
}

func TestNonPositiveCountMakesNoModelCalls(t *testing.T) {
	t.Parallel()

	model := mcqModel()
	r := &fakeRetriever{passages: []domain.ContextPassage{{Text: "ctx"}}}
	svc := newService(model, r)
	ctx := context.Background()

	for _, n := range []int{0, -1} {
		mcqs, err := svc.GenerateMCQs(ctx, ItemRequest{Topics: []string{"A", "B"}, N: n, UseRetriever: true})
		if err != nil || mcqs.MCQs == nil || len(mcqs.MCQs) != 0 {
			t.Fatalf("n=%d mcqs=%#v err=%v", n, mcqs.MCQs, err)
		}
		cards, err := svc.GenerateFlashcards(ctx, ItemRequest{Topic: "A", N: n})
		if err != nil || cards.Flashcards == nil || len(cards.Flashcards) != 0 {
			t.Fatalf("n=%d flashcards=%#v err=%v", n, cards.Flashcards, err)
		}
		test, err := svc.GenerateTest(ctx, TestRequest{Topic: "A", StudyKitID: "kit", N: n})
		if err != nil || test.Test == nil || len(test.Test) != 0 {
			t.Fatalf("n=%d test=%#v err=%v", n, test.Test, err)
		}
	}
	if model.calls() != 0 || len(r.queries) != 0 {
		t.Fatalf("calls=%d retrievals=%d want none", model.calls(), len(r.queries))
	}
}

func TestBlankExplicitTopicsAreDropped(t *testing.T) {
	t.Parallel()

	model := mcqModel()
	svc := newService(model, nil)

	out, err := svc.GenerateMCQs(context.Background(), ItemRequest{Topics: []string{"Hashing", "  "}, N: 4})
	if err != nil {
		t.Fatalf("GenerateMCQs: %v", err)
	}
	if len(out.MCQs) != 4 || model.calls() != 1 {
		t.Fatalf("items=%d calls=%d want 4 items from one call", len(out.MCQs), model.calls())
	}
	for _, q := range out.MCQs {
		if !strings.HasPrefix(q.Question, "Hashing question") {
			t.Fatalf("unexpected question %q", q.Question)
		}
	}

	out, err = svc.GenerateMCQs(context.Background(), ItemRequest{Topics: []string{" ", "\t"}, N: 4})
	if err != nil || out.MCQs == nil || len(out.MCQs) != 0 {
		t.Fatalf("blank-only topics: items=%#v err=%v", out.MCQs, err)
	}
	if model.calls() != 1 {
		t.Fatalf("blank-only topics reached the model")
	}
}

func TestOutcome(t *testing.T) {
	t.Parallel()

	cases := map[string]error{
		"ok":               nil,
		"parse_error":      fmt.Errorf("topic: %w", &generr.ParseError{Raw: "x"}),
		"validation_error": &generr.ValidationError{Schema: "summary"},
		"invalid_request":  apierr.New(400, "invalid_request", errors.New("bad")),
		"canceled":         context.Canceled,
		"error":            errors.New("boom"),
	}
	for want, err := range cases {
		if got := Outcome(err); got != want {
			t.Fatalf("Outcome(%v)=%q want %q", err, got, want)
		}
	}
}
