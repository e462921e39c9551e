package http

import (
	"context"
	"encoding/json"
	"errors"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/studykit-backend/internal/generation/generr"
	"github.com/yungbote/studykit-backend/internal/generation/orchestrator"
	"github.com/yungbote/studykit-backend/internal/generation/schema"
	httpH "github.com/yungbote/studykit-backend/internal/http/handlers"
	"github.com/yungbote/studykit-backend/internal/ingestion/jobs"
	"github.com/yungbote/studykit-backend/internal/ingestion/manager"
	"github.com/yungbote/studykit-backend/internal/observability"
	"github.com/yungbote/studykit-backend/internal/platform/apierr"
	"github.com/yungbote/studykit-backend/internal/platform/logger"
)

type fakeGeneration struct {
	item    orchestrator.ItemRequest
	test    orchestrator.TestRequest
	rag     orchestrator.RAGRequest
	summary orchestrator.SummaryRequest
	err     error
}

func (f *fakeGeneration) GenerateMCQs(ctx context.Context, req orchestrator.ItemRequest) (schema.MCQSet, error) {
	f.item = req
	return schema.MCQSet{MCQs: []schema.MCQItem{}}, f.err
}

func (f *fakeGeneration) GenerateFlashcards(ctx context.Context, req orchestrator.ItemRequest) (schema.FlashcardSet, error) {
	f.item = req
	return schema.FlashcardSet{Flashcards: []schema.FlashcardItem{}}, f.err
}

func (f *fakeGeneration) GenerateTest(ctx context.Context, req orchestrator.TestRequest) (schema.TestSet, error) {
	f.test = req
	return schema.TestSet{Test: []schema.TestItem{}}, f.err
}

func (f *fakeGeneration) Summarize(ctx context.Context, req orchestrator.SummaryRequest) (schema.Summary, error) {
	f.summary = req
	return schema.Summary{Summary: "short"}, f.err
}

func (f *fakeGeneration) RAGChat(ctx context.Context, req orchestrator.RAGRequest) (schema.RAGAnswer, error) {
	f.rag = req
	return schema.RAGAnswer{Answer: "a", Citations: []string{}}, f.err
}

type fakeIngestion struct {
	limit, conc int
	kit, coll   string
}

func (f *fakeIngestion) IngestPending(ctx context.Context, limit, maxConcurrency int, collection string) (*manager.PendingSummary, error) {
	f.limit, f.conc, f.coll = limit, maxConcurrency, collection
	return &manager.PendingSummary{Results: []manager.SourceResult{}}, nil
}

func (f *fakeIngestion) IngestStudyKit(ctx context.Context, studyKitID string, maxConcurrency int, collection string) (*manager.StudyKitSummary, error) {
	if studyKitID == "" {
		return nil, apierr.New(400, "invalid_request", errors.New("studyKitId is required"))
	}
	f.kit, f.conc = studyKitID, maxConcurrency
	return &manager.StudyKitSummary{StudyKitID: studyKitID, Results: []manager.SourceResult{}}, nil
}

func (f *fakeIngestion) StartPending(ctx context.Context, limit, maxConcurrency int, collection string) (*jobs.Job, error) {
	return jobs.New(jobs.KindPending, ""), nil
}

func (f *fakeIngestion) StartStudyKit(ctx context.Context, studyKitID string, maxConcurrency int, collection string) (*jobs.Job, error) {
	return jobs.New(jobs.KindStudyKit, studyKitID), nil
}

func (f *fakeIngestion) Job(ctx context.Context, id string) (*jobs.Job, error) {
	return nil, apierr.New(404, "job_not_found", jobs.ErrNotFound)
}

func (f *fakeIngestion) Status(ctx context.Context) (*manager.StatusSummary, error) {
	return &manager.StatusSummary{UnprocessedCount: 2, ProcessedCount: 3, TotalSources: 5}, nil
}

func newTestRouter(gen *fakeGeneration, ing *fakeIngestion, m *observability.Metrics) *gin.Engine {
	gin.SetMode(gin.TestMode)
	log := logger.Nop()
	return NewRouter(RouterConfig{
		Log:               log,
		Metrics:           m,
		GenerationHandler: httpH.NewGenerationHandler(log, gen),
		IngestionHandler:  httpH.NewIngestionHandler(log, ing),
		HealthHandler:     httpH.NewHealthHandler(),
		MetricsHandler:    httpH.NewMetricsHandler(m),
	})
}

func do(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return env.Error.Code
}

func TestGenerationRoutesApplyDefaults(t *testing.T) {
	t.Parallel()

	gen := &fakeGeneration{}
	r := newTestRouter(gen, &fakeIngestion{}, nil)

	rec := do(r, nethttp.MethodPost, "/mcq/create", `{"topics":["Heaps","Tries"],"provider":"groq"}`)
	if rec.Code != 200 || rec.Body.String() != `{"mcqs":[]}` {
		t.Fatalf("mcq %d %s", rec.Code, rec.Body.String())
	}
	if gen.item.N != 5 || !gen.item.UseRetriever || gen.item.Provider != "groq" || len(gen.item.Topics) != 2 {
		t.Fatalf("mcq request=%+v", gen.item)
	}

	do(r, nethttp.MethodPost, "/flashcard/create", `{"topic":"Graphs","num_flashcards":3,"use_retriever":false,"collection_name":"kit"}`)
	if gen.item.N != 3 || gen.item.UseRetriever || gen.item.Collection != "kit" {
		t.Fatalf("flashcard request=%+v", gen.item)
	}

	do(r, nethttp.MethodPost, "/mcq/create", `{"topic":"Heaps","num_questions":0}`)
	if gen.item.N != 0 {
		t.Fatalf("explicit zero count replaced: %+v", gen.item)
	}

	do(r, nethttp.MethodPost, "/test/create", `{"topic":"Sorting"}`)
	if gen.test.N != 5 || gen.test.Difficulty != "easy" {
		t.Fatalf("test request=%+v", gen.test)
	}

	for _, path := range []string{"/summarizer/", "/summarizer"} {
		if rec := do(r, nethttp.MethodPost, path, `{"text":"long text"}`); rec.Code != 200 || gen.summary.Text != "long text" {
			t.Fatalf("%s %d %s", path, rec.Code, rec.Body.String())
		}
	}

	do(r, nethttp.MethodPost, "/rag/chat", `{"query":"what is a heap?","collection":"c1"}`)
	if gen.rag.K != 4 || gen.rag.Collection != "c1" {
		t.Fatalf("rag request=%+v", gen.rag)
	}
}

func TestGenerationErrorMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"unknown provider", &generr.ConfigurationError{Setting: "provider", Reason: "unknown provider x"}, 400, "configuration_error"},
		{"missing key", &generr.ConfigurationError{Setting: "GEMINI_API_KEY", Reason: "missing"}, 500, "configuration_error"},
		{"bad model output", &generr.ParseError{Raw: "Sorry"}, 502, "parse_error"},
		{"invalid difficulty", apierr.New(400, "invalid_difficulty", errors.New("bad")), 400, "invalid_difficulty"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			r := newTestRouter(&fakeGeneration{err: tc.err}, &fakeIngestion{}, nil)
			rec := do(r, nethttp.MethodPost, "/test/create", `{"topic":"x"}`)
			if rec.Code != tc.status || errorCode(t, rec) != tc.code {
				t.Fatalf("got %d %s", rec.Code, rec.Body.String())
			}
		})
	}

	r := newTestRouter(&fakeGeneration{}, &fakeIngestion{}, nil)
	rec := do(r, nethttp.MethodPost, "/mcq/create", `{"topic":`)
	if rec.Code != 400 || errorCode(t, rec) != "invalid_request" {
		t.Fatalf("bad json %d %s", rec.Code, rec.Body.String())
	}
}

func TestIngestionRoutes(t *testing.T) {
	t.Parallel()

	ing := &fakeIngestion{}
	r := newTestRouter(&fakeGeneration{}, ing, nil)

	if rec := do(r, nethttp.MethodPost, "/ingestion/ingest/pending", ""); rec.Code != 200 || ing.limit != 50 || ing.conc != 5 {
		t.Fatalf("pending %d limit=%d conc=%d", rec.Code, ing.limit, ing.conc)
	}
	do(r, nethttp.MethodPost, "/ingestion/ingest/pending", `{"limit":7,"max_concurrency":2,"collection_name":"c"}`)
	if ing.limit != 7 || ing.conc != 2 || ing.coll != "c" {
		t.Fatalf("pending params %+v", ing)
	}

	if rec := do(r, nethttp.MethodPost, "/ingestion/ingest/study-kit", `{}`); rec.Code != 400 {
		t.Fatalf("blank kit %d", rec.Code)
	}

	rec := do(r, nethttp.MethodPost, "/ingestion/ingest/background/study-kit", `{"studyKitId":"kit-1"}`)
	if rec.Code != 202 {
		t.Fatalf("background %d", rec.Code)
	}
	var accepted map[string]string
	_ = json.Unmarshal(rec.Body.Bytes(), &accepted)
	if accepted["status"] != "accepted" || accepted["studyKitId"] != "kit-1" || accepted["job_id"] == "" {
		t.Fatalf("accepted body=%v", accepted)
	}

	if rec := do(r, nethttp.MethodGet, "/ingestion/ingest/jobs/abc", ""); rec.Code != 404 || errorCode(t, rec) != "job_not_found" {
		t.Fatalf("job %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(r, nethttp.MethodGet, "/ingestion/ingest/status", ""); rec.Code != 200 || !strings.Contains(rec.Body.String(), `"total_sources":5`) {
		t.Fatalf("status %d %s", rec.Code, rec.Body.String())
	}
}

func TestHealthAndMetrics(t *testing.T) {
	t.Parallel()

	r := newTestRouter(&fakeGeneration{}, &fakeIngestion{}, nil)
	if rec := do(r, nethttp.MethodGet, "/healthcheck", ""); rec.Code != 200 {
		t.Fatalf("health %d", rec.Code)
	}
	if rec := do(r, nethttp.MethodGet, "/metrics", ""); rec.Code != 503 {
		t.Fatalf("disabled metrics %d", rec.Code)
	}

	m := observability.NewMetrics()
	r = newTestRouter(&fakeGeneration{}, &fakeIngestion{}, m)
	do(r, nethttp.MethodGet, "/healthcheck", "")
	rec := do(r, nethttp.MethodGet, "/metrics", "")
	if rec.Code != 200 || !strings.Contains(rec.Body.String(), "/healthcheck") {
		t.Fatalf("metrics %d %s", rec.Code, rec.Body.String())
	}
	rec = do(r, nethttp.MethodGet, "/metrics", "")
	if strings.Contains(rec.Body.String(), `route="/metrics"`) {
		t.Fatalf("scrapes should not be observed:\n%s", rec.Body.String())
	}
}
