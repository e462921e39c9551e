package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yungbote/studykit-backend/internal/platform/httpx"
	"github.com/yungbote/studykit-backend/internal/platform/logger"
)

func newTestClient(t *testing.T, srv *httptest.Server, retries int) Client {
	t.Helper()
	c, err := NewClient(logger.Nop(), Config{
		APIKey:     "sk-test",
		BaseURL:    srv.URL,
		Model:      "gpt-test",
		Timeout:    5 * time.Second,
		MaxRetries: retries,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func writeOutput(w http.ResponseWriter, text string) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"output": []any{map[string]any{
			"type": "message",
			"role": "assistant",
			"content": []any{map[string]any{
				"type": "output_text",
				"text": text,
			}},
		}},
		"usage": map[string]any{"input_tokens": 10, "output_tokens": 3},
	})
}

func TestNewClientRequiresKey(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(logger.Nop(), Config{}); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("err=%v want ErrMissingAPIKey", err)
	}
}

func TestGenerateTextSendsMessagesAndTemperature(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/responses" {
			t.Errorf("path=%s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("authorization=%q", got)
		}
		var req responsesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Model != "gpt-test" || len(req.Input) != 2 || req.Input[0].Role != "system" || req.Input[1].Content != "u" {
			t.Errorf("unexpected request %+v", req)
		}
		if req.Temperature == nil || *req.Temperature != 0.3 {
			t.Errorf("temperature=%v", req.Temperature)
		}
		writeOutput(w, `{"summary":"x"}`)
	}))
	defer srv.Close()

	temp := 0.3
	got, err := newTestClient(t, srv, 0).GenerateText(context.Background(), "s", "u", &temp)
	if err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if got != `{"summary":"x"}` {
		t.Fatalf("got %q", got)
	}
}

func TestGenerateTextDropsRejectedTemperature(t *testing.T) {
	t.Parallel()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		var req responsesRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if n == 1 {
			if req.Temperature == nil {
				t.Errorf("first call should carry temperature")
			}
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"Unsupported parameter: 'temperature' is not supported with this model."}}`))
			return
		}
		if req.Temperature != nil {
			t.Errorf("retry should omit temperature")
		}
		writeOutput(w, "ok")
	}))
	defer srv.Close()

	c := newTestClient(t, srv, 0)
	temp := 0.0
	if _, err := c.GenerateText(context.Background(), "s", "u", &temp); err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if _, err := c.GenerateText(context.Background(), "s", "u", &temp); err != nil {
		t.Fatalf("second GenerateText: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("calls=%d want 3 (learned no-temperature model)", got)
	}
}

func TestGenerateTextRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeOutput(w, "ok")
	}))
	defer srv.Close()

	if _, err := newTestClient(t, srv, 2).GenerateText(context.Background(), "s", "u", nil); err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("calls=%d want 2", got)
	}
}

func TestGenerateTextReturnsStatusError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"bad key"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv, 3).GenerateText(context.Background(), "s", "u", nil)
	var se *httpx.StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusUnauthorized {
		t.Fatalf("err=%v want 401 StatusError", err)
	}
}

func TestEmbedOrdersByIndex(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("path=%s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []any{
				map[string]any{"index": 1, "embedding": []float64{2, 2}},
				map[string]any{"index": 0, "embedding": []float64{1, 1}},
			},
		})
	}))
	defer srv.Close()

	vecs, err := newTestClient(t, srv, 0).Embed(context.Background(), []string{"a", ""})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vecs) != 2 || vecs[0][0] != 1 || vecs[1][0] != 2 {
		t.Fatalf("vecs=%v", vecs)
	}
}
