package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/studykit-backend/internal/platform/ctxutil"
)

func TestAttachTraceContext(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	var seen *ctxutil.TraceData
	r := gin.New()
	r.Use(AttachTraceContext())
	r.GET("/healthcheck", func(c *gin.Context) {
		seen = ctxutil.GetTraceData(c.Request.Context())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/healthcheck", nil)
	req.Header.Set("X-Request-Id", "req-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if seen == nil || seen.RequestID != "req-1" || seen.TraceID == "" {
		t.Fatalf("trace data=%+v", seen)
	}
	if rec.Header().Get("X-Trace-Id") != seen.TraceID || rec.Header().Get("X-Request-Id") != "req-1" {
		t.Fatalf("headers=%v", rec.Header())
	}
}

func TestAttachTraceContextRejectsUnsafeIDs(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(AttachTraceContext())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	cases := []string{"has space", "line\nbreak", strings.Repeat("a", maxIDLen+1), "ünicode"}
	for _, id := range cases {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("X-Request-Id", id)
		req.Header.Set("X-Trace-Id", id)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		gotReq, gotTrace := rec.Header().Get("X-Request-Id"), rec.Header().Get("X-Trace-Id")
		if gotReq == id || gotTrace == id || gotReq == "" || gotTrace == "" {
			t.Fatalf("id %q should be replaced, got request=%q trace=%q", id, gotReq, gotTrace)
		}
	}
}
