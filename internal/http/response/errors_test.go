package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/studykit-backend/internal/generation/generr"
	"github.com/yungbote/studykit-backend/internal/platform/apierr"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"unknown provider", &generr.ConfigurationError{Setting: "provider", Reason: "unknown"}, 400, "configuration_error"},
		{"missing key", &generr.ConfigurationError{Setting: "GROQ_API_KEY", Reason: "missing"}, 500, "configuration_error"},
		{"parse", fmt.Errorf("topic %q: %w", "x", &generr.ParseError{Raw: "prose"}), 502, "parse_error"},
		{"validation", &generr.ValidationError{Schema: "mcq", Constraint: "correctOption"}, 502, "validation_error"},
		{"upstream", &generr.UpstreamTransportError{Service: "openai", StatusCode: 503}, 502, "upstream_transport_error"},
		{"api error", apierr.New(400, "invalid_difficulty", errors.New("bad")), 400, "invalid_difficulty"},
		{"api error without code", apierr.New(404, "", errors.New("gone")), 404, "Not Found"},
		{"plain", errors.New("boom"), 500, "internal_error"},
	}
	for _, tc := range cases {
		status, code := Classify(tc.err)
		if status != tc.status || code != tc.code {
			t.Fatalf("%s: got %d %q want %d %q", tc.name, status, code, tc.status, tc.code)
		}
	}
}

func TestRespondErrEnvelope(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	RespondErr(c, &generr.ValidationError{Schema: "flashcard", Constraint: "answer must be non-empty", Raw: `{"flashcards":[]}`})

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status=%d", rec.Code)
	}
	var env ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Error.Code != "validation_error" || env.Error.Message == "" {
		t.Fatalf("envelope=%+v", env)
	}
}
