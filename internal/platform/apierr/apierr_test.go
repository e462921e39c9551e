package apierr

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorMessage(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  *Error
		want string
	}{
		{BadRequest("invalid_request", "query is required"), "query is required"},
		{New(409, "conflict", nil), "conflict"},
		{New(404, "", nil), "Not Found"},
		{&Error{}, "api error"},
		{nil, ""},
	}
	for _, tc := range cases {
		if got := tc.err.Error(); got != tc.want {
			t.Fatalf("Error()=%q want %q", got, tc.want)
		}
	}
}

func TestAsFindsWrapped(t *testing.T) {
	t.Parallel()

	base := errors.New("missing")
	wrapped := fmt.Errorf("lookup: %w", NotFound("job_not_found", base))
	ae, ok := As(wrapped)
	if !ok || ae.Status != 404 || ae.Code != "job_not_found" {
		t.Fatalf("As=%+v ok=%v", ae, ok)
	}
	if !errors.Is(wrapped, base) {
		t.Fatalf("cause lost")
	}
	if _, ok := As(base); ok {
		t.Fatalf("plain error should not match")
	}
}
