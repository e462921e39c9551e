package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/studykit-backend/internal/generation/generr"
	"github.com/yungbote/studykit-backend/internal/platform/apierr"
)

// Classify picks the status and code for err. An unknown provider is the
// caller's mistake (400); a missing credential is ours (500). Bad model
// output and failing upstreams are 502.
func Classify(err error) (int, string) {
	if ae, ok := apierr.As(err); ok && ae.Status != 0 {
		code := ae.Code
		if code == "" {
			code = http.StatusText(ae.Status)
		}
		return ae.Status, code
	}

	var ce *generr.ConfigurationError
	if errors.As(err, &ce) {
		if ce.Setting == "provider" {
			return http.StatusBadRequest, string(generr.KindConfiguration)
		}
		return http.StatusInternalServerError, string(generr.KindConfiguration)
	}
	if kind, ok := generr.KindOf(err); ok {
		return http.StatusBadGateway, string(kind)
	}
	return http.StatusInternalServerError, "internal_error"
}

// RespondErr writes err in the error envelope with the status Classify picks.
func RespondErr(c *gin.Context, err error) {
	status, code := Classify(err)
	_ = c.Error(err)
	RespondError(c, status, code, err)
}
