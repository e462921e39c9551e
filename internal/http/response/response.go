package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorEnvelope is the body of every non-2xx response:
// {"error":{"message":"...","code":"..."}}.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// RespondError writes the envelope and stops the handler chain.
func RespondError(c *gin.Context, status int, code string, err error) {
	env := ErrorEnvelope{Error: APIError{Message: "unknown error", Code: code}}
	if err != nil {
		env.Error.Message = err.Error()
	}
	c.AbortWithStatusJSON(status, env)
}

func RespondOK(c *gin.Context, payload any) { c.JSON(http.StatusOK, payload) }

// RespondAccepted is used for work that continues after the response.
func RespondAccepted(c *gin.Context, payload any) { c.JSON(http.StatusAccepted, payload) }
