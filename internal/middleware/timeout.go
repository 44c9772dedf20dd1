package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"scribex-api/internal/model"
)

const codeRequestTimeout = "REQUEST_TIMEOUT"

// Timeout bounds handler time. The handler's context is cancelled when the
// deadline passes, so in-flight database calls are abandoned too.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	body, _ := json.Marshal(model.APIResponse{
		Success: false,
		Error:   &model.APIError{Code: codeRequestTimeout, Message: "request timed out"},
	})

	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, timeout, string(body))
	}
}
