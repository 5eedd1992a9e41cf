package response

import (
	"github.com/gin-gonic/gin"
)

const (
	CodeInvalidJSON    = "INVALID_JSON"
	CodeMissingUserID  = "MISSING_USER_ID"
	CodeRelayFailure   = "RELAY_FAILURE"
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeRateLimited    = "RATE_LIMITED"
	CodeInternalFailed = "INTERNAL_ERROR"
)

var msg = map[string]string{
	CodeInvalidJSON:    "request body must be valid JSON",
	CodeMissingUserID:  "userId is required",
	CodeRelayFailure:   "failed to deliver notification",
	CodeUnauthorized:   "unauthorized",
	CodeRateLimited:    "rate limit exceeded",
	CodeInternalFailed: "internal server error",
}

// Message returns the default human readable text for code.
func Message(code string) string {
	if m, ok := msg[code]; ok {
		return m
	}
	return code
}

// Error aborts the request with {"error": ..., "code": ...}.
func Error(c *gin.Context, status int, code string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error": Message(code),
		"code":  code,
	})
}
