package middleware

import (
	"net/http"
	"strings"

	"penci-relay/internal/auth"
	"penci-relay/pkg/response"

	"github.com/gin-gonic/gin"
)

type AuthMiddleware struct {
	verifier *auth.Verifier
}

func NewAuthMiddleware(verifier *auth.Verifier) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
	}
}

// RequireAuth checks the bearer token and stores the caller's identity in
// the context under "user_id" and "role".
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || token == "" {
			response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized)
			return
		}

		id, err := am.verifier.Verify(token)
		if err != nil {
			response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized)
			return
		}

		c.Set("user_id", id.UserID)
		c.Set("role", id.Role)
		c.Next()
	}
}
