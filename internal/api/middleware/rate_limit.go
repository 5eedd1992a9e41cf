package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"penci-relay/pkg/response"

	"github.com/gin-gonic/gin"
)

// RateLimiter is satisfied by services.RedisService.
type RateLimiter interface {
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type RateLimitMiddleware struct {
	limiter RateLimiter
}

func NewRateLimitMiddleware(limiter RateLimiter) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiter: limiter,
	}
}

// RateLimitIP limits requests per client IP and path.
func (rm *RateLimitMiddleware) RateLimitIP(requests int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := fmt.Sprintf("relay:rate_limit:ip:%s:%s", c.ClientIP(), c.FullPath())

		allowed, err := rm.limiter.CheckRateLimit(c.Request.Context(), key, requests, window)
		if err != nil {
			slog.Error("Rate limit check failed", "key", key, "error", err)
			response.Error(c, http.StatusInternalServerError, response.CodeInternalFailed)
			return
		}

		if !allowed {
			c.Header("Retry-After", fmt.Sprintf("%.0f", window.Seconds()))
			response.Error(c, http.StatusTooManyRequests, response.CodeRateLimited)
			return
		}

		c.Next()
	}
}
