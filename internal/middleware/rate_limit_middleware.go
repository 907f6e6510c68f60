package middleware

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smarttransit/seat-booking-core/internal/services"
)

// ReservationRateLimit throttles reservation attempts per session and client
// IP. Must run after RequireSession. A nil limiter disables the check.
func ReservationRateLimit(limiter *services.RateLimitService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}

		err := limiter.CheckReservationRateLimit(c.Request.Context(), GetSessionID(c), c.ClientIP())
		var rateLimitErr *services.RateLimitError
		if errors.As(err, &rateLimitErr) {
			retry := int(math.Ceil(time.Until(rateLimitErr.RetryAfter).Seconds()))
			if retry < 1 {
				retry = 1
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate_limited",
				"message":     rateLimitErr.Message,
				"code":        "RATE_LIMITED",
				"retry_after": rateLimitErr.RetryAfter,
			})
			return
		}

		c.Next()
	}
}
