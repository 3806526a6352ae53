package ratelimit

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/stockroom/pkg/httputil"
)

// KeyFunc returns the key a request is counted under. An empty key skips
// limiting.
type KeyFunc func(r *http.Request) string

// Middleware rejects requests over budget with 429. Limiter errors fail open.
func Middleware(limiter Limiter, key KeyFunc, logger logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			if k == "" {
				next.ServeHTTP(w, r)
				return
			}

			result, err := limiter.Allow(r.Context(), k)
			if err != nil {
				logger.WithError(err).WithField("key", k).Warn("Rate limiter unavailable")
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			if !result.Allowed {
				retryAfter := int(math.Ceil(result.Reset.Seconds()))
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", time.Now().Add(result.Reset).Unix()))
				httputil.WriteReasonError(w, http.StatusTooManyRequests, fmt.Errorf("rate limit exceeded"), "RateLimited", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
