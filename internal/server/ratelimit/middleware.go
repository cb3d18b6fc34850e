package ratelimit

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrijs2005/dealerdesk/internal/logging"
)

// Middleware limits requests per client IP as resolved by ips. A nil limiter
// disables limiting. Redis failures let the request through. onLimited, if
// set, is called for every rejected request.
func Middleware(l *Limiter, ips *IPResolver, logger logging.Logger, onLimited func(r *http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if l == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			res, err := l.Allow(ctx, "ip:"+ips.ClientIP(r))
			if err != nil {
				logger.Error(ctx, "rate limiter unavailable, allowing request", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			setHeaders(w, res)
			if !res.Allowed {
				if onLimited != nil {
					onLimited(r)
				}
				retryAfter := int(math.Ceil(res.ResetIn.Seconds()))
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.WriteHeader(http.StatusTooManyRequests)
				fmt.Fprintf(w, `{"error":"too many requests, please try again later","retry_after":%d}`+"\n", retryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func setHeaders(w http.ResponseWriter, res Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(res.ResetIn).Unix(), 10))
}
