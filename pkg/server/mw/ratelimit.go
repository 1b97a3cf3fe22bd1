package mw

import (
	"net/http"
	"strconv"
	"time"

	"github.com/echodoc-ai/echodoc/pkg/core"
	"github.com/echodoc-ai/echodoc/pkg/server/config"
	"github.com/echodoc-ai/echodoc/pkg/server/principal"
	"github.com/echodoc-ai/echodoc/pkg/server/ratelimit"
)

var rateLimitMessages = map[ratelimit.Exhausted]string{
	ratelimit.ExhaustedRequests: "rate limit exceeded",
	ratelimit.ExhaustedReports:  "report generation limit exceeded; try again later",
	ratelimit.ExhaustedInFlight: "too many concurrent requests",
}

// RateLimit charges each request to its owner's budgets. POST
// /api/medical-report also draws from the report budget.
func RateLimit(cfg config.Config, limiter *ratelimit.Limiter, next http.Handler) http.Handler {
	if !limiter.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		act := ratelimit.Classify(r.Method, r.URL.Path)
		if act == ratelimit.ActionExempt {
			next.ServeHTTP(w, r)
			return
		}

		who := principal.Resolve(r, cfg)
		v := limiter.Admit(who.Key, act, time.Now())
		if !v.Allowed {
			reqID, _ := RequestIDFrom(r.Context())
			retryAfter := v.RetryAfter
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			writeJSONError(w, http.StatusTooManyRequests, &core.Error{
				Type:       core.ErrRateLimit,
				Message:    rateLimitMessages[v.Exhausted],
				Code:       string(v.Exhausted),
				RequestID:  reqID,
				RetryAfter: &retryAfter,
			})
			return
		}
		defer v.Done()

		next.ServeHTTP(w, r)
	})
}
