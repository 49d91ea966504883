package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rosariomoscato/Design-Buddy/internal/ratelimit"
)

type RateLimiter interface {
	Allow(ctx context.Context, subject string) (ratelimit.Decision, error)
}

// withRateLimit throttles design submissions per user. Reads and health
// probes pass through untouched; only POST /v1/designs spends provider
// budget and therefore draws from the bucket. A limiter outage fails
// open so Redis trouble never blocks paying users.
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	if s.rateLimiter == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.HasPrefix(r.URL.Path, "/v1/designs") {
			next.ServeHTTP(w, r)
			return
		}

		decision, err := s.rateLimiter.Allow(r.Context(), s.limitSubject(r))
		if err != nil {
			s.logger.Printf("rate limiter check failed err=%v", err)
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
		if !decision.Allowed {
			s.rejectRateLimited(w, r, decision)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) limitSubject(r *http.Request) string {
	subject := strings.TrimSpace(r.Header.Get(s.userIDHeader))
	if subject == "" {
		subject = "anonymous"
	}
	return subject + ":" + routeLabel(r.URL.Path)
}

func (s *Server) rejectRateLimited(w http.ResponseWriter, r *http.Request, decision ratelimit.Decision) {
	retryAfter := int(decision.RetryAfter.Round(time.Second).Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	s.metrics.rateLimitRejected.WithLabelValues(routeLabel(r.URL.Path)).Inc()
	writeJSON(w, http.StatusTooManyRequests, map[string]string{
		"error": "rate limit exceeded",
	})
}
