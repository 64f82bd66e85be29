package httpx

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/transitra/transitra/pkg/slogx"
	"golang.org/x/time/rate"
)

// RateLimitConfig defines request rate limiting parameters for a group of
// endpoints.
type RateLimitConfig struct {
	RequestsPerWindow int
	Window            time.Duration
	Burst             int
}

// Rate limit profiles. The auth core's per-identity login throttle handles
// credential brute force; these are a coarser transport-level backstop.
var (
	// StrictLimit for unauthenticated credential endpoints.
	StrictLimit = RateLimitConfig{RequestsPerWindow: 10, Window: time.Minute, Burst: 10}

	// ModerateLimit for token refresh and authenticated operations.
	ModerateLimit = RateLimitConfig{RequestsPerWindow: 30, Window: time.Minute, Burst: 30}

	// LenientLimit for read-only authenticated endpoints.
	LenientLimit = RateLimitConfig{RequestsPerWindow: 120, Window: time.Minute, Burst: 120}
)

// KeyExtractor derives the grouping key a request is limited under.
type KeyExtractor func(*http.Request) string

// ClientIP extracts the client address, honouring X-Forwarded-For and
// X-Real-IP for proxied deployments.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// IPKeyExtractor limits by client address.
func IPKeyExtractor(r *http.Request) string { return ClientIP(r) }

// limiterMap lazily creates one token bucket per key and periodically drops
// idle buckets so ephemeral keys do not accumulate forever.
type limiterMap struct {
	limiters sync.Map // map[string]*rate.Limiter
	rate     rate.Limit
	burst    int

	mu          sync.Mutex
	lastCleanup time.Time
}

func (lm *limiterMap) get(key string) *rate.Limiter {
	if l, ok := lm.limiters.Load(key); ok {
		return l.(*rate.Limiter)
	}

	l := rate.NewLimiter(lm.rate, lm.burst)
	actual, _ := lm.limiters.LoadOrStore(key, l)
	lm.maybeCleanup()
	return actual.(*rate.Limiter)
}

func (lm *limiterMap) maybeCleanup() {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if time.Since(lm.lastCleanup) < 5*time.Minute {
		return
	}
	lm.lastCleanup = time.Now()

	// A bucket holding its full burst has not been touched recently.
	lm.limiters.Range(func(key, value any) bool {
		if value.(*rate.Limiter).Tokens() >= float64(lm.burst) {
			lm.limiters.Delete(key)
		}
		return true
	})
}

// RateLimitMiddleware limits requests per key derived by keyExtractor.
func RateLimitMiddleware(cfg RateLimitConfig, keyExtractor KeyExtractor) Middleware {
	lm := &limiterMap{
		rate:        rate.Limit(float64(cfg.RequestsPerWindow) / cfg.Window.Seconds()),
		burst:       cfg.Burst,
		lastCleanup: time.Now(),
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := slogx.FromContext(r.Context())

			key := keyExtractor(r)
			if key == "" {
				log.Warn("rate limit: unable to extract key, allowing request")
				next.ServeHTTP(w, r)
				return
			}

			limiter := lm.get(key)
			if !limiter.Allow() {
				reservation := limiter.Reserve()
				delay := reservation.Delay()
				reservation.Cancel()

				retryAfter := max(int(delay.Seconds()), 1)
				w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))

				log.Warn("rate limit exceeded",
					"key", key,
					"endpoint", r.URL.Path,
					"retry_after", retryAfter,
				)
				WriteError(w, http.StatusTooManyRequests,
					"rate_limit_exceeded", "Too many requests. Please try again later.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitByIP limits by client address only.
func RateLimitByIP(cfg RateLimitConfig) Middleware {
	return RateLimitMiddleware(cfg, IPKeyExtractor)
}
