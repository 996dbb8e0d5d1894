package httpmiddleware

import (
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig configures the token bucket rate limiter.
type RateLimitConfig struct {
	// Max is the bucket capacity and the sustained requests-per-Window rate.
	Max int
	// Window is the period over which Max tokens are refilled.
	Window time.Duration
	// KeyFunc extracts the rate limit key from a request. If nil, the client
	// IP address is used.
	KeyFunc func(*http.Request) string
}

// bucket is a lazily refilled token bucket. Tokens accrue continuously at
// Max/Window; there is no ticker.
type bucket struct {
	tokens   float64
	lastFill time.Time
}

type rateLimiter struct {
	cfg     RateLimitConfig
	rate    float64 // tokens per second
	mu      sync.Mutex
	buckets map[string]*bucket
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = clientIP
	}
	return &rateLimiter{
		cfg:     cfg,
		rate:    float64(cfg.Max) / cfg.Window.Seconds(),
		buckets: make(map[string]*bucket),
	}
}

// allow takes one token for key if available. It returns the remaining whole
// tokens, when the bucket will next hold a full token, and whether the
// request may proceed.
func (rl *rateLimiter) allow(key string, now time.Time) (remaining int, retryAt time.Time, allowed bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(rl.cfg.Max), lastFill: now}
		rl.buckets[key] = b
	}

	b.tokens += now.Sub(b.lastFill).Seconds() * rl.rate
	if b.tokens > float64(rl.cfg.Max) {
		b.tokens = float64(rl.cfg.Max)
	}
	b.lastFill = now

	if b.tokens < 1 {
		wait := (1 - b.tokens) / rl.rate
		return 0, now.Add(time.Duration(wait * float64(time.Second))), false
	}

	b.tokens--
	return int(b.tokens), now, true
}

// evictStale drops buckets that have been full (idle) for over a window.
func (rl *rateLimiter) evictStale(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, b := range rl.buckets {
		if now.Sub(b.lastFill) >= 2*rl.cfg.Window {
			delete(rl.buckets, key)
		}
	}
}

// RateLimit enforces a per-key token bucket rate limit. Exceeding it yields
// 429 Too Many Requests with a JSON body; every response carries
// X-RateLimit-Limit, X-RateLimit-Remaining, and, when limited, Retry-After.
func RateLimit(cfg RateLimitConfig) Middleware {
	rl := newRateLimiter(cfg)
	var lastEvict time.Time

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := time.Now()
			if now.Sub(lastEvict) > 2*rl.cfg.Window {
				lastEvict = now
				rl.evictStale(now)
			}

			remaining, retryAt, allowed := rl.allow(rl.cfg.KeyFunc(r), now)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.cfg.Max))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

			if !allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(time.Until(retryAt).Seconds()))))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"code":    http.StatusTooManyRequests,
					"message": "rate limit exceeded",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP extracts the client IP, checking X-Forwarded-For first, then
// X-Real-IP, then RemoteAddr.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i > 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
