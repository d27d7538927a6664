package middleware

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/shopcore/shopcore-backend/internal/http/response"
)

type RateLimitPolicy struct {
	SustainedLimit    int
	SustainedWindow   time.Duration
	BurstCapacity     int
	BurstRefillPerSec float64
}

type rateDecision struct {
	allowed    bool
	retryAfter time.Duration
	remaining  int
	resetAt    time.Time
}

// RateLimiter combines a token bucket (burst) with a sustained sliding
// window, keyed by client IP.
type RateLimiter struct {
	mu      sync.Mutex
	policy  RateLimitPolicy
	store   map[string]*rateState
	cleanup time.Time
	keyFunc func(r *http.Request) string
}

type rateState struct {
	tokens     float64
	lastRefill time.Time
	hits       []time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		policy: RateLimitPolicy{
			SustainedLimit:    limit,
			SustainedWindow:   window,
			BurstCapacity:     limit,
			BurstRefillPerSec: float64(limit) / window.Seconds(),
		},
		store:   make(map[string]*rateState),
		cleanup: time.Now().Add(time.Minute),
		keyFunc: clientIPKey,
	}
}

func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision := rl.allow(rl.keyFunc(r), time.Now())
			writeRateLimitHeaders(w.Header(), rl.policy.SustainedLimit, decision.remaining, decision.resetAt)
			if !decision.allowed {
				w.Header().Set("Retry-After", retryAfterHeader(decision.retryAfter))
				response.Error(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RateLimiter) allow(key string, now time.Time) rateDecision {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.After(rl.cleanup) {
		for k, v := range rl.store {
			if len(v.hits) == 0 && now.Sub(v.lastRefill) > 2*rl.policy.SustainedWindow {
				delete(rl.store, k)
			}
		}
		rl.cleanup = now.Add(rl.policy.SustainedWindow)
	}

	state, ok := rl.store[key]
	if !ok {
		state = &rateState{tokens: float64(rl.policy.BurstCapacity), lastRefill: now}
		rl.store[key] = state
	}
	if now.After(state.lastRefill) {
		elapsed := now.Sub(state.lastRefill).Seconds()
		state.tokens = math.Min(float64(rl.policy.BurstCapacity), state.tokens+elapsed*rl.policy.BurstRefillPerSec)
		state.lastRefill = now
	}

	cutoff := now.Add(-rl.policy.SustainedWindow)
	pruned := state.hits[:0]
	for _, hit := range state.hits {
		if hit.After(cutoff) {
			pruned = append(pruned, hit)
		}
	}
	state.hits = pruned

	var retryAfter time.Duration
	if state.tokens < 1 {
		need := 1 - state.tokens
		retryAfter = time.Duration(math.Ceil(need / rl.policy.BurstRefillPerSec * float64(time.Second)))
	}
	if len(state.hits) >= rl.policy.SustainedLimit {
		windowRetry := state.hits[0].Add(rl.policy.SustainedWindow).Sub(now)
		if windowRetry > retryAfter {
			retryAfter = windowRetry
		}
	}

	allowed := retryAfter <= 0
	if allowed {
		state.tokens = math.Max(state.tokens-1, 0)
		state.hits = append(state.hits, now)
	} else if retryAfter < time.Second {
		retryAfter = time.Second
	}

	remaining := rl.policy.SustainedLimit - len(state.hits)
	if remaining < 0 {
		remaining = 0
	}
	resetAt := now.Add(rl.policy.SustainedWindow)
	if len(state.hits) > 0 {
		resetAt = state.hits[0].Add(rl.policy.SustainedWindow)
	}
	if !allowed {
		resetAt = now.Add(retryAfter)
	}
	return rateDecision{allowed: allowed, retryAfter: retryAfter, remaining: remaining, resetAt: resetAt}
}

func clientIPKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func retryAfterHeader(d time.Duration) string {
	seconds := int(d.Round(time.Second).Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	return fmt.Sprintf("%d", seconds)
}

func writeRateLimitHeaders(h http.Header, limit, remaining int, resetAt time.Time) {
	h.Set("X-RateLimit-Limit", fmt.Sprintf("%d", limit))
	h.Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
	h.Set("X-RateLimit-Reset", fmt.Sprintf("%d", resetAt.Unix()))
}
