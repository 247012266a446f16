package limiter

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/coderoomhq/coderoom/internal/metrics"
)

// RateLimiter guards the websocket upgrade endpoint with a global rate and a
// per-IP rate. Concurrent execution pressure is bounded separately by the
// worker pool, so no concurrency gate lives here.
type RateLimiter struct {
	globalLimiter *rate.Limiter
	perIPLimiters sync.Map
	ipRate        rate.Limit
	ipBurst       int
}

func NewRateLimiter(globalRPS, perIPRPS float64, perIPBurst int) *RateLimiter {
	return &RateLimiter{
		globalLimiter: rate.NewLimiter(rate.Limit(globalRPS), int(globalRPS)*2),
		ipRate:        rate.Limit(perIPRPS),
		ipBurst:       perIPBurst,
	}
}

func (rl *RateLimiter) getIPLimiter(ip string) *rate.Limiter {
	if limiter, ok := rl.perIPLimiters.Load(ip); ok {
		return limiter.(*rate.Limiter)
	}
	limiter := rate.NewLimiter(rl.ipRate, rl.ipBurst)
	rl.perIPLimiters.Store(ip, limiter)
	return limiter
}

func (rl *RateLimiter) Allow(ip string) bool {
	if !rl.globalLimiter.Allow() {
		metrics.RateLimitHits.Inc()
		return false
	}
	if !rl.getIPLimiter(ip).Allow() {
		metrics.RateLimitHits.Inc()
		return false
	}
	return true
}

func (rl *RateLimiter) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			ip = forwarded
		}

		if !rl.Allow(ip) {
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}

		next(w, r)
	}
}

// StartCleanup periodically drops idle per-IP limiters so the map doesn't
// grow without bound.
func (rl *RateLimiter) StartCleanup(interval time.Duration) {
	go func() {
		for {
			time.Sleep(interval)
			rl.perIPLimiters.Range(func(key, value any) bool {
				rl.perIPLimiters.Delete(key)
				return true
			})
		}
	}()
}
