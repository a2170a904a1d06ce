package middleware

import (
	"math"
	"strconv"
	"sync"
	"time"

	"collegefeedback/internal/config"
	"collegefeedback/internal/observability"
	contextutils "collegefeedback/internal/utils"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// idleVisitorTTL is how long an unused per-IP limiter is kept
const idleVisitorTTL = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client IP
type RateLimiter struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu       sync.Mutex
	visitors map[string]*visitor
}

// NewRateLimiter creates a limiter allowing requestsPerMinute with the given burst
func NewRateLimiter(requestsPerMinute, burst int) *RateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = config.DefaultRequestsPerMinute
	}
	if burst <= 0 {
		burst = config.DefaultRateLimitBurst
	}
	return &RateLimiter{
		limit:    rate.Every(time.Minute / time.Duration(requestsPerMinute)),
		burst:    burst,
		now:      time.Now,
		visitors: make(map[string]*visitor),
	}
}

func (rl *RateLimiter) get(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter
}

// Cleanup forgets idle clients
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for ip, v := range rl.visitors {
		if now.Sub(v.lastSeen) > idleVisitorTTL {
			delete(rl.visitors, ip)
		}
	}
}

// Allow consumes one token for ip
func (rl *RateLimiter) Allow(ip string) (bool, time.Duration) {
	r := rl.get(ip).ReserveN(rl.now(), 1)
	if !r.OK() {
		return false, time.Minute
	}
	delay := r.DelayFrom(rl.now())
	if delay > 0 {
		r.CancelAt(rl.now())
		return false, delay
	}
	return true, 0
}

// Middleware rejects requests over the limit with 429 and a Retry-After header
func (rl *RateLimiter) Middleware(logger *observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		ok, retryAfter := rl.Allow(ip)
		if !ok {
			logger.Warn(c.Request.Context(), "Rate limit exceeded", map[string]interface{}{
				"http.client_ip": ip,
				"http.method":    c.Request.Method,
				"http.path":      c.FullPath(),
			})
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
			HandleAppError(c, contextutils.ErrRateLimit)
			c.Abort()
			return
		}
		c.Next()
	}
}
