// internal/middleware/rate_limit.go
package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/agrilink/marketplace-backend/internal/utils"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type RateLimiter struct {
	visitors map[string]*visitor
	mtx      sync.Mutex
	rate     rate.Limit
	burst    int
}

func NewRateLimiter(r rate.Limit, b int) *RateLimiter {
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		rate:     r,
		burst:    b,
	}

	// Clean up old visitors every minute
	go rl.cleanupVisitors()

	return rl
}

func (rl *RateLimiter) cleanupVisitors() {
	for {
		time.Sleep(time.Minute)
		rl.mtx.Lock()
		for ip, v := range rl.visitors {
			if time.Since(v.lastSeen) > 3*time.Minute {
				delete(rl.visitors, ip)
			}
		}
		rl.mtx.Unlock()
	}
}

func (rl *RateLimiter) getVisitor(ip string) *rate.Limiter {
	rl.mtx.Lock()
	defer rl.mtx.Unlock()

	v, exists := rl.visitors[ip]
	if !exists {
		limiter := rate.NewLimiter(rl.rate, rl.burst)
		rl.visitors[ip] = &visitor{limiter, time.Now()}
		return limiter
	}

	v.lastSeen = time.Now()
	return v.limiter
}

func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		limiter := rl.getVisitor(ip)

		if !limiter.Allow() {
			utils.ErrorResponse(c, http.StatusTooManyRequests, "RATE_LIMITED",
				"Rate limit exceeded. Please try again later.", nil)
			c.Abort()
			return
		}

		c.Next()
	}
}

// RateLimits groups the limiters for each class of route. When disabled every
// request passes through and no cleanup goroutines are started.
type RateLimits struct {
	enabled bool
	general *RateLimiter
	auth    *RateLimiter
	upload  *RateLimiter
}

func NewRateLimits(enabled bool) *RateLimits {
	if !enabled {
		return &RateLimits{}
	}
	return &RateLimits{
		enabled: true,
		general: NewRateLimiter(rate.Every(100*time.Millisecond), 20), // ~10 requests per second
		auth:    NewRateLimiter(rate.Every(12*time.Second), 5),        // 5 auth requests per minute
		upload:  NewRateLimiter(rate.Every(6*time.Second), 10),        // 10 uploads per minute
	}
}

func passThrough(c *gin.Context) { c.Next() }

func (r *RateLimits) General() gin.HandlerFunc {
	if !r.enabled {
		return passThrough
	}
	return r.general.Middleware()
}

func (r *RateLimits) Auth() gin.HandlerFunc {
	if !r.enabled {
		return passThrough
	}
	return r.auth.Middleware()
}

func (r *RateLimits) Upload() gin.HandlerFunc {
	if !r.enabled {
		return passThrough
	}
	return r.upload.Middleware()
}
