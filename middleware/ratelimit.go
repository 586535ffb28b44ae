package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	limiterSweepEvery = 5 * time.Minute
	limiterIdleAfter  = 10 * time.Minute
)

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type limiterSet struct {
	mu        sync.Mutex
	byIP      map[string]*ipLimiter
	r         rate.Limit
	b         int
	lastSweep time.Time
}

func (s *limiterSet) get(ip string, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.Sub(s.lastSweep) > limiterSweepEvery {
		cutoff := now.Add(-limiterIdleAfter)
		for k, v := range s.byIP {
			if v.lastSeen.Before(cutoff) {
				delete(s.byIP, k)
			}
		}
		s.lastSweep = now
	}
	il, ok := s.byIP[ip]
	if !ok {
		il = &ipLimiter{limiter: rate.NewLimiter(s.r, s.b)}
		s.byIP[ip] = il
	}
	il.lastSeen = now
	return il.limiter
}

// RateLimit provides per-IP token-bucket rate limiting.
// r = requests per second, b = burst size. Idle entries are swept inline,
// so no background goroutine outlives the router.
func RateLimit(r rate.Limit, b int) gin.HandlerFunc {
	set := &limiterSet{byIP: make(map[string]*ipLimiter), r: r, b: b, lastSweep: time.Now()}
	return func(c *gin.Context) {
		if !set.get(c.ClientIP(), time.Now()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
