package middleware

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"gameshop/pkg/log"
	"gameshop/pkg/utils"
)

// RateLimitConfig rate limiting middleware configuration
type RateLimitConfig struct {
	// Rate requests per second
	Rate float64
	// Burst maximum burst size
	Burst int
	// KeyFunc picks the bucket for a request
	KeyFunc func(c *gin.Context) string
	// IdleTTL evicts buckets not used for this long
	IdleTTL time.Duration
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type limiterSet struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	cfg     RateLimitConfig
	sweep   time.Time
}

func (s *limiterSet) get(key string, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if now.Sub(s.sweep) > s.cfg.IdleTTL {
		for k, b := range s.buckets {
			if now.Sub(b.lastSeen) > s.cfg.IdleTTL {
				delete(s.buckets, k)
			}
		}
		s.sweep = now
	}

	b, ok := s.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(s.cfg.Rate), s.cfg.Burst)}
		s.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter
}

// RateLimitWithConfig rate limiting middleware with configuration
func RateLimitWithConfig(cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = func(c *gin.Context) string { return c.ClientIP() }
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	set := &limiterSet{buckets: make(map[string]*bucket), cfg: cfg, sweep: time.Now()}

	return func(c *gin.Context) {
		key := cfg.KeyFunc(c)
		if !set.get(key, time.Now()).Allow() {
			log.WithContext(c.Request.Context()).WithFields(map[string]interface{}{
				"key":    key,
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
			}).Warn("Rate limit exceeded")

			c.Header("X-RateLimit-Limit", strconv.FormatFloat(cfg.Rate, 'f', 0, 64))
			c.Header("Retry-After", "1")
			utils.Error(c, utils.CodeRateLimit, utils.ErrRateLimit.Message)
			c.Abort()
			return
		}
		c.Next()
	}
}

// IPRateLimit IP-based rate limiting middleware
func IPRateLimit(rps float64, burst int) gin.HandlerFunc {
	return RateLimitWithConfig(RateLimitConfig{
		Rate:  rps,
		Burst: burst,
		KeyFunc: func(c *gin.Context) string {
			return "ip:" + c.ClientIP()
		},
	})
}

// UserRateLimit keys on the authenticated user and must run after Auth
func UserRateLimit(rps float64, burst int) gin.HandlerFunc {
	return RateLimitWithConfig(RateLimitConfig{
		Rate:  rps,
		Burst: burst,
		KeyFunc: func(c *gin.Context) string {
			if id, ok := GetUserID(c); ok {
				return fmt.Sprintf("user:%d", id)
			}
			return "ip:" + c.ClientIP()
		},
	})
}

// WindowLimiter is a limiter shared across instances
type WindowLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Limit() int
}

// SharedUserLimit caps calls per authenticated user across every instance.
// It must run after Auth. When the limiter's backend fails the request is
// let through and the in-process limits still apply.
func SharedUserLimit(l WindowLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := GetUserID(c)
		if !ok {
			c.Next()
			return
		}

		key := fmt.Sprintf("user:%d", userID)
		allowed, err := l.Allow(c.Request.Context(), key)
		if err != nil {
			log.WithContext(c.Request.Context()).WithError(err).Warn("Shared rate limiter unavailable")
			c.Next()
			return
		}
		if !allowed {
			log.WithContext(c.Request.Context()).WithFields(map[string]interface{}{
				"key":  key,
				"path": c.Request.URL.Path,
			}).Warn("Shared rate limit exceeded")

			c.Header("X-RateLimit-Limit", strconv.Itoa(l.Limit()))
			utils.Error(c, utils.CodeRateLimit, utils.ErrRateLimit.Message)
			c.Abort()
			return
		}
		c.Next()
	}
}
