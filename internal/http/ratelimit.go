package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// limiterTTL bounds how long an idle principal's bucket is kept.
const limiterTTL = time.Hour

// principalLimiter keeps one token bucket per principal.
type principalLimiter struct {
	rps   rate.Limit
	burst int

	mu          sync.Mutex
	limiters    map[string]*rate.Limiter
	lastCleanup time.Time
}

func newPrincipalLimiter(rps float64, burst int) *principalLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &principalLimiter{
		rps:         rate.Limit(rps),
		burst:       burst,
		limiters:    make(map[string]*rate.Limiter),
		lastCleanup: time.Now(),
	}
}

func (l *principalLimiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if time.Since(l.lastCleanup) > limiterTTL {
		l.limiters = make(map[string]*rate.Limiter)
		l.lastCleanup = time.Now()
	}

	limiter, ok := l.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(l.rps, l.burst)
		l.limiters[key] = limiter
	}
	return limiter
}

// rateLimitMiddleware runs after authMiddleware. A non-positive rate disables it.
func (s *Server) rateLimitMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if s.limiter == nil {
			return next
		}
		return func(c echo.Context) error {
			key := principalFrom(c).UserID
			if key == "" {
				key = c.RealIP()
			}
			if !s.limiter.get(key).Allow() {
				s.logger.Warn(c.Request().Context(), "rate limit exceeded", zap.String("path", c.Path()))
				return echo.NewHTTPError(http.StatusTooManyRequests, "Too many requests")
			}
			return next(c)
		}
	}
}
