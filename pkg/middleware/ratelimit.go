package middleware

import (
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ekaya-inc/ekaya-visibility/pkg/config"
)

// RateLimitedPrefix is the path prefix the limiter applies to. Health checks
// and static routes are never limited.
const RateLimitedPrefix = "/api/"

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter applies a token bucket per client IP. A client may burst up to
// Requests calls and then refills at Requests per Window.
type RateLimiter struct {
	limit  rate.Limit
	burst  int
	window time.Duration
	logger *zap.Logger
	now    func() time.Time

	mu        sync.Mutex
	clients   map[string]*clientLimiter
	lastSweep time.Time
}

// NewRateLimiter returns nil when rate limiting is disabled.
func NewRateLimiter(cfg config.RateLimitConfig, logger *zap.Logger) *RateLimiter {
	if !cfg.Enabled || cfg.Requests < 1 || cfg.Window <= 0 {
		return nil
	}
	return &RateLimiter{
		limit:   rate.Limit(float64(cfg.Requests) / cfg.Window.Seconds()),
		burst:   cfg.Requests,
		window:  cfg.Window,
		logger:  logger.Named("ratelimit"),
		now:     time.Now,
		clients: make(map[string]*clientLimiter),
	}
}

// Middleware wraps next. A nil limiter passes requests straight through.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	if l == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, RateLimitedPrefix) {
			next.ServeHTTP(w, r)
			return
		}

		ip := clientIP(r)
		now := l.now()
		reservation := l.limiterFor(ip, now).ReserveN(now, 1)
		if delay := reservation.DelayFrom(now); delay > 0 {
			reservation.CancelAt(now)
			l.logger.Debug("Rate limit exceeded",
				zap.String("client_ip", ip),
				zap.String("path", r.URL.Path),
				zap.Duration("retry_after", delay))

			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error":   "rate_limited",
				"message": "Too many requests, please try again later",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Clients reports how many client buckets are tracked.
func (l *RateLimiter) Clients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

func (l *RateLimiter) limiterFor(ip string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Buckets idle for a full window are back at burst, so dropping them
	// loses nothing. Sweeping inline keeps the limiter goroutine-free.
	if now.Sub(l.lastSweep) >= l.window {
		for key, c := range l.clients {
			if now.Sub(c.lastSeen) >= l.window {
				delete(l.clients, key)
			}
		}
		l.lastSweep = now
	}

	c, ok := l.clients[ip]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[ip] = c
	}
	c.lastSeen = now
	return c.limiter
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
