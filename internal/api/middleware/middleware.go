package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/TheGojiOG/notion-backup/internal/logging"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// healthPath is polled by supervisors; it is neither logged nor limited.
const healthPath = "/health"

// Logger records one structured line per API request. Requests that name a
// run carry its ID.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if c.Request.URL.Path == healthPath && gin.Mode() != gin.DebugMode {
			return
		}

		attrs := []any{
			"method", c.Request.Method,
			"route", c.FullPath(),
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"ip", c.ClientIP(),
		}
		if id := c.Param("id"); id != "" {
			attrs = append(attrs, "run_id", id)
		}
		logging.L().Info("api_request", attrs...)
	}
}

// RateLimit applies a per-client token bucket of requestsPerMinute, with a
// burst of the same size. It is a no-op when disabled or the budget is zero.
func RateLimit(enabled bool, requestsPerMinute int) gin.HandlerFunc {
	limiter := newClientLimiter(enabled, requestsPerMinute)

	return func(c *gin.Context) {
		if !limiter.enabled || c.Request.URL.Path == healthPath {
			c.Next()
			return
		}

		if !limiter.allow(c.ClientIP(), time.Now()) {
			c.Header("Retry-After", strconv.Itoa(limiter.retryAfter()))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded",
			})
			return
		}

		c.Next()
	}
}

// idleClientTTL is how long an unused client bucket is kept.
const idleClientTTL = 3 * time.Minute

type clientLimiter struct {
	enabled           bool
	requestsPerMinute int
	limit             rate.Limit

	mu          sync.Mutex
	clients     map[string]*clientBucket
	lastCleanup time.Time
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newClientLimiter(enabled bool, requestsPerMinute int) *clientLimiter {
	return &clientLimiter{
		enabled:           enabled && requestsPerMinute > 0,
		requestsPerMinute: requestsPerMinute,
		limit:             rate.Limit(float64(requestsPerMinute) / 60),
		clients:           make(map[string]*clientBucket),
		lastCleanup:       time.Now(),
	}
}

func (cl *clientLimiter) allow(key string, now time.Time) bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if now.Sub(cl.lastCleanup) > idleClientTTL {
		for k, bucket := range cl.clients {
			if now.Sub(bucket.lastSeen) > idleClientTTL {
				delete(cl.clients, k)
			}
		}
		cl.lastCleanup = now
	}

	bucket, ok := cl.clients[key]
	if !ok {
		bucket = &clientBucket{limiter: rate.NewLimiter(cl.limit, cl.requestsPerMinute)}
		cl.clients[key] = bucket
	}
	bucket.lastSeen = now
	return bucket.limiter.AllowN(now, 1)
}

// retryAfter is the whole number of seconds until one token refills.
func (cl *clientLimiter) retryAfter() int {
	return (60 + cl.requestsPerMinute - 1) / cl.requestsPerMinute
}
