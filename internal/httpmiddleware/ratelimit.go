package httpmiddleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Limiter is anything that can gate requests per client IP.
type Limiter interface {
	GinMiddleware() gin.HandlerFunc
}

// SimpleTokenBucket is an in-memory per-IP rate limiter for single-node runs.
type SimpleTokenBucket struct {
	capacity int
	rate     int
	mu       sync.Mutex
	state    map[string]*bucket
}

type bucket struct {
	tokens int
	last   time.Time
}

// NewSimpleTokenBucket creates limiter with capacity tokens and rate per minute.
func NewSimpleTokenBucket(capacity, perMinute int) *SimpleTokenBucket {
	if capacity <= 0 {
		capacity = perMinute
	}
	return &SimpleTokenBucket{
		capacity: capacity,
		rate:     perMinute,
		state:    make(map[string]*bucket),
	}
}

// GinMiddleware returns gin handler enforcing per-IP limits.
func (l *SimpleTokenBucket) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip == "" {
			ip = "unknown"
		}
		if !l.allow(ip) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit"})
			return
		}
		c.Next()
	}
}

func (l *SimpleTokenBucket) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.state[key]
	now := time.Now()
	if !ok {
		b = &bucket{tokens: l.capacity - 1, last: now}
		l.state[key] = b
		return true
	}
	elapsed := now.Sub(b.last).Minutes()
	refill := int(elapsed * float64(l.rate))
	if refill > 0 {
		b.tokens += refill
		if b.tokens > l.capacity {
			b.tokens = l.capacity
		}
		b.last = now
	}
	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}

// RedisFixedWindow counts requests per IP in one-minute windows shared
// across instances. On Redis errors it fails open rather than blocking
// check-ins behind an unavailable limiter.
type RedisFixedWindow struct {
	client    *redis.Client
	perMinute int
	prefix    string
}

// NewRedisFixedWindow creates a Redis-backed limiter.
func NewRedisFixedWindow(client *redis.Client, perMinute int) *RedisFixedWindow {
	return &RedisFixedWindow{client: client, perMinute: perMinute, prefix: "makerspace:rl:"}
}

// GinMiddleware returns gin handler enforcing per-IP limits.
func (l *RedisFixedWindow) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip == "" {
			ip = "unknown"
		}
		ctx := c.Request.Context()
		key := l.prefix + ip + ":" + time.Now().UTC().Format("200601021504")

		count, err := l.client.Incr(ctx, key).Result()
		if err != nil {
			c.Next()
			return
		}
		if count == 1 {
			l.client.Expire(ctx, key, 2*time.Minute)
		}
		if count > int64(l.perMinute) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit"})
			return
		}
		c.Next()
	}
}
