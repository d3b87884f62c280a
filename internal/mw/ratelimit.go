package mw

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// EdgeLimiter is a coarse per-IP+route token bucket in front of every route.
// It protects the process; per-user score limits live in internal/ratelimit.
type EdgeLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	r       rate.Limit
	b       int
	ttl     time.Duration
	stop    chan struct{}
	once    sync.Once
}

func NewEdgeLimiter(perSec float64, burst int, ttl time.Duration) *EdgeLimiter {
	return &EdgeLimiter{
		buckets: make(map[string]*bucket),
		r:       rate.Limit(perSec),
		b:       burst,
		ttl:     ttl,
		stop:    make(chan struct{}),
	}
}

func (el *EdgeLimiter) get(key string, now time.Time) *rate.Limiter {
	el.mu.Lock()
	defer el.mu.Unlock()
	if bk, ok := el.buckets[key]; ok {
		bk.seen = now
		return bk.lim
	}
	lim := rate.NewLimiter(el.r, el.b)
	el.buckets[key] = &bucket{lim: lim, seen: now}
	return lim
}

func (el *EdgeLimiter) sweep(now time.Time) {
	el.mu.Lock()
	defer el.mu.Unlock()
	for k, v := range el.buckets {
		if now.Sub(v.seen) > el.ttl {
			delete(el.buckets, k)
		}
	}
}

// Start runs the idle-bucket sweeper until Stop.
func (el *EdgeLimiter) Start() {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-el.stop:
				return
			case now := <-ticker.C:
				el.sweep(now)
			}
		}
	}()
}

func (el *EdgeLimiter) Stop() {
	el.once.Do(func() { close(el.stop) })
}

func (el *EdgeLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		lim := el.get(c.ClientIP()+"|"+path, time.Now())
		if !lim.Allow() {
			wait := time.Second
			if el.r > 0 {
				wait = time.Duration(float64(time.Second) / float64(el.r))
			}
			c.Header("Retry-After", strconv.Itoa(int(wait.Seconds())+1))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
