package mw

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Policy is a token bucket refilled at Rate per second holding up to Burst.
type Policy struct {
	Rate  float64
	Burst int
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// Limiters 按 key 分配令牌桶：HTTP 按 IP+路由，WebSocket 按连接 ID。
// 长时间未使用的 key 由 Sweep 回收。
type Limiters struct {
	policy Policy
	idle   time.Duration
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
	stop    chan struct{}
	once    sync.Once
}

func NewLimiters(p Policy, idle time.Duration) *Limiters {
	return &Limiters{
		policy:  p,
		idle:    idle,
		now:     time.Now,
		buckets: make(map[string]*bucket),
		stop:    make(chan struct{}),
	}
}

// Get returns key's bucket, creating it on first use.
func (l *Limiters) Get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rate.Limit(l.policy.Rate), l.policy.Burst)}
		l.buckets[key] = b
	}
	b.seen = l.now()
	return b.lim
}

func (l *Limiters) Allow(key string) bool { return l.Get(key).Allow() }

// Forget drops key's bucket, e.g. when its connection closes.
func (l *Limiters) Forget(key string) {
	l.mu.Lock()
	delete(l.buckets, key)
	l.mu.Unlock()
}

func (l *Limiters) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Sweep removes buckets idle for longer than the idle window and returns how
// many it removed.
func (l *Limiters) Sweep() int {
	cutoff := l.now().Add(-l.idle)
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for k, b := range l.buckets {
		if b.seen.Before(cutoff) {
			delete(l.buckets, k)
			n++
		}
	}
	return n
}

// Start sweeps every interval until Stop.
func (l *Limiters) Start(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-l.stop:
				return
			case <-ticker.C:
				l.Sweep()
			}
		}
	}()
}

// Stop 停止回收 goroutine，用于优雅停服。可重复调用。
func (l *Limiters) Stop() {
	l.once.Do(func() { close(l.stop) })
}

// RateLimit 返回基于 IP+路由的限速中间件。skip 中的路由不限速
// （例如 WebSocket 握手，连接内的事件另有限速）。
func RateLimit(l *Limiters, skip ...string) gin.HandlerFunc {
	skipped := make(map[string]bool, len(skip))
	for _, p := range skip {
		skipped[p] = true
	}
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		if skipped[route] {
			c.Next()
			return
		}
		if !l.Allow(clientIP(c.Request.RemoteAddr) + "|" + route) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests", "kind": "rate_limited"})
			return
		}
		c.Next()
	}
}

func clientIP(remote string) string {
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		return remote
	}
	return host
}
