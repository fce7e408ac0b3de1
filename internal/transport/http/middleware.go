package http

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ecocycle/rvm-loyalty/internal/auth"
	"github.com/ecocycle/rvm-loyalty/internal/service"
)

// Context key the auth middleware stores the caller's user id under.
const ctxUserID = "user_id"

// LoggingMiddleware prints request/response metrics.
func LoggingMiddleware(log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Infof("%s %s %d %s",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

// Idle limiter entries older than this are dropped by the janitor so the
// per-IP map stays bounded on long-lived processes.
const (
	limiterIdleTTL       = 10 * time.Minute
	limiterSweepInterval = time.Minute
)

type ipBucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type ipBuckets struct {
	mu      sync.Mutex
	rps     rate.Limit
	burst   int
	entries map[string]*ipBucket
}

func newIPBuckets(rps, burst int) *ipBuckets {
	return &ipBuckets{rps: rate.Limit(rps), burst: burst, entries: make(map[string]*ipBucket)}
}

func (b *ipBuckets) get(ip string) *rate.Limiter {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[ip]
	if !ok {
		e = &ipBucket{lim: rate.NewLimiter(b.rps, b.burst)}
		b.entries[ip] = e
	}
	e.lastSeen = time.Now()
	return e.lim
}

// sweep drops entries idle longer than ttl.
func (b *ipBuckets) sweep(ttl time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ip, e := range b.entries {
		if time.Since(e.lastSeen) > ttl {
			delete(b.entries, ip)
		}
	}
}

func (b *ipBuckets) janitor() {
	for range time.Tick(limiterSweepInterval) {
		b.sweep(limiterIdleTTL)
	}
}

// RateLimitMiddleware simple token bucket per IP.
func RateLimitMiddleware(rps, burst int) gin.HandlerFunc {
	buckets := newIPBuckets(rps, burst)
	go buckets.janitor()
	return func(c *gin.Context) {
		ip, _, _ := net.SplitHostPort(c.Request.RemoteAddr)
		if !buckets.get(ip).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

// AuthMiddleware validates the bearer token and stores the caller's user
// id in the request context.
func AuthMiddleware(mgr *auth.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		userID, err := mgr.Validate(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(ctxUserID, userID)
		c.Next()
	}
}

// RequireAdmin gates the admin API on the caller's role.
func RequireAdmin(users *service.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, err := users.Get(c, currentUser(c))
		if err != nil || !u.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			return
		}
		c.Next()
	}
}

func currentUser(c *gin.Context) uint64 {
	id, _ := c.Get(ctxUserID)
	uid, _ := id.(uint64)
	return uid
}
