package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	UserIDHeader = "X-User-ID"
	userIDKey    = "user_id"
)

// RequireUser rejects requests without an X-User-ID header and stores the id
// for handlers.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(UserIDHeader)
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "X-User-ID header required"})
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

// UserID returns the id stored by RequireUser.
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

// RateLimiter lets each user through at most once per limit.
type RateLimiter struct {
	clients map[string]time.Time
	mu      sync.Mutex
	limit   time.Duration
	now     func() time.Time
}

func NewRateLimiter(limit time.Duration) *RateLimiter {
	return &RateLimiter{
		clients: make(map[string]time.Time),
		limit:   limit,
		now:     time.Now,
	}
}

// Middleware must run after RequireUser.
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := UserID(c)
		now := r.now()
		r.mu.Lock()
		last, exists := r.clients[userID]
		if exists && now.Sub(last) < r.limit {
			r.mu.Unlock()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		r.clients[userID] = now
		r.mu.Unlock()
		c.Next()
	}
}

// Prune forgets users idle for longer than the limit.
func (r *RateLimiter) Prune() {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, last := range r.clients {
		if now.Sub(last) >= r.limit {
			delete(r.clients, id)
		}
	}
}
