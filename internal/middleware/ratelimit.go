package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-examcore/internal/config"
	"github.com/stemsi/exstem-examcore/internal/response"
)

// RateLimiter allows rate requests per interval for each caller. Students are
// keyed by their token's user id, everyone else by client IP. With a Redis
// client the window is shared across instances; otherwise a local token
// bucket is used.
type RateLimiter struct {
	scope    string
	rate     int
	interval time.Duration
	rdb      *redis.Client
	log      zerolog.Logger

	mu          sync.Mutex
	visitors    map[string]*visitor
	lastCleanup time.Time
	now         func() time.Time
}

type visitor struct {
	tokens   int
	lastSeen time.Time
}

// NewRateLimiter creates a RateLimiter (e.g., 10 requests per minute). rdb
// may be nil.
func NewRateLimiter(scope string, rate int, interval time.Duration, rdb *redis.Client, log zerolog.Logger) *RateLimiter {
	return &RateLimiter{
		scope:    scope,
		rate:     rate,
		interval: interval,
		rdb:      rdb,
		log:      log.With().Str("component", "rate_limiter").Str("scope", scope).Logger(),
		visitors: make(map[string]*visitor),
		now:      time.Now,
	}
}

// Middleware returns a Gin middleware that rate-limits requests.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.rate <= 0 {
			c.Next()
			return
		}

		subject := "ip:" + c.ClientIP()
		if claims := GetClaims(c); claims != nil {
			subject = "user:" + strconv.Itoa(claims.UserID)
		}

		if !rl.allow(c, subject) {
			response.AbortFail(c, http.StatusTooManyRequests, response.ErrRateLimitExceeded)
			return
		}
		c.Next()
	}
}

func (rl *RateLimiter) allow(c *gin.Context, subject string) bool {
	if rl.rdb != nil {
		allowed, err := rl.allowShared(c, subject)
		if err == nil {
			return allowed
		}
		rl.log.Warn().Err(err).Msg("Shared rate limit unavailable, using local bucket")
	}
	return rl.allowLocal(subject)
}

// allowShared counts requests in a fixed Redis window.
func (rl *RateLimiter) allowShared(c *gin.Context, subject string) (bool, error) {
	ctx := c.Request.Context()
	key := config.CacheKey.RateLimitKey(rl.scope, subject)

	pipe := rl.rdb.TxPipeline()
	pipe.SetNX(ctx, key, 0, rl.interval)
	incr := pipe.Incr(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return incr.Val() <= int64(rl.rate), nil
}

func (rl *RateLimiter) allowLocal(subject string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastCleanup) > time.Minute {
		rl.cleanup(now)
		rl.lastCleanup = now
	}

	v, exists := rl.visitors[subject]
	if !exists {
		v = &visitor{tokens: rl.rate, lastSeen: now}
		rl.visitors[subject] = v
	}

	// Refill tokens based on elapsed time.
	elapsed := now.Sub(v.lastSeen)
	refill := int(elapsed/rl.interval) * rl.rate
	if refill > 0 {
		v.tokens = min(v.tokens+refill, rl.rate)
		v.lastSeen = now
	}

	if v.tokens <= 0 {
		return false
	}
	v.tokens--
	return true
}

func (rl *RateLimiter) cleanup(now time.Time) {
	for key, v := range rl.visitors {
		if now.Sub(v.lastSeen) > 3*rl.interval {
			delete(rl.visitors, key)
		}
	}
}
