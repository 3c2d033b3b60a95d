package api

import (
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/victornm/misquote/internal/account"
	"github.com/victornm/misquote/internal/domain"
	"github.com/victornm/misquote/internal/errors"
)

const (
	keyIdentity = "misquote.identity"

	defaultLimiterIdle = 10 * time.Minute
)

// RateLimitConfig limits requests per client IP. A zero RPS disables limiting.
type RateLimitConfig struct {
	RPS   float64
	Burst int
	// Idle is how long a client's limiter is kept after its last request.
	Idle time.Duration
	Now  func() time.Time
}

type limiter struct {
	c RateLimitConfig

	mu        sync.Mutex
	limiters  map[string]*clientLimiter
	lastSweep time.Time
}

type clientLimiter struct {
	*rate.Limiter
	lastSeen time.Time
}

func newLimiter(c RateLimitConfig) *limiter {
	if c.Burst <= 0 {
		c.Burst = max(int(c.RPS), 1)
	}
	if c.Idle <= 0 {
		c.Idle = defaultLimiterIdle
	}
	if c.Now == nil {
		c.Now = time.Now
	}

	return &limiter{
		c:         c,
		limiters:  make(map[string]*clientLimiter),
		lastSweep: c.Now(),
	}
}

func (l *limiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.c.Now()
	l.sweepLocked(now)

	if lim, ok := l.limiters[key]; ok {
		lim.lastSeen = now
		return lim.Limiter
	}

	lim := &clientLimiter{
		Limiter:  rate.NewLimiter(rate.Limit(l.c.RPS), l.c.Burst),
		lastSeen: now,
	}
	l.limiters[key] = lim
	return lim.Limiter
}

// sweepLocked forgets clients idle for longer than Idle. It scans at most once per Idle.
func (l *limiter) sweepLocked(now time.Time) {
	if now.Sub(l.lastSweep) < l.c.Idle {
		return
	}
	l.lastSweep = now

	for key, lim := range l.limiters {
		if now.Sub(lim.lastSeen) >= l.c.Idle {
			delete(l.limiters, key)
		}
	}
}

func (l *limiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

func (a *API) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.limiter.c.RPS <= 0 {
			c.Next()
			return
		}

		if !a.limiter.get(c.ClientIP()).Allow() {
			c.Header("Retry-After", "1")
			renderError(c, errors.New(errors.CodeResourceExhausted,
				errors.WithMessagef("too many requests, please slow down")))
			return
		}

		c.Next()
	}
}

// authenticate resolves the bearer token into an identity stored on the context.
func (a *API) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok {
			renderError(c, errors.Unauthenticated("bearer token is required"))
			return
		}

		id, err := a.accounts.Authenticate(c.Request.Context(), token)
		if err != nil {
			renderError(c, err)
			return
		}

		c.Set(keyIdentity, id)
		c.Next()
	}
}

func requireRole(role domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := identity(c); id.Role != role {
			renderError(c, errors.PermissionDenied("only %s accounts may do this", role))
			return
		}

		c.Next()
	}
}

// identity must only be called behind authenticate.
func identity(c *gin.Context) *account.Identity {
	return c.MustGet(keyIdentity).(*account.Identity)
}
