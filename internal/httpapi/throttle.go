package httpapi

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"auth-service/internal/clock"
)

// IPThrottle shields the login path from a single source hammering many
// usernames; the per-principal lockout in the engine handles the rest.
type IPThrottle struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	window  time.Duration
	clients map[string]*throttledClient
	clock   clock.Clock
}

type throttledClient struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewIPThrottle returns nil when requestsPerMinute is zero or negative;
// a nil throttle passes every request through.
func NewIPThrottle(requestsPerMinute int, clk clock.Clock) *IPThrottle {
	if requestsPerMinute <= 0 {
		return nil
	}

	burst := requestsPerMinute / 10
	if burst < 1 {
		burst = 1
	}

	return &IPThrottle{
		limit:   rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:   burst,
		window:  5 * time.Minute,
		clients: make(map[string]*throttledClient),
		clock:   clk,
	}
}

func (t *IPThrottle) Middleware(next http.Handler) http.Handler {
	if t == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !t.allow(clientIP(r)) {
			writeRateLimited(w, t.clock.Now(), 60, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (t *IPThrottle) allow(ip string) bool {
	now := t.clock.Now()

	t.mu.Lock()
	entry, ok := t.clients[ip]
	if !ok {
		entry = &throttledClient{limiter: rate.NewLimiter(t.limit, t.burst)}
		t.clients[ip] = entry
		t.cleanupLocked(now)
	}
	entry.lastSeen = now
	t.mu.Unlock()

	return entry.limiter.Allow()
}

func (t *IPThrottle) cleanupLocked(now time.Time) {
	for ip, entry := range t.clients {
		if now.Sub(entry.lastSeen) > t.window {
			delete(t.clients, ip)
		}
	}
}
