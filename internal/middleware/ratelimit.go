package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter throttles requests with one token bucket per caller.
// Authenticated requests are keyed by user, anonymous ones by client IP.
type RateLimiter struct {
	rate       rate.Limit
	burst      int
	maxClients int

	mu      sync.Mutex
	clients map[string]*client
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows rps requests per second per caller with bursts of
// up to burst.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		rate:       rate.Limit(rps),
		burst:      burst,
		maxClients: 100000,
		clients:    make(map[string]*client),
	}
}

// Handler rejects callers over their budget with 429 and a Retry-After.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		now := time.Now()
		lim := rl.limiter(clientKey(r), now)
		if lim == nil {
			rejectRate(w, time.Second)
			return
		}

		res := lim.ReserveN(now, 1)
		if delay := res.DelayFrom(now); !res.OK() || delay > 0 {
			res.CancelAt(now)
			w.Header().Set("X-RateLimit-Remaining", "0")
			rejectRate(w, delay)
			return
		}
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(int(lim.TokensAt(now))))
		next.ServeHTTP(w, r)
	})
}

// limiter returns the bucket for key, creating it on first sight. It
// returns nil when the table is full.
func (rl *RateLimiter) limiter(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	c, ok := rl.clients[key]
	if !ok {
		if len(rl.clients) >= rl.maxClients {
			return nil
		}
		c = &client{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.clients[key] = c
	}
	c.lastSeen = now
	return c.limiter
}

func rejectRate(w http.ResponseWriter, retryAfter time.Duration) {
	secs := max(1, int(math.Ceil(retryAfter.Seconds())))
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	writeError(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
}

// StartCleanup forgets callers idle for longer than maxIdle, checking
// every interval. The returned func stops it.
func (rl *RateLimiter) StartCleanup(interval, maxIdle time.Duration) func() {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				rl.cleanup(now.Add(-maxIdle))
			}
		}
	}()
	return cancel
}

func (rl *RateLimiter) cleanup(cutoff time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, c := range rl.clients {
		if c.lastSeen.Before(cutoff) {
			delete(rl.clients, key)
		}
	}
}

// Len returns the number of tracked callers.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

func clientKey(r *http.Request) string {
	if u := UserFromContext(r.Context()); u != nil {
		return "user:" + u.ID
	}
	return "ip:" + remoteIP(r)
}

// remoteIP is the peer address. Forwarding headers are not trusted.
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
