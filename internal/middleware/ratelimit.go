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

const visitorTTL = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// visitorLimiter keeps one token bucket per client address.
type visitorLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rps      rate.Limit
	burst    int
}

func newVisitorLimiter(rps float64, burst int) *visitorLimiter {
	return &visitorLimiter{
		visitors: make(map[string]*visitor),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

// allow takes a token for addr. When none is left it reports how long the
// client should wait instead.
func (vl *visitorLimiter) allow(addr string, now time.Time) (bool, time.Duration) {
	vl.mu.Lock()
	v, ok := vl.visitors[addr]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(vl.rps, vl.burst)}
		vl.visitors[addr] = v
	}
	v.lastSeen = now
	vl.mu.Unlock()

	res := v.limiter.ReserveN(now, 1)
	if !res.OK() {
		return false, time.Second
	}
	if wait := res.DelayFrom(now); wait > 0 {
		res.CancelAt(now)
		return false, wait
	}
	return true, 0
}

// janitor forgets visitors idle for longer than ttl until ctx is done.
func (vl *visitorLimiter) janitor(ctx context.Context, ttl time.Duration) {
	ticker := time.NewTicker(ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			vl.evict(now, ttl)
		}
	}
}

func (vl *visitorLimiter) evict(now time.Time, ttl time.Duration) {
	vl.mu.Lock()
	defer vl.mu.Unlock()

	for addr, v := range vl.visitors {
		if now.Sub(v.lastSeen) > ttl {
			delete(vl.visitors, addr)
		}
	}
}

// RateLimit returns middleware that limits requests per client address.
// rps is the allowed requests per second, burst is the maximum burst size.
// Rejected requests get a 429 with a Retry-After header. The idle-visitor
// janitor stops when ctx is done.
func RateLimit(ctx context.Context, rps float64, burst int) func(http.Handler) http.Handler {
	vl := newVisitorLimiter(rps, burst)
	go vl.janitor(ctx, visitorTTL)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// RealIP has already rewritten RemoteAddr when a proxy header is present.
			addr, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				addr = r.RemoteAddr
			}

			if ok, wait := vl.allow(addr, time.Now()); !ok {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				writeJSONError(w, http.StatusTooManyRequests, "Too many requests, please try again later")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
