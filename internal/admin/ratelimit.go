package admin

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// routeClass groups admin routes that draw from the same per-client budget.
type routeClass string

const (
	classLookup  routeClass = "lookup"  // tx, fees, health, breakers
	classHistory routeClass = "history" // in-memory ledger paging
	classArchive routeClass = "archive" // history read from Postgres
	classWrite   routeClass = "write"   // runtime config writes
)

// bucketIdleTTL is how long an unused client bucket is kept.
const bucketIdleTTL = 10 * time.Minute

// Limit is a token bucket. A zero RPS disables limiting.
type Limit struct {
	RPS   rate.Limit
	Burst int
}

// RateLimits sets the per-client budget of each route class.
type RateLimits struct {
	Lookup  Limit
	History Limit
	Archive Limit
	Write   Limit
}

func DefaultRateLimits() RateLimits {
	return RateLimits{
		Lookup:  Limit{RPS: 5, Burst: 20},
		History: Limit{RPS: 2, Burst: 10},
		Archive: Limit{RPS: 0.5, Burst: 2},
		Write:   Limit{RPS: rate.Every(6 * time.Second), Burst: 3},
	}
}

func (l RateLimits) forClass(c routeClass) Limit {
	switch c {
	case classHistory:
		return l.History
	case classArchive:
		return l.Archive
	case classWrite:
		return l.Write
	default:
		return l.Lookup
	}
}

type bucketKey struct {
	class  routeClass
	client string
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimiter keeps one bucket per route class and client address. Idle
// buckets are swept on access, so it needs no goroutine.
type clientLimiter struct {
	mu        sync.Mutex
	limits    RateLimits
	buckets   map[bucketKey]*bucket
	lastSweep time.Time
	nowFn     func() time.Time
}

func newClientLimiter(limits RateLimits) *clientLimiter {
	return &clientLimiter{
		limits:  limits,
		buckets: make(map[bucketKey]*bucket),
		nowFn:   time.Now,
	}
}

func (l *clientLimiter) allow(class routeClass, client string) bool {
	lim := l.limits.forClass(class)
	if lim.RPS == 0 {
		return true
	}
	now := l.nowFn()

	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Sub(l.lastSweep) > bucketIdleTTL {
		for k, b := range l.buckets {
			if now.Sub(b.lastSeen) > bucketIdleTTL {
				delete(l.buckets, k)
			}
		}
		l.lastSweep = now
	}

	key := bucketKey{class: class, client: client}
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(lim.RPS, lim.Burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

func (l *clientLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// retryAfter is the whole number of seconds until one token refills.
func retryAfter(lim Limit) string {
	if lim.RPS <= 0 || lim.RPS == rate.Inf {
		return "1"
	}
	// rate.Every stores the inverse, so trim float noise before rounding up.
	return strconv.Itoa(int(math.Ceil(1/float64(lim.RPS) - 1e-9)))
}

// limited wraps next with the budget of the class classify picks for the
// request.
func (s *Server) limited(classify func(*http.Request) routeClass, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		class := classify(r)
		client := clientAddr(r)
		if s.limiter.allow(class, client) {
			next(w, r)
			return
		}
		w.Header().Set("Retry-After", retryAfter(s.limiter.limits.forClass(class)))
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		s.logger.Warn("admin rate limit exceeded",
			"class", string(class),
			"client", client,
			"method", r.Method,
			"path", r.URL.Path,
		)
	}
}

func always(c routeClass) func(*http.Request) routeClass {
	return func(*http.Request) routeClass { return c }
}

// historyClass charges archive reads, which hit the database, separately
// from ledger paging.
func historyClass(r *http.Request) routeClass {
	if r.URL.Query().Get("source") == "archive" {
		return classArchive
	}
	return classHistory
}

// clientAddr is the peer host. The admin listener is operator-facing and
// not expected behind a proxy, so forwarding headers are ignored.
func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
