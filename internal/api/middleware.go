package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"atelier/internal/access"
	"atelier/internal/metrics"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// AdminTokenHeader carries the admin token on privileged requests.
const AdminTokenHeader = "X-Admin-Token"

type Middleware func(http.Handler) http.Handler

// Chain applies m so that Chain(h, a, b) becomes a(b(h)).
func Chain(h http.Handler, m ...Middleware) http.Handler {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// withAccessLog logs each request and counts it by route pattern.
func withAccessLog(clients clientResolver, logger zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			endpoint := r.Pattern
			if endpoint == "" {
				endpoint = "unmatched"
			}
			metrics.IncHTTPRequest(endpoint, strconv.Itoa(rec.status))

			ev := logger.Debug()
			if rec.status >= http.StatusInternalServerError {
				ev = logger.Warn()
			}
			ev.Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", rec.status).
				Dur("duration", time.Since(started)).
				Str("remote", clients.key(r)).
				Msg("http request")
		})
	}
}

func withRecover(logger zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error().Str("panic", fmt.Sprint(rec)).Str("path", r.URL.Path).Msg("handler panic")
					writeError(w, http.StatusInternalServerError, "internal error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func withBodyLimit(limitBytes int64) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, limitBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// requireAdmin resolves the admin principal from AdminTokenHeader and stores it in the request context.
func requireAdmin(auth *access.Authenticator, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := auth.Authenticate(r.Header.Get(AdminTokenHeader))
		if err == nil {
			err = access.RequireAdmin(p)
		}
		if err != nil {
			writeError(w, http.StatusUnauthorized, "admin token required")
			return
		}
		next(w, r.WithContext(access.WithPrincipal(r.Context(), p)))
	}
}

// Limiter decides whether a client may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// IPRateLimiter keeps one token bucket per client address.
type IPRateLimiter struct {
	rps     rate.Limit
	burst   int
	mu      sync.Mutex
	clients map[string]*client
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewIPRateLimiter(rps float64, burst int) *IPRateLimiter {
	return &IPRateLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		clients: make(map[string]*client),
	}
}

func (l *IPRateLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.clients[key] = c
	}
	c.lastSeen = time.Now()
	return c.limiter.Allow(), nil
}

// Sweep forgets clients idle for longer than idle.
func (l *IPRateLimiter) Sweep(idle time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := time.Now().Add(-idle)
	for k, c := range l.clients {
		if c.lastSeen.Before(cutoff) {
			delete(l.clients, k)
		}
	}
}

// RedisRateLimiter is a fixed-window limiter shared by all instances.
type RedisRateLimiter struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
	prefix string
}

var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

func NewRedisRateLimiter(rdb *redis.Client, limit int, window time.Duration) *RedisRateLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RedisRateLimiter{rdb: rdb, limit: limit, window: window, prefix: "rl"}
}

func (l *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	count, err := fixedWindowScript.Run(ctx, l.rdb, []string{l.prefix + ":" + key}, l.window.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return count <= int64(l.limit), nil
}

// withRateLimit rejects clients over the limit. Limiter failures let the request through.
func withRateLimit(l Limiter, clients clientResolver, logger zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, err := l.Allow(r.Context(), clients.key(r))
			if err != nil {
				logger.Warn().Err(err).Msg("rate limiter error")
				ok = true
			}
			if !ok {
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientResolver names the client a request is rate limited and logged under.
type clientResolver struct {
	trusted []netip.Prefix
}

// key is the peer address unless the peer is a trusted proxy. Behind trusted
// proxies it is the right-most X-Forwarded-For hop that is not itself trusted,
// since hops to the left of it are whatever the client chose to send.
func (c clientResolver) key(r *http.Request) string {
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		host = h
	}
	if !c.trusts(host) {
		return host
	}

	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if !c.trusts(hop) {
			return hop
		}
	}
	return host
}

func (c clientResolver) trusts(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range c.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
