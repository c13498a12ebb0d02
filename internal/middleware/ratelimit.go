package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/bryanwahyu/maestro-analyzer/internal/domain/failure"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps a token bucket per key.
type RateLimiter struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	stop    chan struct{}
	once    sync.Once
}

// NewRateLimiter allows perSecond requests with the given burst per key.
// Idle keys are evicted in the background.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	rl := &RateLimiter{
		entries: make(map[string]*limiterEntry),
		limit:   rate.Limit(perSecond),
		burst:   burst,
		idleTTL: 10 * time.Minute,
		stop:    make(chan struct{}),
	}
	// cleanup jalan di background
	go rl.cleanup()
	return rl
}

func (rl *RateLimiter) get(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	e, ok := rl.entries[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.entries[key] = e
	}
	e.lastSeen = time.Now()
	return e.limiter
}

// Reserve reports whether a request for key may proceed now. If not it
// returns how long the caller should wait.
func (rl *RateLimiter) Reserve(key string) (bool, time.Duration) {
	lim := rl.get(key)
	if lim.Allow() {
		return true, 0
	}
	r := lim.Reserve()
	if !r.OK() {
		return false, time.Second
	}
	wait := r.Delay()
	// only peeking, give the token back
	r.Cancel()
	return false, wait
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case now := <-ticker.C:
			rl.evict(now)
		}
	}
}

func (rl *RateLimiter) evict(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for k, e := range rl.entries {
		if now.Sub(e.lastSeen) > rl.idleTTL {
			delete(rl.entries, k)
		}
	}
}

// Close stops the cleanup goroutine.
func (rl *RateLimiter) Close() {
	rl.once.Do(func() { close(rl.stop) })
}

// RateLimitMiddleware rejects requests over the limit with 429. Keyed by
// tenant and client ip.
func RateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}
			key := GetTenantFromContext(r.Context()) + ":" + ip

			ok, wait := rl.Reserve(key)
			if !ok {
				secs := int(math.Ceil(wait.Seconds()))
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				WriteError(w, http.StatusTooManyRequests, failure.New(failure.Spec{
					Code:            failure.CodeValidationError,
					Severity:        failure.SeverityLow,
					Message:         "too many requests",
					UserMessage:     "Too many requests. Please wait " + strconv.Itoa(secs) + " seconds before trying again.",
					Context:         map[string]any{"retry_after": secs},
					RecoveryActions: []failure.RecoveryAction{{Type: failure.ActionRetry, Label: "Retry Later"}},
				}))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
