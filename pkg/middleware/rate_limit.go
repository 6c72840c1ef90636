package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	apperrors "medislot/pkg/errors"
	httputil "medislot/pkg/http"
	"medislot/pkg/logger"

	"golang.org/x/time/rate"
)

// KeyExtractor picks the bucket a request is charged to. An empty key is not limited.
type KeyExtractor func(r *http.Request) string

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedRateLimiter allows limit requests per window for each key, refilling
// continuously rather than resetting at window boundaries.
type KeyedRateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*limiterEntry
	limit     int
	window    time.Duration
	every     rate.Limit
	extractor KeyExtractor
	log       *logger.Logger
	stopCh    chan struct{}
}

func NewKeyedRateLimiter(limit int, window time.Duration, extractor KeyExtractor, log *logger.Logger) *KeyedRateLimiter {
	if extractor == nil {
		extractor = httputil.ClientIP
	}

	limiter := &KeyedRateLimiter{
		limiters:  make(map[string]*limiterEntry),
		limit:     limit,
		window:    window,
		every:     rate.Every(window / time.Duration(limit)),
		extractor: extractor,
		log:       log,
		stopCh:    make(chan struct{}),
	}

	go limiter.cleanup()

	return limiter
}

func (rl *KeyedRateLimiter) cleanup() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.mu.Lock()
			for key, entry := range rl.limiters {
				if time.Since(entry.lastSeen) > rl.window {
					delete(rl.limiters, key)
				}
			}
			rl.mu.Unlock()
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *KeyedRateLimiter) Stop() {
	close(rl.stopCh)
}

// Reserve charges one request to key. It returns false and the wait before the
// next allowed request when the bucket is empty.
func (rl *KeyedRateLimiter) Reserve(key string) (bool, time.Duration) {
	if key == "" {
		return true, 0
	}

	now := time.Now()

	rl.mu.Lock()
	entry, ok := rl.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.every, rl.limit)}
		rl.limiters[key] = entry
	}
	entry.lastSeen = now
	rl.mu.Unlock()

	reservation := entry.limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return false, rl.window
	}
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		return false, delay
	}
	return true, 0
}

func (rl *KeyedRateLimiter) Allow(key string) bool {
	ok, _ := rl.Reserve(key)
	return ok
}

func RateLimit(limiter *KeyedRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := limiter.extractor(r)

			allowed, retryAfter := limiter.Reserve(key)
			if !allowed {
				rejectRateLimited(w, limiter.log, r, key, retryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func rejectRateLimited(w http.ResponseWriter, log *logger.Logger, r *http.Request, key string, retryAfter time.Duration) {
	log.Warn("Rate limit exceeded",
		"request_id", RequestID(r.Context()),
		"key", key,
		"path", r.URL.Path,
	)

	seconds := int(math.Ceil(retryAfter.Seconds()))
	w.Header().Set("Retry-After", strconv.Itoa(max(seconds, 1)))
	_ = apperrors.WriteError(w, apperrors.RateLimited("Too many requests, please try again later"))
}
