package app

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/seawire/vela/internal/config"
	"github.com/seawire/vela/internal/logger"
	"github.com/seawire/vela/internal/router"
	"github.com/seawire/vela/internal/util"
)

// RateLimiter is a token-bucket limiter with a global bucket plus one bucket
// per client IP. Buckets refill continuously at the per-minute rate; relay
// routes and internal routes can carry different limits.
type RateLimiter struct {
	globalRequestsPerMinute int
	perIPRequestsPerMinute  int
	burstSize               int
	trustProxyHeaders       bool
	trustedCIDRs            []*net.IPNet
	logger                  *logger.StyledLogger

	globalTokens     int64
	lastGlobalRefill int64
	ipBuckets        sync.Map
	cleanupTicker    *time.Ticker
	stopCleanup      chan struct{}
}

type ipBucket struct {
	tokens     int64
	lastRefill int64
	lastAccess int64
}

type RateLimitResult struct {
	Allowed    bool
	RetryAfter int
	Limit      int
	Remaining  int
	ResetTime  time.Time
}

func NewRateLimiter(limits config.ServerRateLimits, logger *logger.StyledLogger) *RateLimiter {
	initialGlobalTokens := int64(0)
	if limits.GlobalRequestsPerMinute > 0 {
		initialGlobalTokens = int64(limits.BurstSize)
	}

	rl := &RateLimiter{
		globalRequestsPerMinute: limits.GlobalRequestsPerMinute,
		perIPRequestsPerMinute:  limits.PerIPRequestsPerMinute,
		burstSize:               limits.BurstSize,
		trustProxyHeaders:       limits.TrustProxyHeaders,
		trustedCIDRs:            limits.TrustedProxyCIDRsParsed,
		logger:                  logger,
		globalTokens:            initialGlobalTokens,
		lastGlobalRefill:        time.Now().UnixNano(),
		stopCleanup:             make(chan struct{}),
	}

	if limits.CleanupInterval > 0 {
		rl.cleanupTicker = time.NewTicker(limits.CleanupInterval)
		go rl.cleanupRoutine()
	}
	return rl
}

func (rl *RateLimiter) Stop() {
	if rl.cleanupTicker != nil {
		rl.cleanupTicker.Stop()
	}
	close(rl.stopCleanup)
}

// Middleware enforces the limiter; internal endpoints share the per-IP rate
// but use a separate bucket so status polling cannot starve relay traffic.
func (rl *RateLimiter) Middleware(isInternalEndpoint bool) router.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := util.GetClientIP(r, rl.trustProxyHeaders, rl.trustedCIDRs)

			result := rl.checkRateLimit(clientIP, isInternalEndpoint)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetTime.Unix(), 10))

			if !result.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
				rl.logger.Warn("Rate limit exceeded",
					"client_ip", clientIP,
					"method", r.Method,
					"path", r.URL.Path,
					"limit", result.Limit,
					"retry_after", result.RetryAfter)
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RateLimiter) checkRateLimit(clientIP string, isInternalEndpoint bool) RateLimitResult {
	now := time.Now()
	nowNano := now.UnixNano()

	if rl.globalRequestsPerMinute > 0 && !rl.checkGlobalLimit(nowNano) {
		return RateLimitResult{
			Allowed:    false,
			RetryAfter: 60,
			Limit:      rl.globalRequestsPerMinute,
			Remaining:  0,
			ResetTime:  now.Add(time.Minute),
		}
	}
	return rl.checkIPLimit(clientIP, isInternalEndpoint, nowNano, now)
}

func (rl *RateLimiter) checkGlobalLimit(nowNano int64) bool {
	rl.refillGlobalTokens(nowNano)
	for {
		tokens := atomic.LoadInt64(&rl.globalTokens)
		if tokens <= 0 {
			return false
		}
		if atomic.CompareAndSwapInt64(&rl.globalTokens, tokens, tokens-1) {
			return true
		}
	}
}

func (rl *RateLimiter) refillGlobalTokens(nowNano int64) {
	lastRefill := atomic.LoadInt64(&rl.lastGlobalRefill)
	elapsed := nowNano - lastRefill
	if elapsed < int64(time.Second) {
		return
	}
	if !atomic.CompareAndSwapInt64(&rl.lastGlobalRefill, lastRefill, nowNano) {
		return
	}

	tokensToAdd := elapsed * int64(rl.globalRequestsPerMinute) / int64(time.Minute)
	if tokensToAdd <= 0 {
		return
	}
	for {
		currentTokens := atomic.LoadInt64(&rl.globalTokens)
		newTokens := currentTokens + tokensToAdd
		if max := int64(rl.burstSize); newTokens > max {
			newTokens = max
		}
		if atomic.CompareAndSwapInt64(&rl.globalTokens, currentTokens, newTokens) {
			return
		}
	}
}

func (rl *RateLimiter) checkIPLimit(clientIP string, isInternalEndpoint bool, nowNano int64, now time.Time) RateLimitResult {
	limit := rl.perIPRequestsPerMinute
	if limit <= 0 {
		return RateLimitResult{
			Allowed:   true,
			Limit:     limit,
			Remaining: limit,
			ResetTime: now.Add(time.Minute),
		}
	}

	bucketKey := clientIP
	if isInternalEndpoint {
		bucketKey = clientIP + ":internal"
	}

	initialTokens := int64(limit)
	if int64(rl.burstSize) < initialTokens {
		initialTokens = int64(rl.burstSize)
	}

	value, _ := rl.ipBuckets.LoadOrStore(bucketKey, &ipBucket{
		tokens:     initialTokens,
		lastRefill: nowNano,
		lastAccess: nowNano,
	})
	bucket := value.(*ipBucket)

	rl.refillIPTokens(bucket, limit, nowNano)

	for {
		tokens := atomic.LoadInt64(&bucket.tokens)
		if tokens <= 0 {
			retryAfter := 60 / limit
			if retryAfter < 1 {
				retryAfter = 1
			}
			return RateLimitResult{
				Allowed:    false,
				RetryAfter: retryAfter,
				Limit:      limit,
				Remaining:  0,
				ResetTime:  now.Add(time.Minute),
			}
		}
		if atomic.CompareAndSwapInt64(&bucket.tokens, tokens, tokens-1) {
			atomic.StoreInt64(&bucket.lastAccess, nowNano)
			remaining := int(tokens - 1)
			if remaining < 0 {
				remaining = 0
			}
			return RateLimitResult{
				Allowed:   true,
				Limit:     limit,
				Remaining: remaining,
				ResetTime: now.Add(time.Minute),
			}
		}
	}
}

func (rl *RateLimiter) refillIPTokens(bucket *ipBucket, limit int, nowNano int64) {
	lastRefill := atomic.LoadInt64(&bucket.lastRefill)
	elapsed := nowNano - lastRefill
	if elapsed < int64(time.Second) {
		return
	}
	if !atomic.CompareAndSwapInt64(&bucket.lastRefill, lastRefill, nowNano) {
		return
	}

	tokensToAdd := elapsed * int64(limit) / int64(time.Minute)
	if tokensToAdd <= 0 {
		return
	}
	for {
		currentTokens := atomic.LoadInt64(&bucket.tokens)
		newTokens := currentTokens + tokensToAdd
		if max := int64(rl.burstSize); newTokens > max {
			newTokens = max
		}
		if atomic.CompareAndSwapInt64(&bucket.tokens, currentTokens, newTokens) {
			return
		}
	}
}

func (rl *RateLimiter) cleanupRoutine() {
	for {
		select {
		case <-rl.stopCleanup:
			return
		case <-rl.cleanupTicker.C:
			rl.cleanupOldBuckets()
		}
	}
}

func (rl *RateLimiter) cleanupOldBuckets() {
	cutoff := time.Now().Add(-10 * time.Minute).UnixNano()
	rl.ipBuckets.Range(func(key, value interface{}) bool {
		bucket := value.(*ipBucket)
		if atomic.LoadInt64(&bucket.lastAccess) < cutoff {
			rl.ipBuckets.Delete(key)
		}
		return true
	})
}
