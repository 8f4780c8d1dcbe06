package middleware

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/Novip1906/tasks-live/internal/config"
	"github.com/Novip1906/tasks-live/pkg/logging"
	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
)

type RateLimiter struct {
	limiter *redis_rate.Limiter
	limit   redis_rate.Limit
	log     *slog.Logger
}

// NewRateLimiter shares the store's redis pool; limits are kept under
// rate_limit:<ip>.
func NewRateLimiter(rdb *redis.Client, cfg *config.RateLimiter, log *slog.Logger) *RateLimiter {
	return &RateLimiter{
		limiter: redis_rate.NewLimiter(rdb),
		limit: redis_rate.Limit{
			Rate:   cfg.RPS,
			Burst:  cfg.Burst,
			Period: time.Second,
		},
		log: log.With(slog.String("middleware", "rate_limiter")),
	}
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)

		res, err := rl.limiter.Allow(r.Context(), rateLimitKey(ip), rl.limit)
		if err != nil {
			// Fails open.
			rl.log.Error("redis rate limiter error", logging.Err(err))
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.limit.Rate))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.Itoa(int(res.ResetAfter.Seconds())))

		if res.Allowed == 0 {
			rl.log.Warn("rate limit exceeded",
				slog.String("ip", ip),
				slog.Duration("retry_after", res.RetryAfter),
			)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]string{"error": "too many requests"})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func rateLimitKey(ip string) string {
	return "rate_limit:" + ip
}
