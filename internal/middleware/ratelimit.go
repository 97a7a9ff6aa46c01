package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"docchat/gateway/pkg/api"
)

// Counter increments a windowed counter and returns the new value.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RedisCounter is a fixed-window counter: the key expires with its window.
type RedisCounter struct {
	client *redis.Client
}

func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client}
}

func (r *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// RateLimit allows limit requests per client IP and route per window. A
// failing counter lets the request through, and so does a window that is not
// positive.
func RateLimit(counter Counter, limit int64, window time.Duration, log zerolog.Logger) gin.HandlerFunc {
	if window <= 0 {
		log.Warn().Dur("window", window).Msg("rate limit window not positive, limiter off")
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		bucket := time.Now().UnixNano() / int64(window)
		key := fmt.Sprintf("ratelimit:%s:%s:%d", c.FullPath(), c.ClientIP(), bucket)

		count, err := counter.Incr(c.Request.Context(), key, window)
		if err != nil {
			log.Warn().Err(err).Str("request_id", RequestIDFrom(c)).Msg("rate limit counter unavailable")
			c.Next()
			return
		}

		if count > limit {
			c.Header("Retry-After", strconv.Itoa(int(window.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, api.ErrorResponse{
				Detail: api.DetailRateLimited,
			})
			return
		}

		c.Next()
	}
}
