package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	CorrelationHeader = "X-Correlation-ID"
	ReplayHeader      = "X-Idempotent-Replay"
)

// lockTTL bounds how long a crashed request can block its correlation ID
const lockTTL = 60 * time.Second

type cachedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// IdempotencyMiddleware provides idempotency for POST/PUT/PATCH requests using X-Correlation-ID.
// A repeated ID within ttl replays the stored 2xx response; a repeat that arrives while the
// first request is still running gets 409.
func IdempotencyMiddleware(redisClient *redis.Client, ttl time.Duration) fiber.Handler {
	logger := log.With().Str("component", "idempotency").Logger()

	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost && c.Method() != fiber.MethodPatch && c.Method() != fiber.MethodPut {
			return c.Next()
		}

		correlationID := c.Get(CorrelationHeader)
		if correlationID == "" {
			return c.Next()
		}
		if len(correlationID) > 128 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"error":   "correlation id is too long",
			})
		}

		key := fmt.Sprintf("idempotency:%s:%s", c.Path(), correlationID)
		lockKey := key + ":lock"
		ctx := c.UserContext()

		if raw, err := redisClient.Get(ctx, key).Bytes(); err == nil && len(raw) > 0 {
			var cached cachedResponse
			if err := sonic.Unmarshal(raw, &cached); err == nil {
				c.Set(ReplayHeader, "true")
				if cached.ContentType != "" {
					c.Set(fiber.HeaderContentType, cached.ContentType)
				}
				return c.Status(cached.Status).Send(cached.Body)
			}
			logger.Warn().Str("key", key).Msg("discarding unreadable cached response")
		} else if err != nil && err != redis.Nil {
			// the cache is an optimisation; serve the request without it
			logger.Warn().Err(err).Msg("idempotency lookup failed")
			return c.Next()
		}

		acquired, err := redisClient.SetNX(ctx, lockKey, "1", lockTTL).Result()
		if err != nil {
			logger.Warn().Err(err).Msg("idempotency lock failed")
			return c.Next()
		}
		if !acquired {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"success": false,
				"error":   "a request with this correlation id is already in progress",
			})
		}
		defer func() {
			unlockCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			redisClient.Del(unlockCtx, lockKey)
		}()

		if err := c.Next(); err != nil {
			return err
		}

		status := c.Response().StatusCode()
		if status < 200 || status >= 300 {
			return nil
		}

		// the response buffer is reused once the handler returns, so copy it now
		payload, err := sonic.Marshal(cachedResponse{
			Status:      status,
			ContentType: string(c.Response().Header.ContentType()),
			Body:        append([]byte(nil), c.Response().Body()...),
		})
		if err != nil {
			logger.Warn().Err(err).Msg("failed to encode response for replay")
			return nil
		}

		storeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := redisClient.Set(storeCtx, key, payload, ttl).Err(); err != nil {
			logger.Warn().Err(err).Msg("failed to store response for replay")
		}
		return nil
	}
}
