package middleware

import (
	"errors"
	"io"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/mansoorceksport/sitekit/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticVerifier map[string]*domain.AccessClaims

func (v staticVerifier) Verify(token string) (*domain.AccessClaims, error) {
	if c, ok := v[token]; ok {
		return c, nil
	}
	return nil, errors.New("bad token")
}

func TestVerifyAccessTokenAndAuthorizeRole(t *testing.T) {
	verifier := staticVerifier{
		"admin-token": {UserID: "u-admin", Roles: []string{domain.RoleAdmin}},
		"user-token":  {UserID: "u-user", Roles: []string{domain.RoleUser}},
	}
	app := fiber.New()
	app.Get("/admin", VerifyAccessToken(verifier), AuthorizeRole(domain.RoleAdmin, domain.RoleSuperAdmin), func(c *fiber.Ctx) error {
		return c.SendString(GetUserID(c))
	})

	cases := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"no header", "", fiber.StatusUnauthorized, ""},
		{"wrong scheme", "Basic admin-token", fiber.StatusUnauthorized, ""},
		{"unknown token", "Bearer nope", fiber.StatusUnauthorized, ""},
		{"insufficient role", "Bearer user-token", fiber.StatusForbidden, ""},
		{"admin", "Bearer admin-token", fiber.StatusOK, "u-admin"},
		{"lower-case scheme", "bearer admin-token", fiber.StatusOK, "u-admin"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(fiber.MethodGet, "/admin", nil)
			if tc.header != "" {
				req.Header.Set(fiber.HeaderAuthorization, tc.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tc.status, resp.StatusCode)
			if tc.body != "" {
				body, _ := io.ReadAll(resp.Body)
				assert.Equal(t, tc.body, string(body))
			}
		})
	}
}

func TestIdempotencyReplaysSuccessfulResponses(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	var calls atomic.Int32
	app := fiber.New()
	app.Use(IdempotencyMiddleware(client, time.Minute))
	app.Post("/charge", func(c *fiber.Ctx) error {
		n := calls.Add(1)
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"call": n})
	})
	app.Post("/fail", func(c *fiber.Ctx) error {
		calls.Add(1)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "gateway down"})
	})

	send := func(path, id string) (*httptestResponse, error) {
		req := httptest.NewRequest(fiber.MethodPost, path, nil)
		if id != "" {
			req.Header.Set(CorrelationHeader, id)
		}
		resp, err := app.Test(req)
		if err != nil {
			return nil, err
		}
		body, _ := io.ReadAll(resp.Body)
		return &httptestResponse{status: resp.StatusCode, body: string(body), replay: resp.Header.Get(ReplayHeader)}, nil
	}

	first, err := send("/charge", "abc")
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusCreated, first.status)
	assert.Empty(t, first.replay)

	second, err := send("/charge", "abc")
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusCreated, second.status)
	assert.Equal(t, "true", second.replay)
	assert.Equal(t, first.body, second.body)
	assert.Equal(t, int32(1), calls.Load())

	_, err = send("/charge", "")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load(), "requests without a correlation id always run")

	_, err = send("/fail", "xyz")
	require.NoError(t, err)
	_, err = send("/fail", "xyz")
	require.NoError(t, err)
	assert.Equal(t, int32(4), calls.Load(), "failures are not replayed")

	// a held lock means the first request with this id is still running
	mr.Set("idempotency:/charge:busy:lock", "1")
	busy, err := send("/charge", "busy")
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusConflict, busy.status)
}

type httptestResponse struct {
	status int
	body   string
	replay string
}

func TestRateLimiter(t *testing.T) {
	l := NewRateLimiter(60, 2)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("1.1.1.1"))
	assert.True(t, l.Allow("1.1.1.1"))
	assert.False(t, l.Allow("1.1.1.1"), "burst exhausted")
	assert.True(t, l.Allow("2.2.2.2"), "keys are independent")

	now = now.Add(time.Second)
	assert.True(t, l.Allow("1.1.1.1"), "one token per second refills")

	now = now.Add(time.Hour)
	l.Allow("3.3.3.3")
	l.mu.Lock()
	assert.Len(t, l.visitors, 1, "idle buckets are swept")
	l.mu.Unlock()
}

func TestRateLimitHandler(t *testing.T) {
	app := fiber.New()
	app.Post("/promo", RateLimit(60, 1), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/promo", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(fiber.MethodPost, "/promo", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get(fiber.HeaderRetryAfter))
}
