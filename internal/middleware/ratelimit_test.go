package middleware

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/storyreel/studio/internal/logging"
)

func newLimitedApp(t *testing.T, rl *RateLimiter, max int) (*fiber.App, string) {
	t.Helper()
	auth := NewAuthMiddleware("secret")
	token, err := auth.GenerateToken("user-1", "")
	require.NoError(t, err)

	app := fiber.New()
	app.Post("/start", auth.Authenticate(), rl.StartLimit(max), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusAccepted)
	})
	return app, token
}

func post(t *testing.T, app *fiber.App, token string) int {
	t.Helper()
	req := httptest.NewRequest("POST", "/start", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req, 5000)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestRateLimiterFailsOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	app, token := newLimitedApp(t, NewRateLimiter(client, logging.Discard()), 1)
	for i := 0; i < 3; i++ {
		assert.Equal(t, fiber.StatusAccepted, post(t, app, token))
	}
}

func TestRateLimiterRejectsOverLimit(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = client.Close() })

	app, token := newLimitedApp(t, NewRateLimiter(client, logging.Discard()), 2)
	assert.Equal(t, fiber.StatusAccepted, post(t, app, token))
	assert.Equal(t, fiber.StatusAccepted, post(t, app, token))
	assert.Equal(t, fiber.StatusTooManyRequests, post(t, app, token))

	ttl, err := client.TTL(ctx, "ratelimit:generation_start:user-1").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}
