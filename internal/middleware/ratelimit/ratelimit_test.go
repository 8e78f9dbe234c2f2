package ratelimit

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T, cfg Config) *fiber.App {
	t.Helper()

	rl := New(cfg)
	t.Cleanup(rl.Stop)

	app := fiber.New()
	app.Use(rl.Middleware())
	app.Get("/status", func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Post("/answer", func(c *fiber.Ctx) error { return c.SendString("ok") })
	return app
}

func TestWriteBudgetTighterThanRead(t *testing.T) {
	app := newTestApp(t, Config{
		ReadRequestsPerMinute:  10,
		WriteRequestsPerMinute: 2,
		Window:                 time.Minute,
	})

	for i := 0; i < 2; i++ {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/answer", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	}

	resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/answer", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)

	// The read budget is tracked separately and still has tokens.
	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/status", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestBucketRefills(t *testing.T) {
	rl := New(Config{
		ReadRequestsPerMinute:  60,
		WriteRequestsPerMinute: 60,
		Window:                 time.Second,
	})
	t.Cleanup(rl.Stop)

	for i := 0; i < 60; i++ {
		require.True(t, rl.allow("ip|read", 60))
	}
	assert.False(t, rl.allow("ip|read", 60))

	time.Sleep(40 * time.Millisecond)
	assert.True(t, rl.allow("ip|read", 60))
}

func TestDefaults(t *testing.T) {
	rl := New(Config{})
	t.Cleanup(rl.Stop)

	assert.Equal(t, 120, rl.readMax)
	assert.Equal(t, 30, rl.writeMax)
}
