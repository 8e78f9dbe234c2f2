package security

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testResponse(t *testing.T, cfg HeadersConfig) *httptest.ResponseRecorder {
	t.Helper()

	app := fiber.New()
	app.Use(HeadersMiddleware(cfg))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	rec.Code = resp.StatusCode
	for key, values := range resp.Header {
		for _, v := range values {
			rec.Header().Add(key, v)
		}
	}
	return rec
}

func TestSecurityHeadersSet(t *testing.T) {
	rec := testResponse(t, HeadersConfig{})

	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("Strict-Transport-Security"))
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "frame-ancestors 'none'")
}

func TestVoiceWSURLAllowedInConnectSrc(t *testing.T) {
	rec := testResponse(t, HeadersConfig{VoiceWSURL: "wss://voice.example.com"})

	csp := rec.Header().Get("Content-Security-Policy")
	assert.Contains(t, csp, "connect-src 'self' wss://voice.example.com;")
}

func TestDevelopmentSkipsHSTS(t *testing.T) {
	rec := testResponse(t, HeadersConfig{IsDevelopment: true})

	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))
}
