package security

import (
	"github.com/gofiber/fiber/v2"
)

type HeadersConfig struct {
	// VoiceWSURL is allowed in connect-src so the browser can open the
	// media websocket returned by the voice session endpoint.
	VoiceWSURL    string
	IsDevelopment bool
}

func HeadersMiddleware(cfg HeadersConfig) fiber.Handler {
	csp := "default-src 'self'; " +
		"script-src 'self'; " +
		"style-src 'self' 'unsafe-inline'; " +
		"img-src 'self' data:; " +
		"connect-src 'self'" + connectSrcExtra(cfg.VoiceWSURL) + "; " +
		"media-src 'self' blob:; " +
		"frame-ancestors 'none'; " +
		"base-uri 'self'; " +
		"form-action 'self'"

	return func(c *fiber.Ctx) error {
		c.Set("X-Frame-Options", "DENY")
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")

		if !cfg.IsDevelopment {
			c.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Set("Content-Security-Policy", csp)

		return c.Next()
	}
}

func connectSrcExtra(voiceWSURL string) string {
	if voiceWSURL == "" {
		return ""
	}
	return " " + voiceWSURL
}
