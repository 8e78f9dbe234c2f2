package ratelimit

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type bucket struct {
	mu         sync.Mutex
	tokens     int
	max        int
	refillRate time.Duration
	lastRefill time.Time
}

// Limiter applies per-IP token buckets with two budgets: writes (answer
// submission, ingestion, finalize, token minting) burn LLM and crawl quota,
// so they get a tighter allowance than reads.
type Limiter struct {
	mu            sync.RWMutex
	buckets       map[string]*bucket
	readMax       int
	writeMax      int
	window        time.Duration
	logger        *zap.Logger
	cleanupTicker *time.Ticker
}

type Config struct {
	ReadRequestsPerMinute  int
	WriteRequestsPerMinute int
	Window                 time.Duration
	Logger                 *zap.Logger
}

func New(cfg Config) *Limiter {
	if cfg.ReadRequestsPerMinute == 0 {
		cfg.ReadRequestsPerMinute = 120
	}
	if cfg.WriteRequestsPerMinute == 0 {
		cfg.WriteRequestsPerMinute = 30
	}
	if cfg.Window == 0 {
		cfg.Window = time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	rl := &Limiter{
		buckets:       make(map[string]*bucket),
		readMax:       cfg.ReadRequestsPerMinute,
		writeMax:      cfg.WriteRequestsPerMinute,
		window:        cfg.Window,
		logger:        cfg.Logger,
		cleanupTicker: time.NewTicker(5 * time.Minute),
	}

	go rl.cleanup()

	return rl
}

func (rl *Limiter) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		class := "read"
		max := rl.readMax
		switch c.Method() {
		case fiber.MethodPost, fiber.MethodPut, fiber.MethodDelete:
			class = "write"
			max = rl.writeMax
		}

		key := c.IP() + "|" + class

		if !rl.allow(key, max) {
			rl.logger.Warn("Rate limit exceeded",
				zap.String("ip", c.IP()),
				zap.String("class", class),
				zap.String("path", c.Path()),
			)
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Rate limit exceeded. Please try again later.",
			})
		}

		return c.Next()
	}
}

func (rl *Limiter) allow(key string, max int) bool {
	rl.mu.RLock()
	b, exists := rl.buckets[key]
	rl.mu.RUnlock()

	if !exists {
		rl.mu.Lock()
		b, exists = rl.buckets[key]
		if !exists {
			b = &bucket{
				tokens:     max,
				max:        max,
				refillRate: rl.window / time.Duration(max),
				lastRefill: time.Now(),
			}
			rl.buckets[key] = b
		}
		rl.mu.Unlock()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	elapsed := time.Since(b.lastRefill)
	if refill := int(elapsed / b.refillRate); refill > 0 {
		b.tokens += refill
		if b.tokens > b.max {
			b.tokens = b.max
		}
		b.lastRefill = b.lastRefill.Add(time.Duration(refill) * b.refillRate)
	}

	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}

func (rl *Limiter) cleanup() {
	for range rl.cleanupTicker.C {
		rl.mu.Lock()
		for key, b := range rl.buckets {
			b.mu.Lock()
			stale := time.Since(b.lastRefill) > 10*time.Minute
			b.mu.Unlock()
			if stale {
				delete(rl.buckets, key)
			}
		}
		rl.mu.Unlock()
	}
}

func (rl *Limiter) Stop() {
	rl.cleanupTicker.Stop()
}
