package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/mysteryisfun/Voice-platform/internal/api/handlers"
	"github.com/mysteryisfun/Voice-platform/internal/builder"
	"github.com/mysteryisfun/Voice-platform/internal/cache/redis"
	"github.com/mysteryisfun/Voice-platform/internal/document"
	"github.com/mysteryisfun/Voice-platform/internal/ingestion"
	"github.com/mysteryisfun/Voice-platform/internal/interview"
	"github.com/mysteryisfun/Voice-platform/internal/knowledge"
	"github.com/mysteryisfun/Voice-platform/internal/llm"
	"github.com/mysteryisfun/Voice-platform/internal/metrics"
	"github.com/mysteryisfun/Voice-platform/internal/middleware/ratelimit"
	"github.com/mysteryisfun/Voice-platform/internal/middleware/security"
	"github.com/mysteryisfun/Voice-platform/internal/middleware/validation"
	"github.com/mysteryisfun/Voice-platform/internal/scraper/tavily"
	"github.com/mysteryisfun/Voice-platform/internal/storage/sqlite"
	"github.com/mysteryisfun/Voice-platform/internal/vector/milvus"
	"github.com/mysteryisfun/Voice-platform/internal/voice"
	"github.com/mysteryisfun/Voice-platform/pkg/config"
	appLogger "github.com/mysteryisfun/Voice-platform/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting Voice Platform API Server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	milvusClient, err := milvus.NewClient(
		cfg.Vector.Endpoint,
		cfg.Vector.CollectionName,
		cfg.Vector.VectorDim,
	)
	if err != nil {
		appLogger.Fatal("Failed to create Milvus client", zap.Error(err))
	}
	defer milvusClient.Close()

	err = milvusClient.EnsureCollection(context.Background())
	if err != nil {
		appLogger.Fatal("Failed to ensure collection", zap.Error(err))
	}

	var cache knowledge.Cache
	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(
			cfg.Redis.Host,
			cfg.Redis.Port,
			cfg.Redis.Password,
			cfg.Redis.DB,
		)
		if err != nil {
			appLogger.Fatal("Failed to create Redis client", zap.Error(err))
		}
		defer redisClient.Close()
		cache = redisClient
	} else {
		appLogger.Warn("Redis disabled, running without caches")
	}

	llmClient := llm.NewClient(
		cfg.LLM.APIKey,
		cfg.LLM.Model,
		cfg.LLM.EmbeddingModel,
		cfg.LLM.Temperature,
		cfg.LLM.MaxTokens,
	)

	scraperClient := tavily.NewClient(
		cfg.Scraper.TavilyAPIKey,
		cfg.Scraper.MaxDepth,
		cfg.Scraper.MaxBreadth,
		cfg.Scraper.TimeoutSec,
	)

	extractor := document.NewExtractor()

	store := knowledge.NewStore(milvusClient, llmClient, cache, sqliteClient)

	chunker := ingestion.NewChunker(cfg.Ingestion.ChunkSize, cfg.Ingestion.ChunkOverlap)
	coordinator := ingestion.NewCoordinator(
		sqliteClient,
		scraperClient,
		extractor,
		store,
		chunker,
		time.Duration(cfg.Ingestion.TaskTimeout)*time.Second,
	)

	interviewEngine := interview.NewEngine(sqliteClient, llmClient)
	agentBuilder := builder.NewBuilder(sqliteClient, llmClient)
	voiceFacade := voice.NewFacade(
		sqliteClient,
		cfg.LiveKit.APIKey,
		cfg.LiveKit.APISecret,
		cfg.LiveKit.WSURL,
		time.Duration(cfg.LiveKit.TokenTTL)*time.Second,
	)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		VoiceWSURL: cfg.LiveKit.WSURL,
	}))

	limiter := ratelimit.New(ratelimit.Config{Logger: appLogger.GetLogger()})
	app.Use(limiter.Middleware())
	app.Use(validation.Middleware(validation.Config{Logger: appLogger.GetLogger()}))

	onboardingHandler := handlers.NewOnboardingHandler(interviewEngine, agentBuilder, coordinator.Tracker(), sqliteClient)
	dataHandler := handlers.NewDataHandler(coordinator, store)
	agentsHandler := handlers.NewAgentsHandler(sqliteClient, store)
	voiceHandler := handlers.NewVoiceHandler(voiceFacade)
	statusStream := handlers.NewStatusStreamHandler(coordinator.Tracker())

	api := app.Group("/api/v1")

	api.Post("/onboarding/start", onboardingHandler.HandleStart)
	api.Post("/onboarding/answer", onboardingHandler.HandleAnswer)
	api.Get("/onboarding/status/:sessionID", onboardingHandler.HandleStatus)
	api.Post("/onboarding/complete", onboardingHandler.HandleComplete)

	api.Use("/onboarding/status/:sessionID/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		sessionID, err := strconv.ParseInt(c.Params("sessionID"), 10, 64)
		if err != nil {
			return fiber.ErrBadRequest
		}
		c.Locals("sessionID", sessionID)
		return c.Next()
	})
	api.Get("/onboarding/status/:sessionID/ws", websocket.New(statusStream.HandleConnection))

	api.Post("/data/process-data/:sessionID", dataHandler.HandleProcessData)
	api.Get("/data/knowledge/:agentID", dataHandler.HandleKnowledgeQuery)
	api.Get("/data/knowledge/:agentID/stats", dataHandler.HandleKnowledgeStats)

	api.Get("/agents", agentsHandler.HandleList)
	api.Get("/agents/:id", agentsHandler.HandleGet)
	api.Put("/agents/:id/status", agentsHandler.HandleUpdateStatus)
	api.Delete("/agents/:id", agentsHandler.HandleDelete)

	api.Post("/voice/:agentID/session", voiceHandler.HandleCreateSession)
	api.Get("/voice/:agentID/sessions", voiceHandler.HandleListSessions)

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

	app.Get("/metrics", metrics.MetricsHandler())

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}
