package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/farmora/backend/internal/api/handlers"
	"github.com/farmora/backend/internal/assembler"
	"github.com/farmora/backend/internal/cache"
	"github.com/farmora/backend/internal/cache/redis"
	"github.com/farmora/backend/internal/domain"
	"github.com/farmora/backend/internal/intent"
	"github.com/farmora/backend/internal/llm"
	"github.com/farmora/backend/internal/metrics"
	"github.com/farmora/backend/internal/middleware/ratelimit"
	"github.com/farmora/backend/internal/middleware/security"
	"github.com/farmora/backend/internal/middleware/validation"
	"github.com/farmora/backend/internal/moderator"
	"github.com/farmora/backend/internal/query"
	"github.com/farmora/backend/internal/storage/sqlite"
	"github.com/farmora/backend/internal/synthesis"
	"github.com/farmora/backend/internal/tools"
	"github.com/farmora/backend/internal/tools/geo"
	"github.com/farmora/backend/internal/tools/market"
	"github.com/farmora/backend/internal/tools/weather"
	"github.com/farmora/backend/internal/translate"
	"github.com/farmora/backend/pkg/config"
	appLogger "github.com/farmora/backend/pkg/logger"
	"github.com/farmora/backend/pkg/telemetry"
)

const (
	version          = "1.0.0"
	maxQuestionBytes = 8 * 1024
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

	appLogger.Info("Starting Farmora API Server", zap.String("version", version))

	metrics.Init()

	tel, err := telemetry.Setup(context.Background(), cfg.Tracing, version)
	if err != nil {
		appLogger.Fatal("Failed to set up tracing", zap.Error(err))
	}

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	readiness := map[string]handlers.Pinger{"sqlite": sqliteClient}

	// The shared store is optional; without it each replica caches on its own.
	var (
		store       cache.Store
		redisClient *redis.Client
	)
	if cfg.Redis.Enabled {
		redisClient, err = redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			appLogger.Warn("Redis unavailable, using in-process cache only", zap.Error(err))
		} else {
			defer redisClient.Close()
			store = redisClient
			readiness["redis"] = redisClient
		}
	}

	clock := clockwork.NewRealClock()
	pc := cfg.Pipeline
	gazetteer := geo.Default()

	toolCache := tools.NewResultCache(clock, store, appLogger.GetLogger())
	cached := func(a tools.Adapter, fallback time.Duration) tools.Adapter {
		return tools.NewCached(a, toolCache, pc.CacheTTL(string(a.Kind()), fallback))
	}

	registry := tools.NewRegistry(
		cached(weather.NewAdapter(
			weather.NewOpenMeteoClient(cfg.Weather.BaseURL, pc.PerToolTimeout()),
			gazetteer, pc.PerToolTimeout(),
		), time.Hour),
		cached(market.NewAdapter(
			market.NewAgmarknetSource(cfg.Market.BaseURL, pc.PerToolTimeout()),
			sqliteClient, gazetteer, pc.PerToolTimeout(),
			market.Options{LookbackDays: cfg.Market.LookbackDays, Clock: clock},
		), 24*time.Hour),
		cached(geo.NewAdapter(
			geo.NewNominatimClient(cfg.Geocoding.BaseURL, cfg.Geocoding.UserAgent, pc.PerToolTimeout()),
			gazetteer, pc.PerToolTimeout(),
		), 7*24*time.Hour),
	)

	llmClient := llm.NewClient(llm.Config{
		Name:        cfg.LLM.Provider,
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     time.Duration(cfg.LLM.TimeoutSec) * time.Second,
	})

	var backends []translate.Backend
	if cfg.Translation.GroqAPIKey != "" {
		backends = append(backends, translate.NewGroqBackend(llm.NewClient(llm.Config{
			Name:        "groq-translate",
			BaseURL:     cfg.Translation.GroqBaseURL,
			APIKey:      cfg.Translation.GroqAPIKey,
			Model:       cfg.Translation.GroqModel,
			Temperature: 0,
			MaxTokens:   1024,
			Timeout:     cfg.Translation.Timeout(),
			MaxAttempts: 1,
		})))
	}
	if cfg.Translation.HuggingFaceToken != "" {
		backends = append(backends, translate.NewHuggingFaceBackend(
			cfg.Translation.HuggingFaceURL, cfg.Translation.HuggingFaceToken, cfg.Translation.Timeout()))
	}
	if len(backends) == 0 {
		appLogger.Warn("No translation backend configured, non-English questions pass through untranslated")
	}

	normalizer := translate.NewNormalizer(translate.Config{
		WorkingLanguage: pc.WorkingLanguage,
		Timeout:         cfg.Translation.Timeout(),
		CacheTTL:        pc.CacheTTL(string(domain.ToolTranslation), 24*time.Hour),
		ProtectedTerms:  append(intent.CropTerms(), gazetteer.Names()...),
		Clock:           clock,
		Store:           store,
	}, backends...)

	classifier := intent.NewClassifier(intent.Config{
		ConfidenceThreshold: pc.ClassifierConfidenceThreshold,
		SecondaryThreshold:  pc.SecondaryIntentThreshold,
		MaxLength:           pc.MaxQuestionLength,
		MultiIntent:         intent.MultiIntentMode(strings.ToLower(pc.MultiIntent)),
	}, gazetteer)

	asm := assembler.New(registry, assembler.Config{
		TokenBudget:        pc.TokenBudget,
		DefaultCommodities: cfg.Market.DefaultCommodities,
		Clock:              clock,
	})

	orchestrator := query.NewOrchestrator(
		normalizer,
		classifier,
		asm,
		moderator.New(moderator.KeywordOverlap{}, pc.RelevanceThreshold),
		synthesis.NewEngine(llmClient, clock, cfg.LLM.MaxTokens),
		sqliteClient,
		query.Config{
			Deadline:         pc.PipelineDeadline(),
			PerToolTimeout:   pc.PerToolTimeout(),
			SynthesisReserve: pc.SynthesisReserve(),
			PriorContextTTL:  pc.PriorContextTTL(),
			Clock:            clock,
		},
	)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: cfg.Server.RequestsPerMinute,
		Logger:               appLogger.GetLogger(),
	})
	defer limiter.Stop()

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.Server.AllowedOrigins, ", "),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-User-ID",
		AllowMethods: "GET, POST, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		IsDevelopment:  cfg.Server.Development,
	}))

	queryHandler := handlers.NewQueryHandler(orchestrator, maxQuestionBytes)
	wsHandler := handlers.NewWebSocketHandler(orchestrator, limiter, maxQuestionBytes)
	healthHandler := handlers.NewHealthHandler(version, readiness)

	var shared handlers.SharedInvalidator
	if redisClient != nil {
		shared = redisClient
	}
	adminHandler := handlers.NewAdminHandler(toolCache, shared, orchestrator, sqliteClient)

	app.Get("/metrics", metrics.MetricsHandler())

	api := app.Group("/api/v1")

	api.Get("/health", healthHandler.HandleHealth)
	api.Get("/ready", healthHandler.HandleReady)

	api.Use("/ws", limiter.Middleware(), wsHandler.Upgrade)
	api.Get("/ws", websocket.New(wsHandler.HandleConnection))

	limited := api.Group("", limiter.Middleware(), validation.Middleware(validation.Config{
		MaxQuestionBytes: maxQuestionBytes,
		Logger:           appLogger.GetLogger(),
	}))
	limited.Post("/ask", queryHandler.HandleAsk)

	if cfg.Admin.Token == "" {
		appLogger.Warn("admin.token is not set, cache and trace endpoints reject every request")
	}
	adminAuth := handlers.AdminAuth(cfg.Admin.Token)
	limited.Post("/cache/invalidate", adminAuth, adminHandler.HandleInvalidate)
	limited.Get("/traces", adminAuth, adminHandler.HandleRecentTraces)

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
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		appLogger.Error("Server shutdown failed", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tel.Shutdown(ctx); err != nil {
		appLogger.Error("Failed to flush traces", zap.Error(err))
	}

	appLogger.Info("Server stopped")
}
