package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"torgbot/internal/config"
	"torgbot/internal/database"
	"torgbot/internal/handlers"
	"torgbot/internal/jobs"
	"torgbot/internal/logging"
	"torgbot/internal/middleware"
	"torgbot/internal/services"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Initialize structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting torgbot server...")

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	cfg := config.Load()
	log.Printf("📋 Configuration loaded (Port: %s, DB: %s)", cfg.Port, cfg.DatabaseURL)

	if cfg.BotToken == "" {
		log.Fatal("❌ TELEGRAM_BOT_TOKEN environment variable is required")
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Initialize(); err != nil {
		log.Fatalf("❌ Failed to initialize database: %v", err)
	}

	// Redis is optional, the rate limiter falls back to the database without it
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Printf("⚠️  Invalid REDIS_URL, continuing without Redis: %v", err)
		} else {
			opts.DialTimeout = 5 * time.Second
			opts.ReadTimeout = 3 * time.Second
			opts.WriteTimeout = 3 * time.Second

			client := redis.NewClient(opts)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := client.Ping(ctx).Err(); err != nil {
				log.Printf("⚠️  Failed to connect to Redis, continuing without it: %v", err)
			} else {
				redisClient = client
				defer redisClient.Close()
				log.Println("✅ Redis connected")
			}
			cancel()
		}
	}

	// Metrics
	services.InitMetrics()

	// Services
	completionService := services.NewCompletionService(cfg.APIURL, cfg.Model, cfg.APIKeys)
	classifierService := services.NewClassifierService(completionService)
	userService := services.NewUserService(db)

	faqService := services.NewFAQService(db, cfg.FAQFile)
	if err := faqService.Seed(); err != nil {
		log.Fatalf("❌ Failed to seed FAQ cache: %v", err)
	}
	if err := faqService.Watch(); err != nil {
		log.Printf("⚠️  FAQ hot reload disabled: %v", err)
	}
	defer faqService.Close()

	rateLimitService := services.NewRateLimitService(db, redisClient, cfg.RateLimitPerMinute, cfg.RateLimitWindow)

	answerService := services.NewAnswerService(
		classifierService, faqService, completionService, userService,
	)

	telegramService := services.NewTelegramService(cfg.BotToken)
	botUsername, err := telegramService.GetMe()
	if err != nil {
		log.Fatalf("❌ Failed to validate bot token: %v", err)
	}
	log.Printf("🤖 Bot authorized as @%s", botUsername)

	// Follow-up deliveries go through a paced sender so a backlog cannot trip
	// Telegram's bot-wide flood limit
	followupService := services.NewFollowupService(
		db,
		jobs.NewPacedSender(telegramService, 20),
		cfg.IsAdmin,
		cfg.FollowupShortDelay,
		cfg.FollowupLongDelay,
		time.Duration(cfg.FollowupCooldownDays)*24*time.Hour,
		cfg.SpecialistTelegram,
		cfg.TrainingTelegram,
	)

	// Handlers
	botHandler := handlers.NewBotHandler(cfg, telegramService, answerService, userService, followupService, rateLimitService)
	healthHandler := handlers.NewHealthHandler(db)
	statsHandler := handlers.NewStatsHandler(cfg, userService)

	// Background jobs
	dispatcher := jobs.NewFollowupDispatcher(followupService, cfg.DispatchInterval, cfg.DispatchRecoveryInterval)
	dispatcher.Start()

	cleanupScheduler, err := jobs.NewCleanupScheduler(userService, cfg.CleanupCron, cfg.RetentionDays)
	if err != nil {
		log.Fatalf("❌ Failed to create cleanup scheduler: %v", err)
	}
	if err := cleanupScheduler.Start(); err != nil {
		log.Fatalf("❌ Failed to start cleanup scheduler: %v", err)
	}

	// Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "torgbot v1.0",
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
		BodyLimit:    1 * 1024 * 1024, // Telegram updates are small
	})

	app.Use(recover.New())
	app.Use(logger.New())

	prometheus := fiberprometheus.New("torgbot")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	rateLimitConfig := middleware.LoadRateLimitConfig()
	log.Printf("🛡️  [RATE-LIMIT] Loaded config: Webhook=%d/min, Stats=%d/min",
		rateLimitConfig.WebhookMax, rateLimitConfig.StatsMax)

	// Routes
	app.Get("/health", healthHandler.Handle)
	app.Get("/api/stats", middleware.StatsRateLimiter(rateLimitConfig), statsHandler.Handle)
	app.Post("/api/telegram/webhook/:secret", middleware.WebhookRateLimiter(rateLimitConfig), botHandler.Webhook)

	// Delivery mode: webhook when a public base URL is configured, long
	// polling otherwise
	if cfg.WebhookBaseURL != "" && cfg.WebhookSecret != "" {
		webhookURL := fmt.Sprintf("%s/api/telegram/webhook/%s", cfg.WebhookBaseURL, cfg.WebhookSecret)
		if err := telegramService.SetWebhook(webhookURL); err != nil {
			log.Fatalf("❌ Failed to register webhook: %v", err)
		}
	} else {
		log.Println("📡 No public webhook URL configured, using long polling")
		telegramService.SetUpdateHandler(botHandler.ProcessUpdate)
		telegramService.StartPolling()
	}

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("\n🛑 Shutting down server...")

		telegramService.Stop()
		dispatcher.Stop()
		if err := cleanupScheduler.Stop(); err != nil {
			log.Printf("⚠️  Error stopping cleanup scheduler: %v", err)
		}

		if err := app.Shutdown(); err != nil {
			log.Printf("⚠️  Error shutting down server: %v", err)
		}
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}
