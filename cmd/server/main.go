package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	fiberSwagger "github.com/gofiber/swagger"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/makeasinger/samplepack/docs"
	"github.com/makeasinger/samplepack/internal/client"
	"github.com/makeasinger/samplepack/internal/config"
	"github.com/makeasinger/samplepack/internal/handler"
	"github.com/makeasinger/samplepack/internal/logging"
	"github.com/makeasinger/samplepack/internal/service"
	ws "github.com/makeasinger/samplepack/internal/websocket"
	"github.com/makeasinger/samplepack/internal/worker"
	"github.com/makeasinger/samplepack/pkg/response"
)

const shutdownTimeout = 10 * time.Second

// dispatcher is a JobDispatcher that can be drained on shutdown
type dispatcher interface {
	service.JobDispatcher
	Shutdown(ctx context.Context) error
}

// @title          Sample Pack API
// @version        1.0
// @description    Turns an uploaded image into a generated pack of audio samples.
// @host           localhost:8000
// @BasePath       /
// @schemes        http https
func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.Server.Env, cfg.Server.LogLevel)

	// Configure Swagger host/scheme based on environment
	if cfg.Server.ApiDomain != "" {
		docs.SwaggerInfo.Host = cfg.Server.ApiDomain
		docs.SwaggerInfo.Schemes = []string{"https"}
	} else {
		docs.SwaggerInfo.Host = "localhost:" + cfg.Server.Port
		docs.SwaggerInfo.Schemes = []string{"http"}
	}

	// Initialize validator
	validate := validator.New()

	// Initialize external clients (optional - services fall back to mocks)
	var chatClient *client.ChatClient
	if cfg.Vision.Enabled {
		chatClient = client.NewChatClient(&cfg.Vision)
		log.Info().Str("vision_model", cfg.Vision.VisionModel).Str("text_model", cfg.Vision.TextModel).Msg("Vision model enabled")
	} else {
		log.Info().Msg("Vision model disabled, using mock descriptions")
	}

	var synthClient client.AudioSynthesizer
	if cfg.Synth.ServiceURL != "" {
		sc := client.NewSynthClient(&cfg.Synth)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := sc.HealthCheck(ctx); err != nil {
			log.Warn().Err(err).Msg("Synthesis service not available")
		}
		cancel()
		synthClient = sc
	} else {
		log.Info().Msg("Synthesis service not configured, using mock tones")
	}

	storage, err := newStorage(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize archive storage")
	}

	// Initialize services
	store := service.NewJobStore()
	staging := service.NewStaging(cfg.Pipeline.WorkDir)
	descriptorService := service.NewDescriptorService(chatClient)
	synthesisService := service.NewSynthesisService(synthClient, &cfg.Synth)
	packageService := service.NewPackageService(storage, staging)
	sampleWorker := worker.NewSampleWorker(store, descriptorService, synthesisService, packageService, staging, log)

	var redisClient *redis.Client
	var jobDispatcher dispatcher
	switch cfg.Queue.Driver {
	case config.QueueDriverAsynq:
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := redisClient.Ping(ctx).Err()
		cancel()
		if err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis not available for asynq queue")
		}

		asynqDispatcher := worker.NewAsynqDispatcher(asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, cfg.Queue.Concurrency, strings.ToLower(cfg.Server.LogLevel), sampleWorker, log)
		if err := asynqDispatcher.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start asynq worker server")
		}
		jobDispatcher = asynqDispatcher
	default:
		jobDispatcher = worker.NewLocalDispatcher(sampleWorker, cfg.Pipeline.MaxConcurrent, log)
	}
	log.Info().Str("queue", cfg.Queue.Driver).Str("storage", cfg.Storage.Driver).Int("total_samples", cfg.Pipeline.TotalSamples).Msg("Pipeline configured")

	sampleService := service.NewSampleService(store, jobDispatcher, storage, cfg.Pipeline.TotalSamples)

	// Initialize handlers
	sampleHandler := handler.NewSampleHandler(sampleService, validate)
	hub := ws.NewHub(store, 500*time.Millisecond, log)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: response.ErrorHandler,
		BodyLimit:    cfg.Server.BodyLimitMB * 1024 * 1024,
	})

	// Global middleware
	app.Use(recover.New())
	isDebug := strings.EqualFold(cfg.Server.LogLevel, "debug")
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if isDebug {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${reqHeaders}\n"
		log.Debug().Msg("Debug logging enabled")
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	// Base URL - timestamp
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		services := fiber.Map{
			"vision":  chatClient != nil && chatClient.IsConfigured(),
			"synth":   synthClient != nil,
			"storage": cfg.Storage.Driver,
			"queue":   cfg.Queue.Driver,
		}
		if redisClient != nil {
			services["redis"] = redisClient.Ping(c.Context()).Err() == nil
		}
		return c.JSON(fiber.Map{
			"status":         "ok",
			"jobs":           store.Len(),
			"ws_connections": hub.Connections(),
			"services":       services,
		})
	})

	// Swagger UI
	app.Get("/swagger/*", fiberSwagger.HandlerDefault)

	handler.RegisterRoutes(app, sampleHandler, hub)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info().Msg("Shutting down server...")
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			log.Error().Err(err).Msg("Server shutdown error")
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Info().Str("addr", addr).Msg("Server starting")
	if err := app.Listen(addr); err != nil {
		log.Fatal().Err(err).Msg("Server error")
	}

	drain(jobDispatcher, redisClient, log)
}

// newStorage picks the archive backend for the configured driver
func newStorage(cfg *config.Config) (client.StorageClient, error) {
	switch cfg.Storage.Driver {
	case config.StorageDriverR2:
		return client.NewR2Client(&cfg.R2)
	default:
		return client.NewLocalStorage(cfg.Storage.LocalDir)
	}
}

func drain(d dispatcher, redisClient *redis.Client, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := d.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("Pipelines did not finish before shutdown timeout")
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close Redis client")
		}
	}
	log.Info().Msg("Server stopped")
}
