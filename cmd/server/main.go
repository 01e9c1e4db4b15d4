package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/storyreel/studio/internal/client"
	"github.com/storyreel/studio/internal/config"
	"github.com/storyreel/studio/internal/dashboard"
	"github.com/storyreel/studio/internal/handler"
	"github.com/storyreel/studio/internal/logging"
	"github.com/storyreel/studio/internal/middleware"
	"github.com/storyreel/studio/internal/poller"
	"github.com/storyreel/studio/internal/service"
	"github.com/storyreel/studio/internal/worker"
	ws "github.com/storyreel/studio/internal/websocket"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log, err := logging.New(logging.Options{Level: cfg.Server.LogLevel, Format: cfg.Server.LogFormat})
	if err != nil {
		slog.Error("failed to build logger", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Warn("redis not available", "addr", cfg.Redis.Addr, "error", err)
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()

	validate := validator.New()

	// WebSocket hub
	hub := ws.NewHub(logging.Component(log, "hub"))
	go hub.Run(ctx)

	// Services
	store := service.NewRedisJobStore(redisClient, cfg.Pipeline.RecordTTL)
	generations := service.NewGenerationService(store, service.NewAsynqQueue(asynqClient), logging.Component(log, "generations"))

	var (
		objects  service.ObjectURLs = client.PublicURLs{BaseURL: cfg.R2.PublicURL}
		uploader worker.Uploader
	)
	if cfg.R2.Enabled() {
		r2, err := client.NewR2Client(ctx, cfg.R2)
		if err != nil {
			log.Error("failed to create R2 client", "error", err)
			os.Exit(1)
		}
		objects, uploader = r2, r2
	}
	artifacts := service.NewArtifactService(generations, objects, cfg.R2.PresignExpiry)

	// Workspaces poll the remote API when one is configured, otherwise the
	// local store the worker writes to.
	var fetcher poller.Fetcher = generations
	if cfg.Pipeline.StatusURL != "" {
		fetcher = client.NewGenerationClient(cfg.Pipeline.StatusURL, cfg.Pipeline.APIToken, logging.Component(log, "pipeline_client"))
		log.Info("polling remote pipeline", "url", cfg.Pipeline.StatusURL)
	}
	workspaces := dashboard.NewManager(fetcher, generations, hub,
		dashboard.WithPollerConfig(cfg.Poller.EngineConfig()),
		dashboard.WithLogger(logging.Component(log, "dashboard")),
	)
	defer workspaces.Close()

	// Worker
	workerSrv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Pipeline.Concurrency,
		Queues: map[string]int{
			service.QueuePipeline: 1,
		},
		Logger: newAsynqLogger(logging.Component(log, "asynq")),
	})
	pipelineWorker := worker.NewPipelineWorker(generations, hub, uploader, cfg.Pipeline.StepDelay, logging.Component(log, "worker"))
	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypePipeline, pipelineWorker.ProcessTask)
	if err := workerSrv.Start(mux); err != nil {
		log.Warn("asynq worker not started", "error", err)
	}
	defer workerSrv.Shutdown()

	// HTTP
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    1 * 1024 * 1024,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	handler.Routes{
		Auth:        middleware.NewAuthMiddleware(cfg.Auth.JWTSecret),
		Gateway:     cfg.Auth.Mode == "gateway",
		RateLimiter: middleware.NewRateLimiter(redisClient, logging.Component(log, "ratelimit")),
		Limits: handler.Limits{
			StartPerHour: cfg.RateLimit.StartPerHour,
			RetryPerHour: cfg.RateLimit.RetryPerHour,
		},
		Generations: handler.NewGenerationHandler(generations, artifacts, workspaces, validate, logging.Component(log, "http")),
		Workspace:   handler.NewWorkspaceHandler(workspaces, generations, validate),
		Stream:      handler.NewStreamHandler(hub, workspaces, generations),
	}.Register(app)

	go func() {
		<-ctx.Done()
		log.Info("shutting down server")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error("server shutdown error", "error", err)
		}
	}()

	addr := ":" + cfg.Server.Port
	log.Info("server starting", "addr", addr, "env", cfg.Server.Env)
	if err := app.Listen(addr); err != nil {
		log.Error("server error", "error", err)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
