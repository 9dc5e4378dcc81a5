package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/midistudio/api/internal/client"
	"github.com/midistudio/api/internal/config"
	"github.com/midistudio/api/internal/handler"
	"github.com/midistudio/api/internal/middleware"
	"github.com/midistudio/api/internal/service"
	"github.com/midistudio/api/internal/status"
	ws "github.com/midistudio/api/internal/websocket"
	"github.com/midistudio/api/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Test Redis connection
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	// Initialize Asynq client
	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()

	// Initialize validator
	validate := validator.New()

	// External clients
	composerClient := client.NewComposerClient(&cfg.Composer)
	melodyClient := client.NewMelodyClient(&cfg.Melody)
	renderClient := client.NewRenderClient(&cfg.Render)

	var storageClient client.StorageClient
	r2Client, err := client.NewR2Client(&cfg.R2)
	if err != nil {
		log.Printf("Warning: R2 not configured: %v", err)
	} else {
		storageClient = r2Client
	}

	// Status store and WebSocket hub
	statusStore := status.NewRedisStore(redisClient)
	hub := ws.NewHub()
	go hub.Run()
	go runStatusBridge(ctx, redisClient, hub)

	// Services
	generationService := service.NewGenerationService(statusStore, asynqClient)

	// Handlers
	generateHandler := handler.NewGenerateHandler(generationService, validate)

	// Middleware
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"composer": composerClient.IsConfigured(),
				"melody":   melodyClient.IsConfigured(),
				"render":   renderClient.IsConfigured(),
				"r2":       storageClient != nil,
				"redis":    redisClient.Ping(c.Context()).Err() == nil,
			},
		})
	})

	// API routes
	api := app.Group("/api")
	api.Post("/generate", rateLimiter.GenerateLimit(cfg.RateLimit.GeneratePerHour), generateHandler.Start)
	api.Get("/generate/status/:userId", generateHandler.Status)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/status/:userId", websocket.New(func(c *websocket.Conn) {
		userID := c.Params("userId")
		hub.HandleConnection(c, userID)
	}))

	// Start Asynq worker server and retention scheduler
	go startWorkerServer(cfg, redisOpt, statusStore, storageClient, composerClient, melodyClient, renderClient)
	go startScheduler(cfg, redisOpt)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func startWorkerServer(
	cfg *config.Config,
	redisOpt asynq.RedisClientOpt,
	statusStore status.Store,
	storageClient client.StorageClient,
	composerClient *client.ComposerClient,
	melodyClient *client.MelodyClient,
	renderClient *client.RenderClient,
) {
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 10,
		Queues: map[string]int{
			service.QueueGenerate:    8,
			service.QueueMaintenance: 2,
		},
	})

	melodyTimeout := time.Duration(cfg.Melody.Timeout) * time.Second
	renderTimeout := time.Duration(cfg.Render.Timeout) * time.Second
	artifactTTL := time.Duration(cfg.Retention.TTLHours) * time.Hour

	pipelineWorker := worker.NewPipelineWorker(
		statusStore, storageClient, composerClient, melodyClient, renderClient,
		melodyTimeout, renderTimeout, artifactTTL,
	)
	retentionWorker := worker.NewRetentionWorker(storageClient)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeGenerate, pipelineWorker.ProcessTask)
	mux.HandleFunc(service.TaskTypeSweep, retentionWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
		log.Printf("Asynq worker error: %v", err)
	}
}

// startScheduler registers the periodic retention sweep.
func startScheduler(cfg *config.Config, redisOpt asynq.RedisClientOpt) {
	scheduler := asynq.NewScheduler(redisOpt, nil)

	_, err := scheduler.Register(
		cfg.Retention.SweepSchedule,
		asynq.NewTask(service.TaskTypeSweep, nil),
		asynq.Queue(service.QueueMaintenance),
	)
	if err != nil {
		log.Printf("Failed to register sweep schedule: %v", err)
		return
	}

	if err := scheduler.Run(); err != nil {
		log.Printf("Asynq scheduler error: %v", err)
	}
}

// runStatusBridge forwards every status-slot write from Redis pub/sub to
// the WebSocket hub.
func runStatusBridge(ctx context.Context, redisClient *redis.Client, hub *ws.Hub) {
	sub := redisClient.PSubscribe(ctx, status.ChannelPattern)
	defer sub.Close()

	for msg := range sub.Channel() {
		userID := status.UserFromChannel(msg.Channel)
		if userID == "" {
			continue
		}
		hub.ForwardStatus(userID, []byte(msg.Payload))
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
