package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
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

	"github.com/hireloop/api/internal/audit"
	"github.com/hireloop/api/internal/client"
	"github.com/hireloop/api/internal/config"
	"github.com/hireloop/api/internal/handler"
	"github.com/hireloop/api/internal/middleware"
	"github.com/hireloop/api/internal/model"
	"github.com/hireloop/api/internal/service"
	"github.com/hireloop/api/internal/videogen"
	ws "github.com/hireloop/api/internal/websocket"
	"github.com/hireloop/api/internal/worker"
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

	// Initialize Asynq client
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	// Initialize validator
	validate := validator.New()

	// Initialize WebSocket hub
	hub := ws.NewHub()

	// Initialize R2 client (optional - continues if not configured)
	var r2Client *client.R2Client
	if cfg.R2.AccessKeyID != "" && cfg.R2.SecretAccessKey != "" {
		var err error
		r2Client, err = client.NewR2Client(&cfg.R2)
		if err != nil {
			log.Printf("Warning: R2 client not initialized: %v", err)
		}
	} else {
		log.Println("Info: R2 storage not configured, Sora renders will fail persistence")
	}

	// Build the video renderer and its collaborators
	trafficLog := audit.NewRedisTrafficLogger(redisClient)
	renderer, providers := buildRenderer(cfg, trafficLog, r2Client)

	// Initialize services
	renderService := service.NewRenderService(redisClient, asynqClient)

	// Initialize handlers
	renderHandler := handler.NewRenderHandler(renderService, validate)
	auditHandler := handler.NewAuditHandler(trafficLog)

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT.Secret)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    5 * 1024 * 1024, // 5MB, requests are JSON only
	})

	// Global middleware
	app.Use(recover.New())
	isDebug := strings.EqualFold(cfg.Server.LogLevel, "debug")
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if isDebug {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body} ${reqHeaders}\n"
		log.Println("Debug logging enabled")
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Base URL - timestamp
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"veo":  providers[model.ProviderVeo] != "",
				"sora": providers[model.ProviderSora] != "",
				"r2":   r2Client != nil,
				"auth": cfg.JWT.Secret != "",
			},
		})
	})

	// Locally written Veo output is served straight from disk
	app.Static(cfg.Render.AssetBaseURL, cfg.Render.AssetDir)

	// API routes
	api := app.Group("/api", authMiddleware.Authenticate())

	// Render routes
	render := api.Group("/render")
	render.Post("/start", rateLimiter.RenderLimit(cfg.RateLimit.RenderPerHour), renderHandler.Start)
	render.Get("/plan", rateLimiter.PlanLimit(cfg.RateLimit.PlanPerMin), renderHandler.Plan)
	render.Get("/status/:jobId", rateLimiter.StatusLimit(cfg.RateLimit.StatusPerMin), renderHandler.Status)
	render.Get("/result/:jobId", rateLimiter.StatusLimit(cfg.RateLimit.StatusPerMin), renderHandler.Result)
	render.Post("/cancel/:jobId", renderHandler.Cancel)
	render.Get("/audit/:taskId", rateLimiter.StatusLimit(cfg.RateLimit.StatusPerMin), auditHandler.Trail)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		jobID := c.Params("jobId")
		hub.HandleConnection(c, jobID)
	}))

	// Start Asynq worker server
	go startWorkerServer(cfg, renderService, renderer, hub, providers)

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

// buildRenderer wires provider clients, persistence, probing and audit into a
// renderer. Providers whose configuration is incomplete are skipped with a
// warning; the returned map reports each registered provider's default model.
func buildRenderer(cfg *config.Config, trafficLog *audit.RedisTrafficLogger, r2Client *client.R2Client) (*videogen.Renderer, map[model.Provider]string) {
	var persister videogen.VideoPersister
	if r2Client != nil {
		persister = client.NewVideoStore(r2Client, nil)
	}

	renderer := videogen.NewRenderer(videogen.RendererOptions{
		Persister:    persister,
		Prober:       client.NewFfprobeProber(cfg.Render.FfprobePath),
		Audit:        trafficLog,
		AssetBaseURL: cfg.Render.AssetBaseURL,
		AssetDir:     cfg.Render.AssetDir,
	})

	policy := pollPolicyFromConfig(&cfg.Render)
	providers := make(map[model.Provider]string)

	if cfg.Veo.ProjectID != "" && cfg.Veo.Model != "" {
		var creds videogen.CredentialSource
		if cfg.Veo.AccessToken != "" {
			creds = client.StaticToken(cfg.Veo.AccessToken)
		} else {
			creds = client.NewGoogleCredentials()
		}
		veoClient, err := videogen.NewVeoClient(&videogen.VeoConfig{
			ProjectID:    cfg.Veo.ProjectID,
			Location:     cfg.Veo.Location,
			ModelID:      cfg.Veo.Model,
			BaseURL:      cfg.Veo.BaseURL,
			SampleCount:  cfg.Veo.SampleCount,
			OutputDir:    cfg.Render.AssetDir,
			AssetBaseURL: cfg.Render.AssetBaseURL,
		}, creds, &http.Client{Timeout: 2 * time.Minute})
		if err != nil {
			log.Printf("Warning: Veo client not initialized: %v", err)
		} else {
			// Vertex LRO endpoints throttle aggressive polling, so Veo
			// always runs the adaptive shape.
			renderer.Register(videogen.ClientRegistration{
				Client: veoClient,
				Policy: videogen.PollPolicy{
					Mode:     videogen.PollAdaptive,
					Interval: policy.Interval,
					Deadline: policy.Deadline,
				},
			})
			providers[model.ProviderVeo] = cfg.Veo.Model
		}
	} else {
		log.Println("Info: Veo not configured, provider disabled")
	}

	if cfg.Sora.APIKey != "" {
		soraClient, err := videogen.NewSoraClient(&videogen.SoraConfig{
			APIKey:       cfg.Sora.APIKey,
			BaseURL:      cfg.Sora.BaseURL,
			DefaultModel: cfg.Sora.Model,
		}, &http.Client{Timeout: 2 * time.Minute})
		if err != nil {
			log.Printf("Warning: Sora client not initialized: %v", err)
		} else {
			renderer.Register(videogen.ClientRegistration{
				Client:              soraClient,
				Policy:              policy,
				RequiresPersistence: true,
				ContentHeaders:      soraClient.ContentHeaders(),
			})
			providers[model.ProviderSora] = cfg.Sora.Model
		}
	} else {
		log.Println("Info: Sora not configured, provider disabled")
	}

	return renderer, providers
}

func pollPolicyFromConfig(cfg *config.RenderConfig) videogen.PollPolicy {
	policy := videogen.DefaultFixedPolicy()
	if strings.EqualFold(cfg.PollMode, string(videogen.PollAdaptive)) {
		policy = videogen.DefaultAdaptivePolicy()
	}
	if cfg.PollIntervalSec > 0 {
		policy.Interval = time.Duration(cfg.PollIntervalSec) * time.Second
	}
	if cfg.PollDeadlineSec > 0 {
		policy.Deadline = time.Duration(cfg.PollDeadlineSec) * time.Second
	}
	return policy
}

func startWorkerServer(
	cfg *config.Config,
	renderService *service.RenderService,
	renderer *videogen.Renderer,
	hub *ws.Hub,
	providers map[model.Provider]string,
) {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			// Renders are long-lived polls, keep concurrency modest.
			Concurrency: 4,
			Queues: map[string]int{
				"render": 10,
			},
			LogLevel: asynqLogLevel,
		},
	)

	renderWorker := worker.NewRenderWorker(renderService, renderer, hub, providers)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeRender, renderWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
		log.Printf("Asynq worker error: %v", err)
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
