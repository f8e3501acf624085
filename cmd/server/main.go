package main

import (
	"alcyxob/fitmate/internal/api"
	"alcyxob/fitmate/internal/config"
	"alcyxob/fitmate/internal/realtime"
	"alcyxob/fitmate/internal/repository"
	"alcyxob/fitmate/internal/repository/memory"
	"alcyxob/fitmate/internal/repository/mongo"
	"alcyxob/fitmate/internal/service"
	"alcyxob/fitmate/internal/storage"
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gopkg.in/natefinch/lumberjack.v2"
)

// repositories groups the store implementations selected by database.driver.
type repositories struct {
	users         repository.UserRepository
	plans         repository.PlanRepository
	chat          repository.ChatRepository
	notifications repository.NotificationRepository
}

// @title Fitmate API
// @version 1.0
// @description Social fitness backend: profiles, follows, exercise plans, chat and notifications.
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	// --- Configuration ---
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("FATAL: Could not load config: %v", err)
	}
	setupLogging(cfg.Log)
	log.Println("Starting Fitmate Server...")
	log.Println("Configuration loaded.")

	if cfg.JWT.Secret == "" {
		log.Fatal("FATAL: jwt.secret (JWT_SECRET) must be set")
	}

	// --- Database Connection ---
	var repos repositories
	switch cfg.Database.Driver {
	case "memory":
		log.Println("WARN: Using the in-memory store; data is lost on restart.")
		repos = repositories{
			users:         memory.NewUserRepository(),
			plans:         memory.NewPlanRepository(),
			chat:          memory.NewChatRepository(),
			notifications: memory.NewNotificationRepository(),
		}
	case "mongo":
		dbClient, err := mongo.ConnectDB(cfg.Database.URI)
		if err != nil {
			log.Fatalf("FATAL: Could not connect to MongoDB: %v", err)
		}
		defer func() {
			log.Println("Disconnecting MongoDB...")
			if err := mongo.DisconnectDB(dbClient); err != nil {
				log.Printf("ERROR: Failed to disconnect MongoDB: %v", err)
			}
		}()
		appDB := dbClient.Database(cfg.Database.Name)
		log.Println("Database connection established.")

		// Unique indexes back signup and chat room uniqueness, so they must
		// exist before the first request.
		log.Println("Ensuring database indexes...")
		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Minute)
		mongo.EnsureIndexes(ctx, appDB)
		cancel()

		repos = repositories{
			users:         mongo.NewMongoUserRepository(appDB),
			plans:         mongo.NewMongoPlanRepository(appDB),
			chat:          mongo.NewMongoChatRepository(appDB),
			notifications: mongo.NewMongoNotificationRepository(appDB),
		}
	default:
		log.Fatalf("FATAL: Unknown database.driver %q (want mongo or memory)", cfg.Database.Driver)
	}

	// --- Initialize Storage ---
	var fileStorage storage.FileStorage
	if cfg.S3.BucketName != "" {
		log.Println("Initializing file storage service...")
		fileStorage, err = storage.NewS3Storage(cfg.S3)
		if err != nil {
			log.Fatalf("FATAL: Failed to initialize S3 storage: %v", err)
		}
	} else {
		log.Println("WARN: s3.bucket_name not set; profile image uploads are disabled.")
	}

	// --- Initialize Services ---
	log.Println("Initializing services...")
	authService := service.NewAuthService(repos.users, cfg.JWT.Secret, cfg.JWT.Expiration)
	userService := service.NewUserService(repos.users, fileStorage)
	notificationService := service.NewNotificationService(repos.notifications)
	planService := service.NewPlanService(repos.plans, repos.users, notificationService)
	chatService := service.NewChatService(repos.chat, repos.users)

	// --- Realtime Hub ---
	relay := realtime.NewLocalRelay()
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		relay = realtime.NewRedisRelay(redisClient, cfg.Redis.Channel)
		log.Printf("Realtime relay using Redis at %s, channel %s", cfg.Redis.Addr, cfg.Redis.Channel)
	}
	hub := realtime.NewHub(chatService, planService, notificationService, relay, realtime.Options{
		SendBuffer:   cfg.Realtime.SendBuffer,
		EventTimeout: cfg.Realtime.EventTimeout,
	})
	startCtx, cancelStart := context.WithTimeout(context.Background(), 10*time.Second)
	if err := hub.Start(startCtx); err != nil {
		log.Fatalf("FATAL: Could not start realtime hub: %v", err)
	}
	cancelStart()
	defer hub.Close()

	// --- Initialize Gin Engine ---
	router := gin.Default() // Includes Logger and Recovery middleware

	// --- Setup Routes ---
	log.Println("Setting up API routes...")
	api.SetupRoutes(router, cfg.JWT.Secret, authService, userService, planService, notificationService, hub, realtime.ConnOptions{
		WriteWait: cfg.Realtime.WriteWait,
		PongWait:  cfg.Realtime.PongWait,
	})

	// --- Start HTTP Server ---
	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	log.Printf("Server starting on %s", cfg.Server.Address)

	// --- Graceful Shutdown ---
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("FATAL: ListenAndServe Error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	// Hijacked websocket connections are not tracked by Shutdown; close them via the hub.
	if err := hub.Close(); err != nil {
		log.Printf("ERROR: Failed to close realtime hub: %v", err)
	}
	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Printf("ERROR: Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting.")
}

// setupLogging mirrors the standard logger into a rotating file when configured.
func setupLogging(cfg config.LogConfig) {
	if cfg.File == "" {
		return
	}
	rotator := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
	out := io.MultiWriter(os.Stdout, rotator)
	log.SetOutput(out)
	gin.DefaultWriter = out
	gin.DefaultErrorWriter = out
}
