package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agrilink/chat-api/internal/config"
	"github.com/agrilink/chat-api/internal/crypto"
	"github.com/agrilink/chat-api/internal/handler"
	"github.com/agrilink/chat-api/internal/middleware"
	"github.com/agrilink/chat-api/internal/model"
	"github.com/agrilink/chat-api/internal/repository"
	"github.com/agrilink/chat-api/internal/service"
	"github.com/agrilink/chat-api/internal/ws"
	"github.com/agrilink/chat-api/migrations"
	"github.com/agrilink/chat-api/pkg/auth"
	applogger "github.com/agrilink/chat-api/pkg/logger"
	"github.com/agrilink/chat-api/pkg/notification"
	"github.com/agrilink/chat-api/pkg/storage"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// @title           AgriLink Chat API
// @version         1.0
// @description     Real-time direct messaging API with relationship gating, at-rest encryption and WebSocket fan-out.

// @license.name  MIT
// @license.url   https://opensource.org/licenses/MIT

// @host      api.localhost
// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg := config.Load()

	logger := applogger.New(cfg.App.Env)
	defer logger.Sync()
	logger.Info("starting chat API server", zap.String("env", cfg.App.Env))

	// ==================== Database (PostgreSQL) ====================
	gormLogMode := gormlogger.Default.LogMode(gormlogger.Info)
	if cfg.App.Env == "production" {
		gormLogMode = gormlogger.Default.LogMode(gormlogger.Warn)
	}

	db, err := gorm.Open(postgres.Open(cfg.DB.DSN()), &gorm.Config{
		Logger: gormLogMode,
	})
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	logger.Info("connected to PostgreSQL")

	if err := migrations.Run(cfg.DB.URL(), logger); err != nil {
		logger.Warn("migration failed, falling back to AutoMigrate", zap.Error(err))
		if err := db.AutoMigrate(
			&model.User{},
			&model.UserDevice{},
			&model.Follow{},
			&model.Block{},
			&model.Conversation{},
			&model.ConversationParticipant{},
			&model.Message{},
			&model.MessageDelivery{},
			&model.MessageRead{},
			&model.MessageReaction{},
			&model.PendingAttachment{},
			&model.Notification{},
		); err != nil {
			logger.Fatal("failed to migrate database", zap.Error(err))
		}
	}
	logger.Info("database migrated")

	// ==================== Redis ====================
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       0,
	})
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		logger.Fatal("failed to connect to Redis", zap.Error(err))
	}
	logger.Info("connected to Redis")

	// ==================== Encryption ====================
	cipher, err := crypto.New(cfg.Encryption.Enabled, cfg.Encryption.Key)
	if err != nil {
		logger.Fatal("encryption setup failed", zap.Error(err))
	}
	logger.Info("at-rest encryption", zap.Bool("enabled", cipher.Enabled()))

	// ==================== Layers ====================
	jwtManager := auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Expiry)

	userRepo := repository.NewUserRepository(db)
	socialRepo := repository.NewSocialRepository(db)
	convRepo := repository.NewConversationRepository(db)
	msgRepo := repository.NewMessageRepository(db)
	attachRepo := repository.NewAttachmentRepository(db)
	notifRepo := repository.NewNotificationRepository(db)

	minioStorage, err := storage.NewMinIO(storage.Config{
		Endpoint:  cfg.MinIO.Endpoint,
		PublicURL: cfg.MinIO.PublicURL,
		AccessKey: cfg.MinIO.AccessKey,
		SecretKey: cfg.MinIO.SecretKey,
		Bucket:    cfg.MinIO.Bucket,
		UseSSL:    cfg.MinIO.UseSSL,
	}, logger)
	if err != nil {
		logger.Warn("MinIO not available, file upload disabled", zap.Error(err))
	} else {
		logger.Info("connected to MinIO")
	}

	gate := service.NewRelationshipGate(socialRepo, userRepo)
	limiter := service.NewRateLimiter(cfg.Chat.RateLimitCount, cfg.Chat.RateLimitWindow)

	var files service.FileStore
	if minioStorage != nil {
		files = minioStorage
	}
	chatService := service.NewChatService(
		convRepo, msgRepo, userRepo, socialRepo, attachRepo,
		gate, limiter, cipher, files, cfg.Chat, logger,
	)

	hub := ws.NewHub(rdb, func(userID uuid.UUID, online bool) {
		if err := userRepo.UpdateOnlineStatus(userID, online); err != nil {
			logger.Warn("presence persistence failed",
				zap.String("user_id", userID.String()), zap.Error(err))
		}
	}, logger)

	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()
	go hub.Run(hubCtx)

	fcmSender, err := notification.NewFCMSender(cfg.Firebase.CredentialsFile, logger)
	if err != nil {
		logger.Warn("FCM setup failed, push notifications disabled", zap.Error(err))
	}
	var push service.PushSender
	if fcmSender != nil {
		push = fcmSender
	}
	notifService := service.NewNotificationService(notifRepo, userRepo, socialRepo, hub, push, logger)
	chatService.SetNotifier(notifService)

	// Periodic cleanup of expired staged attachments and idle rate buckets
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-hubCtx.Done():
				return
			case <-ticker.C:
				chatService.SweepExpired()
			}
		}
	}()

	chatHandler := handler.NewChatHandler(chatService, hub)
	notifHandler := handler.NewNotificationHandler(notifService)
	wsHandler := handler.NewWSHandler(hub, chatService, jwtManager, logger)
	uploadHandler := handler.NewUploadHandler(minioStorage, chatService)

	// ==================== Gin Router ====================
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	router.StaticFile("/docs/swagger.json", "./docs/swagger.json")
	swaggerURL := ginSwagger.URL("/docs/swagger.json")
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, swaggerURL))

	router.Use(middleware.CORSMiddleware(cfg.CORS))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "chat-api",
			"time":    time.Now().Format(time.RFC3339),
		})
	})

	api := router.Group("/api/v1")
	{
		protected := api.Group("")
		protected.Use(middleware.AuthMiddleware(jwtManager, rdb))
		{
			// Conversations
			protected.GET("/conversations", chatHandler.GetConversations)
			protected.POST("/conversations/direct", chatHandler.StartDirect)
			protected.POST("/conversations/expert", chatHandler.StartExpert)
			protected.GET("/conversations/:id/messages", chatHandler.GetMessages)
			protected.POST("/conversations/:id/seen", chatHandler.MarkSeen)

			// Messages
			protected.POST("/messages", chatHandler.SendMessage)
			protected.PUT("/messages/:id", chatHandler.EditMessage)
			protected.DELETE("/messages/:id", chatHandler.RetractMessage)
			protected.POST("/messages/:id/reactions", chatHandler.React)

			// Notifications & devices
			protected.GET("/notifications", notifHandler.List)
			protected.POST("/notifications/read", notifHandler.MarkAllRead)
			protected.GET("/notifications/unread-count", notifHandler.UnreadCount)
			protected.POST("/devices", notifHandler.RegisterDevice)

			// Upload
			protected.POST("/chat/upload", uploadHandler.UploadChatFile)
		}
	}

	// WebSocket endpoint (auth via query parameter)
	router.GET("/ws", wsHandler.HandleWebSocket)

	// ==================== Start Server ====================
	srv := &http.Server{
		Addr:    ":" + cfg.App.Port,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	logger.Info("chat API running",
		zap.String("addr", "http://0.0.0.0:"+cfg.App.Port),
		zap.String("websocket", "ws://0.0.0.0:"+cfg.App.Port+"/ws?token=<jwt>"))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	hubCancel()
	logger.Info("server exited gracefully")
}
