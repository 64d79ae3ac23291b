package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/trivia-live/internal/config"
	"github.com/yourusername/trivia-live/internal/handler"
	"github.com/yourusername/trivia-live/internal/middleware"
	pgRepo "github.com/yourusername/trivia-live/internal/repository/postgres"
	redisRepo "github.com/yourusername/trivia-live/internal/repository/redis"
	"github.com/yourusername/trivia-live/internal/service"
	"github.com/yourusername/trivia-live/internal/service/realtime"
	ws "github.com/yourusername/trivia-live/internal/websocket"
	"github.com/yourusername/trivia-live/pkg/auth"
	"github.com/yourusername/trivia-live/pkg/database"
)

func main() {
	// Загружаем конфигурацию
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	log.Printf("Загрузка конфигурации из %s", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		os.Exit(1)
	}

	// Подключение к PostgreSQL и миграции
	db, err := database.NewPostgresDB(cfg.Database.PostgresConnectionString())
	if err != nil {
		log.Printf("Failed to connect to database: %v", err)
		os.Exit(1)
	}
	if err := database.MigrateDB(db); err != nil {
		log.Printf("Failed to migrate database: %v", err)
		os.Exit(1)
	}

	// Подключение к Redis
	redisClient, err := database.NewUniversalRedisClient(cfg.Redis)
	if err != nil {
		log.Printf("Failed to connect to Redis: %v", err)
		os.Exit(1)
	}
	log.Println("Successfully connected to Redis")

	// Репозитории
	eventRepo := pgRepo.NewEventRepo(db)
	questionRepo := pgRepo.NewQuestionRepo(db)
	userRepo := pgRepo.NewUserRepo(db)
	otpRepo := pgRepo.NewOtpRepo(db)
	refreshTokenRepo := pgRepo.NewRefreshTokenRepo(db)
	cacheRepo, err := redisRepo.NewCacheRepo(redisClient)
	if err != nil {
		log.Printf("Failed to initialize CacheRepo: %v", err)
		os.Exit(1)
	}

	// Сервисы
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpirationHrs)

	var otpSender service.OtpSender
	if cfg.Email.ResendAPIKey != "" {
		otpSender = service.NewResendOtpSender(cfg.Email.ResendAPIKey, cfg.Email.From)
	} else {
		log.Println("RESEND_API_KEY не задан, коды будут писаться в лог")
		otpSender = service.LogOtpSender{}
	}

	userService := service.NewUserService(userRepo, cacheRepo)
	eventService := service.NewEventService(eventRepo, userService, cfg.Scheduler.DefaultQuestionCount, cfg.Scheduler.DefaultMinPlayers)
	questionService := service.NewQuestionService(questionRepo)
	authService := service.NewAuthService(
		userRepo, otpRepo, refreshTokenRepo,
		jwtService, otpSender,
		cfg.Auth.OtpExpiryMinutes, cfg.Auth.OtpMaxAttempts, cfg.Auth.RefreshTokenLifetimeHrs,
	)

	// Realtime-подсистема: хаб, реестр сессий, ядро
	hub := ws.NewHub()
	wsManager := ws.NewManager(hub)
	registry := ws.NewSessionRegistry(
		hub,
		cfg.WebSocket.HeartbeatIntervalSec,
		cfg.WebSocket.SystemCheckSec,
		cfg.WebSocket.IdleTimeoutMin,
		cfg.WebSocket.HeapThreshold,
	)
	hub.SetFilter(registry)
	hub.SetCloseHandler(registry.OnDisconnectCascade)

	coreConfig := realtime.DefaultConfig()
	coreConfig.FillInterval = time.Duration(cfg.Scheduler.FillIntervalSec) * time.Second
	coreConfig.MaintenanceInterval = time.Duration(cfg.Scheduler.MaintenanceIntSec) * time.Second
	coreConfig.FillHorizon = time.Duration(cfg.Scheduler.FillHorizonMinutes) * time.Minute
	coreConfig.LobbyWindow = time.Duration(cfg.Scheduler.LobbyWindowSec) * time.Second
	coreConfig.DefaultQuestionCount = cfg.Scheduler.DefaultQuestionCount
	coreConfig.DefaultMinPlayers = cfg.Scheduler.DefaultMinPlayers

	core := realtime.NewCoreContext(coreConfig, &realtime.Dependencies{
		EventService: eventService,
		EventRepo:    eventRepo,
		QuestionRepo: questionRepo,
		Sessions:     registry,
		Hub:          hub,
	})

	// Каскады: отключение чистит лобби и раунд, смена контекста чистит
	// ресурсы предыдущего, изменение события пересоздает лобби
	registry.OnDisconnect(core.RemoveConnection)
	registry.SetContextCleanup(core.CleanupContext)
	eventService.RegisterPostSaveHook(core.Lobby.OnEventUpdated)

	// Фоновые циклы
	ctx, cancel := context.WithCancel(context.Background())
	go registry.Run(ctx)
	go core.Run(ctx)

	// Обработчики HTTP
	authMiddleware := middleware.NewAuthMiddleware(jwtService)
	authHandler := handler.NewAuthHandler(authService)
	eventHandler := handler.NewEventHandler(eventService, core, coreConfig.LobbyWindow)
	questionHandler := handler.NewQuestionHandler(questionService)
	userHandler := handler.NewUserHandler(userService)
	wsHandler := handler.NewWSHandler(hub, wsManager, registry, core, userService, eventService, cfg.WebSocket.ClientSendBuffer)

	router := gin.Default()
	if gin.Mode() == gin.ReleaseMode {
		if err := router.SetTrustedProxies(nil); err != nil {
			log.Printf("Warning: failed to set trusted proxies: %v", err)
		}
	} else {
		if err := router.SetTrustedProxies([]string{"127.0.0.1", "::1"}); err != nil {
			log.Printf("Warning: failed to set trusted proxies: %v", err)
		}
	}

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:5173", "http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	api := router.Group("/api")
	{
		rateLimiter := middleware.NewRateLimiter(redisClient)
		authGroup := api.Group("/auth")
		authGroup.Use(rateLimiter.Limit(middleware.DefaultAuthRateLimitConfig()))
		{
			otpLimit := rateLimiter.Limit(middleware.OtpRateLimitConfig())
			authGroup.POST("/register", otpLimit, authHandler.Register)
			authGroup.POST("/verify-otp", otpLimit, authHandler.VerifyOtp)
			authGroup.POST("/refresh", authHandler.Refresh)
			authGroup.POST("/logout", authMiddleware.RequireAuth(), authHandler.Logout)
		}

		events := api.Group("/events")
		{
			events.GET("/next", eventHandler.GetNext)
			events.GET("/active", eventHandler.GetActive)
			events.GET("/ready-for-lobby", eventHandler.ReadyForLobby)
			events.POST("", authMiddleware.RequireAuth(), eventHandler.Create)
			events.PUT("/:id", authMiddleware.RequireAuth(), eventHandler.Update)
			events.POST("/:id/open-lobby", authMiddleware.RequireAuth(), eventHandler.OpenLobby)
			events.POST("/:id/force-update", authMiddleware.RequireAuth(), eventHandler.ForceUpdate)
			events.POST("/force-lobby-check", authMiddleware.RequireAuth(), eventHandler.ForceLobbyCheck)
		}

		users := api.Group("/users")
		{
			users.GET("/me", authMiddleware.RequireAuth(), userHandler.GetMe)
			users.GET("/leaderboard", userHandler.GetLeaderboard)
		}

		questions := api.Group("/questions")
		{
			questions.GET("", questionHandler.List)
			questions.GET("/random/:limit", questionHandler.GetRandom)
			questions.GET("/theme/:theme", questionHandler.GetByTheme)
			questions.GET("/:id", questionHandler.Get)
			questions.POST("", authMiddleware.RequireAuth(), questionHandler.Create)
			questions.POST("/import", authMiddleware.RequireAuth(), questionHandler.Import)
			questions.PATCH("/:id", authMiddleware.RequireAuth(), questionHandler.Patch)
			questions.DELETE("/:id", authMiddleware.RequireAuth(), questionHandler.Delete)
		}
	}

	router.GET("/ws", wsHandler.HandleConnection)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		log.Printf("Starting server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Failed to start server: %v", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Останавливаем фоновые циклы ядра
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
		os.Exit(1)
	}

	log.Println("Server exited properly")
}
