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

	"challenge-server/internal/auth"
	"challenge-server/internal/cache"
	"challenge-server/internal/challenge"
	"challenge-server/internal/config"
	"challenge-server/internal/database"
	"challenge-server/internal/handler"
	"challenge-server/internal/hub"
	"challenge-server/internal/logger"
	"challenge-server/internal/messaging"
	"challenge-server/internal/middleware"
	"challenge-server/internal/repository"
	"challenge-server/internal/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"
)

func main() {
	log.Println("Запуск сервера дневника челленджа...")

	// .env удобен при локальной разработке, в контейнере его нет
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{Level: cfg.LogLevel, Encoding: cfg.LogEncoding})
	if err != nil {
		log.Fatalf("Ошибка инициализации логгера: %v", err)
	}
	defer func() { _ = zapLogger.Sync() }()
	zap.ReplaceGlobals(zapLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- PostgreSQL ---
	dbPool, err := database.NewPool(ctx, cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("Не удалось подключиться к базе данных", zap.Error(err))
	}
	defer dbPool.Close()

	if err := database.RunMigrations(cfg.GetDSN(), cfg.MigrationsDir, zapLogger); err != nil {
		zapLogger.Fatal("Ошибка применения миграций", zap.Error(err))
	}

	// --- Redis ---
	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
	defer func() { _ = redisClient.Close() }()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		zapLogger.Fatal("Не удалось подключиться к Redis", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}
	zapLogger.Info("Успешное подключение к Redis", zap.String("addr", cfg.RedisAddr))

	// --- RabbitMQ ---
	mqConn, err := connectRabbitMQ(cfg.RabbitMQURL, zapLogger)
	if err != nil {
		zapLogger.Fatal("Не удалось подключиться к RabbitMQ", zap.Error(err))
	}
	defer mqConn.Close()

	mqChannel, err := mqConn.Channel()
	if err != nil {
		zapLogger.Fatal("Не удалось открыть канал RabbitMQ", zap.Error(err))
	}
	defer mqChannel.Close()

	statusPublisher, err := messaging.NewRabbitMQStatusPublisher(mqChannel, cfg.StatusQueueName, zapLogger)
	if err != nil {
		zapLogger.Fatal("Не удалось создать StatusPublisher", zap.Error(err))
	}

	// --- Компоненты ---
	startDate, err := cfg.StartDate()
	if err != nil {
		zapLogger.Fatal("Некорректная дата старта челленджа", zap.Error(err))
	}
	schedule := challenge.NewSchedule(startDate, cfg.ChallengeDays)

	aiClient, err := service.NewAIClient(cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("Ошибка инициализации AI клиента", zap.Error(err))
	}
	completer := service.NewCompletionService(aiClient, cfg.AIMaxAttempts, cfg.AIBaseRetryDelay, zapLogger)

	recordRepo := repository.NewPgRecordRepository(dbPool, zapLogger)
	statusRepo := repository.NewPgStatusRepository(dbPool, zapLogger)
	analysisCache := cache.NewRedisAnalysisCache(redisClient, cfg.AnalysisCacheTTL, zapLogger)

	snapshotHub := hub.NewHub(zapLogger)

	journalService := service.NewJournalService(
		recordRepo, statusRepo, statusPublisher, snapshotHub, analysisCache, completer,
		schedule, zapLogger,
	)

	verifier, err := auth.NewJWTVerifier(cfg.JWTSecret, zapLogger)
	if err != nil {
		zapLogger.Fatal("Не удалось создать JWT верификатор", zap.Error(err))
	}

	// --- HTTP сервер (Gin) ---
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.RedirectTrailingSlash = true
	router.Use(middleware.ZapLoggingMiddleware(zapLogger))
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSAllowedOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	corsConfig.AllowCredentials = true
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	healthHandler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
	router.GET("/health", healthHandler)
	router.HEAD("/health", healthHandler)

	handler.NewJournalHandler(journalService, verifier.VerifyToken, zapLogger).RegisterRoutes(router)
	handler.NewWSHandler(snapshotHub, journalService, verifier.VerifyToken, zapLogger).RegisterRoutes(router)

	// Prometheus middleware применяем после регистрации роутов
	p := ginprometheus.NewPrometheus("gin")
	p.Use(router)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		zapLogger.Info("HTTP сервер запущен", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("Ошибка HTTP сервера", zap.Error(err))
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	zapLogger.Info("Получен сигнал завершения", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Ошибка при остановке HTTP сервера", zap.Error(err))
	}
	snapshotHub.Stop()

	zapLogger.Info("Сервер остановлен")
}

// connectRabbitMQ пытается подключиться к RabbitMQ с несколькими попытками.
func connectRabbitMQ(url string, logger *zap.Logger) (*amqp.Connection, error) {
	var conn *amqp.Connection
	var err error
	maxRetries := 5
	retryDelay := 5 * time.Second

	for i := 0; i < maxRetries; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			logger.Info("Успешное подключение к RabbitMQ")
			return conn, nil
		}
		logger.Warn("Не удалось подключиться к RabbitMQ, повтор",
			zap.Int("attempt", i+1),
			zap.Int("maxRetries", maxRetries),
			zap.Duration("retryDelay", retryDelay),
			zap.Error(err))
		time.Sleep(retryDelay)
	}
	return nil, err
}
