package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"

	"tale-server/internal/ai"
	"tale-server/internal/authutils"
	"tale-server/internal/config"
	"tale-server/internal/database"
	"tale-server/internal/handler"
	"tale-server/internal/interfaces"
	"tale-server/internal/logger"
	"tale-server/internal/messaging"
	"tale-server/internal/middleware"
	"tale-server/internal/models"
	"tale-server/internal/prompt"
	"tale-server/internal/service"
	"tale-server/internal/ws"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	zapLogger, err := logger.New(cfg.Logger)
	if err != nil {
		log.Fatalf("Ошибка инициализации логгера: %v", err)
	}
	defer zapLogger.Sync() //nolint:errcheck

	zapLogger.Info("Запуск сервиса генерации сцен...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- PostgreSQL ---
	pool, err := database.NewPool(ctx, cfg)
	if err != nil {
		zapLogger.Fatal("Не удалось подключиться к PostgreSQL", zap.Error(err))
	}
	defer pool.Close()

	if err := database.ApplyMigrations(pool); err != nil {
		zapLogger.Fatal("Не удалось применить миграции", zap.Error(err))
	}
	zapLogger.Info("Миграции применены")

	// --- Redis (реестр активных сессий) ---
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()
	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	err = redisClient.Ping(pingCtx).Err()
	pingCancel()
	if err != nil {
		zapLogger.Fatal("Не удалось подключиться к Redis", zap.Error(err))
	}

	// --- RabbitMQ ---
	// Брокер опционален: без него сцены отдаются только по HTTP.
	rabbitConn, err := connectRabbitMQ(cfg.RabbitMQURL, zapLogger)
	if err != nil {
		zapLogger.Warn("RabbitMQ недоступен, события сцен не будут публиковаться", zap.Error(err))
		rabbitConn = nil
	} else {
		defer rabbitConn.Close()
	}

	// --- Репозитории ---
	quotaRepo := database.NewPgQuotaRepository(pool, zapLogger)
	userRepo := database.NewPgUserRepository(pool, zapLogger)
	sessionRepo := database.NewRedisSessionRepository(redisClient, zapLogger)

	// --- AI клиенты ---
	narrator, err := ai.NewNarrationClient(ai.Config{
		Provider: cfg.AIProvider,
		BaseURL:  cfg.AIBaseURL,
		APIKey:   cfg.AIAPIKey,
		Model:    cfg.AIModel,
		Timeout:  cfg.AITimeout,
		Params: ai.Params{
			Temperature: float32(cfg.AITemperature),
			MaxTokens:   cfg.AIMaxTokens,
			TopP:        float32(cfg.AITopP),
		},
	}, zapLogger)
	if err != nil {
		zapLogger.Fatal("Не удалось создать клиента нарратора", zap.Error(err))
	}

	imageClient := ai.NewImageClient(ai.ImageConfig{
		APIKey:  cfg.AIAPIKey,
		Model:   cfg.ImageModel,
		Size:    cfg.ImageSize,
		Timeout: cfg.ImageTimeout,
	}, zapLogger)

	speechClient := ai.NewSpeechClient(ai.SpeechConfig{
		APIKey:       cfg.AIAPIKey,
		Model:        cfg.SpeechModel,
		DefaultVoice: cfg.SpeechVoice,
		Timeout:      cfg.SpeechTimeout,
	}, zapLogger)

	// --- Сервисы ---
	quotaGuard := service.NewQuotaGuard(quotaRepo, map[models.RequestClass]int{
		models.RequestClassText:  cfg.TextDailyLimit,
		models.RequestClassImage: cfg.ImageDailyLimit,
		models.RequestClassVoice: cfg.VoiceDailyLimit,
	}, zapLogger)

	imageEnricher := service.NewImageEnricher(imageClient, quotaGuard, zapLogger)
	voiceEnricher := service.NewVoiceEnricher(speechClient, quotaGuard, zapLogger)
	assembler := service.NewSceneAssembler(imageEnricher, voiceEnricher, zapLogger)
	promptBuilder := prompt.NewBuilder(cfg.PromptTokenBudget)

	var publisher interfaces.ClientUpdatePublisher
	if rabbitConn != nil {
		publisher, err = messaging.NewRabbitMQClientUpdatePublisher(rabbitConn, cfg.ClientUpdatesQueueName, zapLogger)
		if err != nil {
			zapLogger.Warn("Не удалось создать паблишер обновлений", zap.Error(err))
			publisher = nil
		}
	}

	generationService := service.NewGenerationService(quotaGuard, promptBuilder, narrator, assembler, publisher, zapLogger)

	// --- WebSocket hub ---
	zlog := zerolog.New(os.Stdout).With().Timestamp().Logger()
	connManager := ws.NewConnectionManager(zlog)
	wsHandler := ws.NewHandler(connManager, []byte(cfg.JWTSecret), sessionRepo, zlog)

	var mqConsumer *ws.Consumer
	if rabbitConn != nil {
		mqConsumer = ws.NewConsumer(rabbitConn, connManager, cfg.ClientUpdatesQueueName, zlog)
		go func() {
			if err := mqConsumer.StartConsuming(); err != nil {
				zapLogger.Error("Консьюмер RabbitMQ завершился с ошибкой", zap.Error(err))
			}
		}()
	}

	// --- HTTP ---
	verifier, err := authutils.NewJWTVerifier(cfg.JWTSecret, zapLogger)
	if err != nil {
		zapLogger.Fatal("Не удалось создать верификатор JWT", zap.Error(err))
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.ZapLoggingMiddlewareForGin(zapLogger))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization")
	if len(cfg.CORSAllowedOrigins) == 1 && cfg.CORSAllowedOrigins[0] == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.CORSAllowedOrigins
	}
	router.Use(cors.New(corsConfig))

	prom := ginprometheus.NewPrometheus("gin")
	prom.Use(router)

	authMW := middleware.AuthMiddleware(verifier.VerifyToken, sessionRepo, userRepo, zapLogger)
	storyHandler := handler.NewStoryHandler(generationService, quotaGuard, zapLogger)
	storyHandler.RegisterRoutes(router, authMW)

	router.GET("/ws", func(c *gin.Context) {
		wsHandler.ServeWS(c.Writer, c.Request)
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		zapLogger.Info("HTTP сервер запущен", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Ошибка HTTP сервера", zap.Error(err))
		}
	}()

	// Ожидание сигнала завершения для graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Получен сигнал завершения, начинаем graceful shutdown...")

	if mqConsumer != nil {
		mqConsumer.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Ошибка при graceful shutdown HTTP сервера", zap.Error(err))
	}

	zapLogger.Info("Сервис остановлен")
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
		logger.Warn("Не удалось подключиться к RabbitMQ",
			zap.Int("attempt", i+1),
			zap.Int("maxRetries", maxRetries),
			zap.Error(err),
		)
		time.Sleep(retryDelay)
	}
	return nil, err
}
