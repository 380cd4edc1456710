package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/shenikar/incident_reporting_system/internal/auth"
	"github.com/shenikar/incident_reporting_system/internal/config"
	"github.com/shenikar/incident_reporting_system/internal/events"
	v1 "github.com/shenikar/incident_reporting_system/internal/handler/http/v1"
	"github.com/shenikar/incident_reporting_system/internal/notification"
	"github.com/shenikar/incident_reporting_system/internal/policy"
	"github.com/shenikar/incident_reporting_system/internal/repository"
	"github.com/shenikar/incident_reporting_system/internal/scheduler"
	"github.com/shenikar/incident_reporting_system/internal/service"
	"github.com/shenikar/incident_reporting_system/internal/storage"
	"github.com/shenikar/incident_reporting_system/pkg/logger"
	"github.com/shenikar/incident_reporting_system/pkg/metrics"
	"github.com/shenikar/incident_reporting_system/pkg/postgres"
	redisclient "github.com/shenikar/incident_reporting_system/pkg/redis"
	"github.com/sirupsen/logrus"

	_ "github.com/shenikar/incident_reporting_system/docs"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

const jobTimeout = 30 * time.Second

// @title Incident Reporting System API
// @version 1.0
// @description Incident reporting API: geotagged reports with media, triage and resolution by administrators.
// @host localhost:8080
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the access token.
func runMigrations(cfg *config.Config, log *logrus.Logger) error {
	log.Info("Running database migrations...")

	migrationURL := cfg.DatabaseURL
	if !strings.HasPrefix(migrationURL, "pgx5://") {
		migrationURL = strings.Replace(migrationURL, "postgres://", "pgx5://", 1)
		migrationURL = strings.Replace(migrationURL, "postgresql://", "pgx5://", 1)
	}

	m, err := migrate.New(
		"file://migrations",
		migrationURL,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Info("Database migrations applied successfully")
	return nil
}

// notificationChannels собирает настроенные каналы доставки
func notificationChannels(cfg *config.Config, log *logrus.Logger) []notification.Channel {
	var channels []notification.Channel
	if email := notification.NewEmailChannel(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom, cfg.PublicAppURL); email != nil {
		channels = append(channels, email)
	}
	if sms := notification.NewSMSChannel(cfg.KavenegarAPIKey, cfg.KavenegarSender); sms != nil {
		channels = append(channels, sms)
	}
	if webhook := notification.NewWebhookChannel(cfg.WebhookURL, cfg.WebhookSecret, cfg.WebhookTimeout, cfg.WebhookMaxRetries, cfg.WebhookBaseDelay, log); webhook != nil {
		channels = append(channels, webhook)
	}
	return channels
}

type eventPublisher interface {
	service.EventPublisher
	Close() error
}

func main() {
	// Загрузка конфигурации
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	// Контекст для graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Запуск миграций
	if err := runMigrations(cfg, log); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}

	// Подключение к PostgreSQL
	dbpool, err := postgres.NewPostgresDB(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer dbpool.Close()
	log.Info("Successfully connected to PostgreSQL")

	// Инициализация Redis клиента
	redisClient, err := redisclient.NewRedisClient(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	log.Info("Successfully connected to Redis")

	// Хранилище медиафайлов
	uploader, err := storage.NewS3Uploader(ctx, storage.S3Options{
		Bucket:        cfg.S3Bucket,
		Region:        cfg.S3Region,
		Endpoint:      cfg.S3Endpoint,
		AccessKey:     cfg.S3AccessKey,
		SecretKey:     cfg.S3SecretKey,
		PublicBaseURL: cfg.S3PublicBaseURL,
	})
	if err != nil {
		log.Fatalf("Failed to init media storage: %v", err)
	}

	// События жизненного цикла: Kafka, если заданы брокеры
	var publisher eventPublisher = events.Noop{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, log)
		log.WithField("topic", cfg.KafkaTopic).Info("Publishing incident events to Kafka")
	}
	defer publisher.Close()

	// Инициализация издателя уведомлений и воркера доставки
	notifier := notification.NewRedisPublisher(redisClient)
	channels := notificationChannels(cfg, log)
	if len(channels) == 0 {
		log.Warn("No notification channels configured, queued notifications will be dropped")
	}
	worker := notification.NewWorker(redisClient, log, cfg.NotificationRetryDelay, channels...)
	worker.Start(ctx)

	// Инициализация репозиториев
	userRepo := repository.NewUserRepository(dbpool)
	incidentRepo := repository.NewIncidentRepository(dbpool, redisClient, cfg.IncidentCacheTTL)
	categoryRepo := repository.NewCategoryRepository(dbpool)
	commentRepo := repository.NewCommentRepository(dbpool)
	activityRepo := repository.NewActivityRepository(dbpool)
	transactor := repository.NewTransactor(dbpool)

	// Инициализация сервисов
	accessPolicy := policy.MustNew()
	activityService := service.NewActivityService(activityRepo, accessPolicy, log)
	userService := service.NewUserService(
		userRepo,
		incidentRepo,
		auth.NewManager(cfg.JWTSecret, cfg.AccessTokenTTL),
		auth.NewRedisRevocationStore(redisClient),
		activityService,
		accessPolicy,
		log,
		cfg,
	)
	mediaRules := storage.NewMediaRules(cfg.MediaAllowedExtensions, cfg.MediaMaxBytes)
	incidentService := service.NewIncidentService(service.IncidentDeps{
		Repo:       incidentRepo,
		Users:      userRepo,
		Categories: categoryRepo,
		Tx:         transactor,
		Uploader:   uploader,
		Notifier:   notifier,
		Events:     publisher,
		Activity:   activityService,
		Policy:     accessPolicy,
		Media:      mediaRules,
		Logger:     log,
	})
	categoryService := service.NewCategoryService(categoryRepo, incidentRepo, activityService, accessPolicy, log)
	commentService := service.NewCommentService(commentRepo, incidentRepo, activityService, accessPolicy, log)

	// Периодические задачи
	jobs := scheduler.New(log, jobTimeout)
	if err := jobs.AddLockRelease(cfg.LockReleaseSchedule, userService); err != nil {
		log.Fatalf("Failed to schedule lock release: %v", err)
	}
	jobs.Start()

	// Инициализация хэндлеров
	handler := v1.NewHandler(v1.Services{
		Users:      userService,
		Incidents:  incidentService,
		Comments:   commentService,
		Categories: categoryService,
		Activities: activityService,
	}, v1.UploadLimits{
		Rules:           mediaRules,
		MaxRequestBytes: cfg.MediaMaxRequestBytes,
	}, log, map[string]v1.HealthCheck{
		"postgres": dbpool.Ping,
		"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	})

	// Настройка Gin роутера
	httpMetrics := metrics.NewMetrics("http", nil)
	router := gin.Default()
	// части формы сверх одного допустимого файла gin сбрасывает во временные файлы
	router.MaxMultipartMemory = mediaRules.MaxBytes()
	router.Use(httpMetrics.Middleware())
	api := router.Group("/api/v1")
	handler.RegisterRoutes(api)

	// Метрики и Swagger UI
	router.GET("/metrics", gin.WrapH(httpMetrics.Handler()))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Запуск HTTP-сервера
	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)

	srv := &http.Server{
		Addr:              serverAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Запуск сервера в горутине
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Error starting HTTP server: %v", err)
		}
	}()
	log.Infof("HTTP server started on port %s", cfg.HTTPPort)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Received shutdown signal, shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}
	jobs.Stop(shutdownCtx)

	// Воркер ждет в BRPOP: закрытие клиента прерывает ожидание
	cancel()
	if err := redisClient.Close(); err != nil {
		log.WithError(err).Warn("Failed to close Redis client")
	}
	select {
	case <-worker.Done():
	case <-shutdownCtx.Done():
		log.Warn("Notification worker did not stop in time")
	}

	log.Info("Server gracefully stopped")
}
