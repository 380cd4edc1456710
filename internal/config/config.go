package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config - структура для хранения конфигурации приложения
type Config struct {
	DatabaseURL     string        `env:"DATABASE_URL"`
	DBMaxConns      int32         `env:"DB_MAX_CONNS" env-default:"10"`
	DBMinConns      int32         `env:"DB_MIN_CONNS" env-default:"2"`
	DBConnIdleTime  time.Duration `env:"DB_MAX_CONN_IDLE_TIME" env-default:"5m"`
	DBConnLifetime  time.Duration `env:"DB_MAX_CONN_LIFETIME" env-default:"1h"`
	DBQueryTimeout  time.Duration `env:"DB_STATEMENT_TIMEOUT" env-default:"30s"`
	HTTPPort        string        `env:"HTTP_PORT" env-default:"8080"`
	LogLevel        string        `env:"LOG_LEVEL" env-default:"info"`
	LogFormat       string        `env:"LOG_FORMAT" env-default:"json"`
	PublicAppURL    string        `env:"PUBLIC_APP_URL" env-default:"http://localhost:5173"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" env-default:"10s"`

	// Redis Config
	RedisAddr string `env:"REDIS_ADDR" env-default:"localhost:6379"`
	RedisPass string `env:"REDIS_PASSWORD"`
	RedisDB   int    `env:"REDIS_DB" env-default:"0"`
	RedisPool int    `env:"REDIS_POOL_SIZE" env-default:"10"`

	// Auth Config
	JWTSecret           string        `env:"JWT_SECRET"`
	AccessTokenTTL      time.Duration `env:"ACCESS_TOKEN_TTL" env-default:"24h"`
	MaxFailedLogins     int           `env:"MAX_FAILED_LOGINS" env-default:"5"`
	LockoutDuration     time.Duration `env:"LOCKOUT_DURATION" env-default:"15m"`
	LockReleaseSchedule string        `env:"LOCK_RELEASE_SCHEDULE" env-default:"@every 5m"`

	// Incidents Config
	IncidentCacheTTL       time.Duration `env:"INCIDENT_CACHE_TTL" env-default:"5m"`
	MediaAllowedExtensions []string      `env:"MEDIA_ALLOWED_EXTENSIONS" env-separator:"," env-default:"png,jpg,jpeg,gif,mp4,mov"`
	MediaMaxBytes          int64         `env:"MEDIA_MAX_BYTES" env-default:"16777216"`
	MediaMaxRequestBytes   int64         `env:"MEDIA_MAX_REQUEST_BYTES" env-default:"67108864"`

	// S3 Config
	S3Bucket        string `env:"S3_BUCKET" env-default:"incident-media"`
	S3Region        string `env:"S3_REGION" env-default:"us-east-1"`
	S3Endpoint      string `env:"S3_ENDPOINT"`
	S3AccessKey     string `env:"S3_ACCESS_KEY"`
	S3SecretKey     string `env:"S3_SECRET_KEY"`
	S3PublicBaseURL string `env:"S3_PUBLIC_BASE_URL"`

	// Notification Config
	SMTPHost        string `env:"SMTP_HOST"`
	SMTPPort        int    `env:"SMTP_PORT" env-default:"587"`
	SMTPUsername    string `env:"SMTP_USERNAME"`
	SMTPPassword    string `env:"SMTP_PASSWORD"`
	SMTPFrom        string `env:"SMTP_FROM" env-default:"noreply@incidents.local"`
	KavenegarAPIKey string `env:"KAVENEGAR_API_KEY"`
	KavenegarSender string `env:"KAVENEGAR_SENDER"`

	NotificationRetryDelay time.Duration `env:"NOTIFICATION_RETRY_DELAY" env-default:"5s"`

	// Webhook Config
	WebhookURL        string        `env:"WEBHOOK_URL"`
	WebhookSecret     string        `env:"WEBHOOK_SECRET"`
	WebhookTimeout    time.Duration `env:"WEBHOOK_TIMEOUT" env-default:"5s"`
	WebhookMaxRetries int           `env:"WEBHOOK_MAX_RETRIES" env-default:"3"`
	WebhookBaseDelay  time.Duration `env:"WEBHOOK_BASE_DELAY" env-default:"1s"`

	// Kafka Config
	KafkaBrokers []string `env:"KAFKA_BROKERS" env-separator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" env-default:"incident-events"`
}

// LoadConfig загружает конфигурацию из переменных окружения и .env файла
func LoadConfig() (*Config, error) {
	// Загрузка переменных окружения из .env файла (если есть)
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("ошибка загрузки файла .env: %w", err)
	}

	cfg := &Config{}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("ошибка чтения переменных окружения: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет обязательные параметры
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET environment variable is required")
	}
	if c.MaxFailedLogins < 1 {
		return fmt.Errorf("MAX_FAILED_LOGINS must be positive, got %d", c.MaxFailedLogins)
	}
	if c.MediaMaxRequestBytes < c.MediaMaxBytes {
		return fmt.Errorf("MEDIA_MAX_REQUEST_BYTES (%d) must not be less than MEDIA_MAX_BYTES (%d)", c.MediaMaxRequestBytes, c.MediaMaxBytes)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) must not exceed DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	return nil
}

func (c *Config) normalize() {
	exts := make([]string, 0, len(c.MediaAllowedExtensions))
	for _, ext := range c.MediaAllowedExtensions {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext != "" {
			exts = append(exts, ext)
		}
	}
	c.MediaAllowedExtensions = exts

	brokers := make([]string, 0, len(c.KafkaBrokers))
	for _, b := range c.KafkaBrokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	c.KafkaBrokers = brokers
}
