package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shenikar/incident_reporting_system/internal/models"
)

const (
	queueKey = "notification_events"
)

// Event - уведомление пользователю, ожидающее доставки. Контакты и настройки
// каналов копируются в момент постановки в очередь.
type Event struct {
	UserID       uuid.UUID         `json:"user_id"`
	Username     string            `json:"username"`
	Email        string            `json:"email"`
	Phone        string            `json:"phone,omitempty"`
	EmailEnabled bool              `json:"email_enabled"`
	SMSEnabled   bool              `json:"sms_enabled"`
	Type         string            `json:"event"`
	Payload      map[string]string `json:"payload"`
	Timestamp    time.Time         `json:"timestamp"`
}

type listPusher interface {
	LPush(ctx context.Context, key string, values ...any) *redis.IntCmd
}

// RedisPublisher ставит уведомления в очередь Redis
type RedisPublisher struct {
	redisClient listPusher
	now         func() time.Time
}

// NewRedisPublisher создает новый RedisPublisher
func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return newRedisPublisher(client)
}

func newRedisPublisher(client listPusher) *RedisPublisher {
	return &RedisPublisher{
		redisClient: client,
		now:         time.Now,
	}
}

// Notify публикует уведомление в очередь Redis
func (p *RedisPublisher) Notify(ctx context.Context, user *models.User, event string, payload map[string]string) error {
	if user == nil {
		return fmt.Errorf("notification recipient is required")
	}
	msg := Event{
		UserID:       user.ID,
		Username:     user.Username,
		Email:        user.Email,
		Phone:        user.PhoneNumber,
		EmailEnabled: user.EmailNotifications,
		SMSEnabled:   user.SMSNotifications,
		Type:         event,
		Payload:      payload,
		Timestamp:    p.now().UTC(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal notification event: %w", err)
	}

	// LPUSH добавляет событие в левую часть списка, воркер забирает справа
	if err := p.redisClient.LPush(ctx, queueKey, data).Err(); err != nil {
		return fmt.Errorf("failed to publish notification event to Redis: %w", err)
	}
	return nil
}
