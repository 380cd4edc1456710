// Package events публикует события жизненного цикла инцидентов во внешнюю шину.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// Message - конверт события в топике
type Message struct {
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher пишет события в топик Kafka
type KafkaPublisher struct {
	writer messageWriter
	logger *logrus.Logger
	now    func() time.Time
}

// NewKafkaPublisher создает продюсера для topic
func NewKafkaPublisher(brokers []string, topic string, logger *logrus.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	logger.WithFields(logrus.Fields{"brokers": brokers, "topic": topic}).Info("Kafka producer is ready")
	return newKafkaPublisher(writer, logger)
}

func newKafkaPublisher(writer messageWriter, logger *logrus.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, logger: logger, now: time.Now}
}

// Publish отправляет событие; ключ сообщения - действие
func (p *KafkaPublisher) Publish(ctx context.Context, action string, payload any) error {
	data, err := json.Marshal(Message{
		Action:    action,
		Timestamp: p.now().UTC(),
		Payload:   payload,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", action, err)
	}

	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(action), Value: data}); err != nil {
		return fmt.Errorf("failed to publish event %s to kafka: %w", action, err)
	}
	p.logger.WithField("action", action).Debug("Event published")
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Noop используется, когда брокеры не настроены
type Noop struct{}

func (Noop) Publish(context.Context, string, any) error { return nil }

func (Noop) Close() error { return nil }
