package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Channel - способ доставки уведомления
type Channel interface {
	Name() string
	Enabled(event Event) bool
	Send(ctx context.Context, event Event) error
}

type queueReader interface {
	BRPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
}

// Worker забирает уведомления из очереди Redis и рассылает их по каналам
type Worker struct {
	redisClient queueReader
	channels    []Channel
	logger      *logrus.Logger
	retryDelay  time.Duration
	done        chan struct{}
}

// NewWorker создает новый Worker
func NewWorker(redisClient *redis.Client, logger *logrus.Logger, retryDelay time.Duration, channels ...Channel) *Worker {
	return newWorker(redisClient, logger, retryDelay, channels...)
}

func newWorker(redisClient queueReader, logger *logrus.Logger, retryDelay time.Duration, channels ...Channel) *Worker {
	return &Worker{
		redisClient: redisClient,
		channels:    channels,
		logger:      logger,
		retryDelay:  retryDelay,
		done:        make(chan struct{}),
	}
}

// Start запускает горутину для обработки очереди уведомлений
func (w *Worker) Start(ctx context.Context) {
	names := make([]string, 0, len(w.channels))
	for _, ch := range w.channels {
		names = append(names, ch.Name())
	}
	w.logger.WithField("channels", names).Info("Starting notification worker...")

	go func() {
		defer close(w.done)
		for {
			select {
			case <-ctx.Done():
				w.logger.Info("Stopping notification worker.")
				return
			default:
			}

			// BRPOP - блокирующее извлечение из правой части списка (очереди)
			result, err := w.redisClient.BRPop(ctx, 0, queueKey).Result()
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, redis.Nil) {
					continue
				}
				w.logger.WithError(err).Error("Failed to pop notification event from Redis")
				select {
				case <-ctx.Done():
				case <-time.After(w.retryDelay):
				}
				continue
			}

			// result[0] - ключ, result[1] - значение
			var event Event
			if err := json.Unmarshal([]byte(result[1]), &event); err != nil {
				w.logger.WithError(err).Error("Failed to unmarshal notification event from Redis")
				continue
			}
			_ = w.Dispatch(ctx, event)
		}
	}()
}

// Done закрывается после остановки воркера
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Dispatch отправляет событие во все подходящие каналы. Сбой одного канала
// не мешает остальным.
func (w *Worker) Dispatch(ctx context.Context, event Event) error {
	log := w.logger.WithFields(logrus.Fields{
		"user_id": event.UserID,
		"event":   event.Type,
	})
	log.Debug("Processing notification event...")

	var errs []error
	for _, ch := range w.channels {
		if !ch.Enabled(event) {
			continue
		}
		if err := ch.Send(ctx, event); err != nil {
			log.WithError(err).WithField("channel", ch.Name()).Error("Failed to deliver notification")
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
			continue
		}
		log.WithField("channel", ch.Name()).Info("Notification delivered")
	}
	return errors.Join(errs...)
}
