package notification

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// WebhookChannel пересылает каждое уведомление на внешний URL с HMAC-подписью
type WebhookChannel struct {
	url        string
	secret     string
	maxRetries int
	baseDelay  time.Duration
	httpClient *http.Client
	logger     *logrus.Logger
	sleep      func(time.Duration)
}

// NewWebhookChannel возвращает nil, если URL не настроен
func NewWebhookChannel(url, secret string, timeout time.Duration, maxRetries int, baseDelay time.Duration, logger *logrus.Logger) *WebhookChannel {
	if url == "" {
		return nil
	}
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &WebhookChannel{
		url:        url,
		secret:     secret,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		sleep:      time.Sleep,
	}
}

func (c *WebhookChannel) Name() string { return "webhook" }

func (c *WebhookChannel) Enabled(Event) bool { return true }

// Send доставляет событие с экспоненциальной задержкой между попытками
func (c *WebhookChannel) Send(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}
	log := c.logger.WithFields(logrus.Fields{"channel": "webhook", "user_id": event.UserID})

	delay := c.baseDelay
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if i > 0 {
			c.sleep(delay)
			delay *= 2 // Экспоненциальная задержка
		}
		if lastErr = c.post(ctx, payload); lastErr == nil {
			log.Debug("Webhook delivered successfully.")
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.WithError(lastErr).Warnf("Webhook delivery failed. Retries left: %d", c.maxRetries-1-i)
	}
	return fmt.Errorf("webhook delivery failed after %d attempts: %w", c.maxRetries, lastErr)
}

func (c *WebhookChannel) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	// Добавляем HMAC подпись, если секрет задан
	if c.secret != "" {
		req.Header.Set("X-Webhook-Signature", Sign(payload, c.secret))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}
	return nil
}

// Sign генерирует HMAC-SHA256 подпись для данных
func Sign(data []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
