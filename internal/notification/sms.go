package notification

import (
	"context"
	"fmt"

	"github.com/kavenegar/kavenegar-go"
)

type smsSender interface {
	Send(sender string, receptor []string, message string, params *kavenegar.MessageSendParam) ([]kavenegar.Message, error)
}

// SMSChannel отправляет уведомления через Kavenegar
type SMSChannel struct {
	api    smsSender
	sender string
}

// NewSMSChannel возвращает nil, если ключ API не задан
func NewSMSChannel(apiKey, sender string) *SMSChannel {
	if apiKey == "" {
		return nil
	}
	return &SMSChannel{api: kavenegar.New(apiKey).Message, sender: sender}
}

func (c *SMSChannel) Name() string { return "sms" }

func (c *SMSChannel) Enabled(event Event) bool {
	return event.SMSEnabled && event.Phone != ""
}

func (c *SMSChannel) Send(_ context.Context, event Event) error {
	res, err := c.api.Send(c.sender, []string{event.Phone}, ShortText(event), nil)
	if err != nil {
		switch err := err.(type) {
		case *kavenegar.APIError:
			return fmt.Errorf("kavenegar API error: %w", err)
		case *kavenegar.HTTPError:
			return fmt.Errorf("kavenegar HTTP error: %w", err)
		default:
			return fmt.Errorf("failed to send SMS: %w", err)
		}
	}
	if len(res) == 0 {
		return fmt.Errorf("no response entries from Kavenegar")
	}
	return nil
}
