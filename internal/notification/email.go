package notification

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
)

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailChannel отправляет уведомления по SMTP
type EmailChannel struct {
	addr     string
	auth     smtp.Auth
	from     string
	appURL   string
	sendMail sendMailFunc
}

// NewEmailChannel возвращает nil, если SMTP не настроен
func NewEmailChannel(host string, port int, username, password, from, appURL string) *EmailChannel {
	if host == "" {
		return nil
	}
	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &EmailChannel{
		addr:     net.JoinHostPort(host, strconv.Itoa(port)),
		auth:     auth,
		from:     from,
		appURL:   appURL,
		sendMail: smtp.SendMail,
	}
}

func (c *EmailChannel) Name() string { return "email" }

func (c *EmailChannel) Enabled(event Event) bool {
	return event.EmailEnabled && event.Email != ""
}

func (c *EmailChannel) Send(_ context.Context, event Event) error {
	subject, body := Render(event, c.appURL)
	msg := buildMessage(c.from, event.Email, subject, body)
	if err := c.sendMail(c.addr, c.auth, c.from, []string{event.Email}, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func buildMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}
