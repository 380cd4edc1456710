package notification

import (
	"fmt"
	"strings"
)

// Render собирает тему и текст уведомления. appURL - адрес клиентского
// приложения для ссылки на инцидент, может быть пустым.
func Render(event Event, appURL string) (subject, body string) {
	p := event.Payload
	switch event.Type {
	case "incident.status_changed":
		subject = fmt.Sprintf("Incident %q: status changed to %s", p["title"], humanStatus(p["new_status"]))
		body = fmt.Sprintf("Hello %s,\n\nthe status of your incident %q changed from %s to %s.",
			event.Username, p["title"], humanStatus(p["old_status"]), humanStatus(p["new_status"]))
	default:
		subject = fmt.Sprintf("Notification: %s", event.Type)
		body = fmt.Sprintf("Hello %s,\n\nyou have a new notification (%s).", event.Username, event.Type)
	}
	if id := p["incident_id"]; id != "" && appURL != "" {
		body += fmt.Sprintf("\n\nView incident: %s/incidents/%s", strings.TrimRight(appURL, "/"), id)
	}
	return subject, body
}

// ShortText - текст для SMS
func ShortText(event Event) string {
	p := event.Payload
	if event.Type == "incident.status_changed" {
		return fmt.Sprintf("Incident %q is now %s", p["title"], humanStatus(p["new_status"]))
	}
	return fmt.Sprintf("New notification: %s", event.Type)
}

func humanStatus(s string) string {
	return strings.ReplaceAll(s, "_", " ")
}
