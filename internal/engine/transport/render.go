package transport

import (
	"fmt"
	"strings"

	"notification-engine/internal/models"
)

type template struct {
	title string
	body  string
}

// defaultTemplates are used when the payload carries no title/body of its own.
var defaultTemplates = map[models.EventType]template{
	models.EventAssigned:      {"New job assigned", "Job {{jobId}} has been assigned to you."},
	models.EventUpdated:       {"Job updated", "Job {{jobId}} was updated."},
	models.EventRescheduled:   {"Job rescheduled", "Job {{jobId}} has a new schedule{{scheduledFor}}."},
	models.EventReminder:      {"Reminder", "Job {{jobId}} is coming up."},
	models.EventCompleted:     {"Job completed", "Job {{jobId}} was marked completed."},
	models.EventCancelled:     {"Job cancelled", "Job {{jobId}} was cancelled."},
	models.EventStatusChanged: {"Job status changed", "Job {{jobId}} is now {{status}}."},
}

// Render returns the title and body for msg. Payload "title" and "body" win over the defaults;
// placeholders are filled from the payload plus jobId, and unknown placeholders are dropped.
func Render(msg Message) (string, string) {
	tmpl := defaultTemplates[msg.EventType]
	title, body := tmpl.title, tmpl.body
	if s, ok := msg.Payload["title"].(string); ok && s != "" {
		title = s
	}
	if s, ok := msg.Payload["body"].(string); ok && s != "" {
		body = s
	}

	data := make(map[string]interface{}, len(msg.Payload)+1)
	for k, v := range msg.Payload {
		data[k] = v
	}
	data["jobId"] = msg.JobID
	if when, ok := data["scheduledFor"].(string); ok && when != "" {
		data["scheduledFor"] = " for " + when
	}

	return renderTemplate(title, data), renderTemplate(body, data)
}

// renderTemplate fills {{key}} placeholders in one pass over tmpl. Substituted values are never
// scanned again, and placeholders without a value render empty.
func renderTemplate(tmpl string, data map[string]interface{}) string {
	var b strings.Builder
	rest := tmpl
	for {
		start := strings.Index(rest, "{{")
		if start == -1 {
			break
		}
		end := strings.Index(rest[start:], "}}")
		if end == -1 {
			break
		}
		b.WriteString(rest[:start])
		b.WriteString(placeholderValue(data[rest[start+2:start+end]]))
		rest = rest[start+end+2:]
	}
	b.WriteString(rest)
	return b.String()
}

func placeholderValue(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}
