// internal/workers/notification/change-listener/models.go
package changelistener

import "time"

// Change is one message published by the real-time data listener when a job document changes.
type Change struct {
	JobID         string                 `json:"jobId"`
	RecipientKeys []string               `json:"recipientKeys"`
	EventType     string                 `json:"eventType"`
	Priority      string                 `json:"priority"`
	ChangedAt     time.Time              `json:"changedAt"`
	Payload       map[string]interface{} `json:"payload,omitempty"`
}
