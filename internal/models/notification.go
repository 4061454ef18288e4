// internal/models/notification.go
package models

import "time"

// EventType is the kind of job state change a notification is about.
type EventType string

const (
	EventAssigned      EventType = "assigned"
	EventUpdated       EventType = "updated"
	EventRescheduled   EventType = "rescheduled"
	EventReminder      EventType = "reminder"
	EventCompleted     EventType = "completed"
	EventCancelled     EventType = "cancelled"
	EventStatusChanged EventType = "status_changed"
)

// Priority selects both the rate tier and the channel policy.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Outcome is the terminal state recorded for every submitted event.
type Outcome string

const (
	OutcomeDelivered             Outcome = "delivered"
	OutcomeSuppressedDuplicate   Outcome = "suppressed_duplicate"
	OutcomeSuppressedRateLimited Outcome = "suppressed_rate_limited"
	OutcomeFailed                Outcome = "failed"
)

// Channel is a presentation policy the transport knows how to render.
type Channel string

const (
	ChannelModal  Channel = "modal"
	ChannelBanner Channel = "banner"
	ChannelSilent Channel = "silent"
)

func EventTypes() []EventType {
	return []EventType{
		EventAssigned, EventUpdated, EventRescheduled, EventReminder,
		EventCompleted, EventCancelled, EventStatusChanged,
	}
}

func Priorities() []Priority {
	return []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}
}

// NotificationEvent is the input unit of Submit. It only lives for the duration of one call.
type NotificationEvent struct {
	JobID         string                 `json:"jobId" validate:"required,max=128"`
	RecipientKeys []string               `json:"recipientKeys"`
	EventType     EventType              `json:"eventType" validate:"required,oneof=assigned updated rescheduled reminder completed cancelled status_changed"`
	Priority      Priority               `json:"priority" validate:"required,oneof=low medium high urgent"`
	Payload       map[string]interface{} `json:"payload,omitempty"`
	OccurredAt    time.Time              `json:"occurredAt"`
	SourceTrigger string                 `json:"sourceTrigger,omitempty" validate:"max=64"`
}

// CanonicalRecipient is the single identity used as the join key for dedup and rate limiting.
type CanonicalRecipient struct {
	RecipientID string `json:"recipientId"`
	Kind        string `json:"kind"`
	// Source is the raw key RecipientID was taken from.
	Source string `json:"source"`
}

type DedupRecord struct {
	Fingerprint string    `json:"fingerprint"`
	Token       string    `json:"token"`
	FirstSeenAt time.Time `json:"firstSeenAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Live reports whether the record still blocks admission at now.
func (r DedupRecord) Live(now time.Time) bool {
	return now.Before(r.ExpiresAt)
}

type RateBucket struct {
	RecipientID string        `json:"recipientId"`
	Tier        Priority      `json:"tier"`
	WindowStart time.Time     `json:"windowStart"`
	Window      time.Duration `json:"window"`
	Count       int           `json:"count"`
	Max         int           `json:"max"`
}

// Remaining is the budget left in the current window.
func (b RateBucket) Remaining() int {
	if b.Count >= b.Max {
		return 0
	}
	return b.Max - b.Count
}

// AuditEntry is append-only and never mutated once written.
type AuditEntry struct {
	ID            string    `json:"id"`
	Fingerprint   string    `json:"fingerprint"`
	RecipientID   string    `json:"recipientId"`
	JobID         string    `json:"jobId"`
	EventType     EventType `json:"eventType"`
	Outcome       Outcome   `json:"outcome"`
	Reason        string    `json:"reason,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	Priority      Priority  `json:"priority,omitempty"`
	SourceTrigger string    `json:"sourceTrigger,omitempty"`
	Channel       Channel   `json:"channel,omitempty"`
	DeliveryID    string    `json:"deliveryId,omitempty"`
}

// SubmitResult is what Submit returns to a trigger adapter.
type SubmitResult struct {
	AuditID           string    `json:"auditId"`
	Outcome           Outcome   `json:"outcome"`
	Reason            string    `json:"reason,omitempty"`
	ErrorCode         string    `json:"errorCode,omitempty"`
	Fingerprint       string    `json:"fingerprint,omitempty"`
	RecipientID       string    `json:"recipientId,omitempty"`
	Channel           Channel   `json:"channel,omitempty"`
	DeliveryID        string    `json:"deliveryId,omitempty"`
	ProviderMessageID string    `json:"providerMessageId,omitempty"`
	CompletedAt       time.Time `json:"completedAt"`
}
