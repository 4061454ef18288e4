// internal/workers/notification/submit-notification/models.go
package submitnotification

// Input is read from the job variables.
type Input struct {
	JobID         string                 `json:"jobId"`
	RecipientKeys []string               `json:"recipientKeys"`
	EventType     string                 `json:"eventType"`
	Priority      string                 `json:"priority"`
	OccurredAt    string                 `json:"occurredAt,omitempty"` // RFC 3339
	Payload       map[string]interface{} `json:"payload,omitempty"`
	SourceTrigger string                 `json:"sourceTrigger,omitempty"`
}

// Output is merged into the process instance. Names are prefixed so they do not collide with the
// process's own variables.
type Output struct {
	AuditID     string `json:"notificationAuditId"`
	Outcome     string `json:"notificationOutcome"`
	Reason      string `json:"notificationReason,omitempty"`
	Fingerprint string `json:"notificationFingerprint,omitempty"`
	RecipientID string `json:"notificationRecipientId,omitempty"`
	Channel     string `json:"notificationChannel,omitempty"`
	DeliveryID  string `json:"notificationDeliveryId,omitempty"`
}
