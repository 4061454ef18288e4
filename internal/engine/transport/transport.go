// Package transport holds the outbound senders a channel policy can be bound to. Each Send performs
// exactly one provider call and never retries.
package transport

import (
	"context"
	"encoding/json"
	"strings"

	"golang.org/x/time/rate"

	"notification-engine/internal/models"
)

// Sender names accepted by engine.dispatch.senders.
const (
	SenderSNS = "sns"
	SenderSQS = "sqs"
	SenderSES = "ses"
	SenderLog = "log"
)

// Message is what a sender puts on the wire.
type Message struct {
	DeliveryID  string
	Fingerprint string
	JobID       string
	Recipient   models.CanonicalRecipient
	EventType   models.EventType
	Priority    models.Priority
	Channel     models.Channel
	Payload     map[string]interface{}
}

type Receipt struct {
	ProviderMessageID string
}

type Sender interface {
	Name() string
	Send(ctx context.Context, msg Message) (Receipt, error)
}

// envelope is the JSON body published to SNS and SQS consumers.
type envelope struct {
	DeliveryID  string                 `json:"deliveryId"`
	Fingerprint string                 `json:"fingerprint"`
	JobID       string                 `json:"jobId"`
	RecipientID string                 `json:"recipientId"`
	EventType   models.EventType       `json:"eventType"`
	Priority    models.Priority        `json:"priority"`
	Channel     models.Channel         `json:"channel"`
	Title       string                 `json:"title"`
	Body        string                 `json:"body"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
}

func encodeEnvelope(msg Message) (string, error) {
	title, body := Render(msg)
	b, err := json.Marshal(envelope{
		DeliveryID:  msg.DeliveryID,
		Fingerprint: msg.Fingerprint,
		JobID:       msg.JobID,
		RecipientID: msg.Recipient.RecipientID,
		EventType:   msg.EventType,
		Priority:    msg.Priority,
		Channel:     msg.Channel,
		Title:       title,
		Body:        body,
		Payload:     msg.Payload,
	})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Pacer spaces provider calls so a burst of admitted events stays under the provider's request
// quota. It waits instead of dropping; the stage deadline bounds the wait.
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer returns nil (no pacing) when perSecond is not positive.
func NewPacer(perSecond float64, burst int) *Pacer {
	if perSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &Pacer{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil {
		return nil
	}
	return p.limiter.Wait(ctx)
}

func isFIFO(arnOrURL string) bool {
	return strings.HasSuffix(arnOrURL, ".fifo")
}
