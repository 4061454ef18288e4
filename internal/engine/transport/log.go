package transport

import (
	"context"

	"notification-engine/internal/common/logger"
)

// LogSender records the notification in the service log only. Used for the silent channel.
type LogSender struct {
	log logger.Logger
}

var _ Sender = (*LogSender)(nil)

func NewLogSender(log logger.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Name() string { return SenderLog }

func (s *LogSender) Send(ctx context.Context, msg Message) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	title, _ := Render(msg)
	s.log.Info("Notification recorded", map[string]interface{}{
		"deliveryId":  msg.DeliveryID,
		"fingerprint": msg.Fingerprint,
		"recipientId": msg.Recipient.RecipientID,
		"jobId":       msg.JobID,
		"eventType":   string(msg.EventType),
		"channel":     string(msg.Channel),
		"title":       title,
	})
	return Receipt{ProviderMessageID: "log-" + msg.DeliveryID}, nil
}
