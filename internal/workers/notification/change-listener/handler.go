// internal/workers/notification/change-listener/handler.go
package changelistener

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"notification-engine/internal/common/errors"
	"notification-engine/internal/common/logger"
	"notification-engine/internal/common/metrics"
	"notification-engine/internal/models"
)

const (
	TaskType      = "change-listener"
	SourceTrigger = "listener"
)

// Submitter is satisfied by *engine.Engine.
type Submitter interface {
	Submit(ctx context.Context, ev models.NotificationEvent) (models.SubmitResult, error)
}

// Listener subscribes to the job change channel and turns every message into a Submit.
type Listener struct {
	config    *Config
	rdb       *redis.Client
	submitter Submitter
	logger    logger.Logger
}

func NewListener(config *Config, rdb *redis.Client, submitter Submitter, log logger.Logger) *Listener {
	return &Listener{
		config:    config,
		rdb:       rdb,
		submitter: submitter,
		logger:    log.WithFields(map[string]interface{}{"taskType": TaskType, "channel": config.Channel}),
	}
}

// Run blocks until ctx is cancelled or the subscription is closed.
func (l *Listener) Run(ctx context.Context) error {
	sub := l.rdb.Subscribe(ctx, l.config.Channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", l.config.Channel, err)
	}
	l.logger.Info("listening for job changes", nil)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			l.HandleMessage(ctx, msg.Payload)
		}
	}
}

// HandleMessage decodes and submits one change. Errors are logged and counted; there is no
// redelivery on a pub/sub channel, the other trigger paths cover a lost message.
func (l *Listener) HandleMessage(ctx context.Context, payload string) (models.SubmitResult, error) {
	var change Change
	if err := json.Unmarshal([]byte(payload), &change); err != nil {
		stdErr := errors.NewPayloadSchemaInvalidError(fmt.Sprintf("decode change: %v", err))
		l.record(stdErr)
		return models.SubmitResult{Outcome: models.OutcomeFailed}, stdErr
	}

	ctx, cancel := context.WithTimeout(ctx, l.config.Timeout)
	defer cancel()

	res, err := l.submitter.Submit(ctx, models.NotificationEvent{
		JobID:         change.JobID,
		RecipientKeys: change.RecipientKeys,
		EventType:     models.EventType(change.EventType),
		Priority:      models.Priority(change.Priority),
		Payload:       change.Payload,
		OccurredAt:    change.ChangedAt,
		SourceTrigger: SourceTrigger,
	})
	l.record(err)
	if err != nil {
		return res, err
	}

	l.logger.Debug("change submitted", map[string]interface{}{
		"jobId":   change.JobID,
		"outcome": res.Outcome,
	})
	return res, nil
}

func (l *Listener) record(err error) {
	if err == nil {
		metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
		return
	}
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(errors.CodeOf(err))).Inc()
	l.logger.Error("change not submitted", map[string]interface{}{
		"error": err.Error(),
	})
}
