// internal/workers/notification/submit-notification/handler.go
package submitnotification

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"notification-engine/internal/common/errors"
	"notification-engine/internal/common/logger"
	"notification-engine/internal/common/metrics"
	"notification-engine/internal/common/validation"
	"notification-engine/internal/models"
)

const (
	TaskType = "submit-notification"
)

// Submitter is satisfied by *engine.Engine.
type Submitter interface {
	Submit(ctx context.Context, ev models.NotificationEvent) (models.SubmitResult, error)
}

type Handler struct {
	config     *Config
	submitter  Submitter
	schema     *validation.Schema
	errHandler *errors.ErrorHandler
	logger     logger.Logger
}

// NewHandler builds the worker. schema may be nil when the registry declares none.
func NewHandler(config *Config, submitter Submitter, schema *validation.Schema, log logger.Logger) *Handler {
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     config,
		submitter:  submitter,
		schema:     schema,
		errHandler: errors.NewErrorHandler(l),
		logger:     l,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	input, err := h.parse(job.Variables)
	if err != nil {
		h.fail(ctx, client, job, err)
		return
	}

	output, err := h.Execute(ctx, input)
	if err != nil {
		h.fail(ctx, client, job, err)
		return
	}

	h.completeJob(ctx, client, job, output)
}

// parse validates the raw variables against the registry schema before decoding them.
func (h *Handler) parse(variables string) (*Input, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(variables), &raw); err != nil {
		return nil, errors.NewPayloadSchemaInvalidError(fmt.Sprintf("parse variables: %v", err))
	}

	if h.schema != nil {
		if res := h.schema.ValidateInput(raw); !res.Valid {
			return nil, errors.NewPayloadSchemaInvalidError(strings.Join(res.GetErrorMessages(), "; "))
		}
	}

	var input Input
	if err := json.Unmarshal([]byte(variables), &input); err != nil {
		return nil, errors.NewPayloadSchemaInvalidError(fmt.Sprintf("decode variables: %v", err))
	}
	return &input, nil
}

// Execute submits the event. Suppressions are successful jobs; engine failures are returned so the
// error handler can decide between retry and BPMN error.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	var occurredAt time.Time
	if input.OccurredAt != "" {
		t, err := time.Parse(time.RFC3339Nano, input.OccurredAt)
		if err != nil {
			return nil, errors.NewInvalidEventError(fmt.Sprintf("occurredAt: %v", err))
		}
		occurredAt = t
	}

	source := input.SourceTrigger
	if source == "" {
		source = h.config.Source
	}

	res, err := h.submitter.Submit(ctx, models.NotificationEvent{
		JobID:         input.JobID,
		RecipientKeys: input.RecipientKeys,
		EventType:     models.EventType(input.EventType),
		Priority:      models.Priority(input.Priority),
		Payload:       input.Payload,
		OccurredAt:    occurredAt,
		SourceTrigger: source,
	})
	if err != nil {
		return nil, err
	}

	return &Output{
		AuditID:     res.AuditID,
		Outcome:     string(res.Outcome),
		Reason:      res.Reason,
		Fingerprint: res.Fingerprint,
		RecipientID: res.RecipientID,
		Channel:     string(res.Channel),
		DeliveryID:  res.DeliveryID,
	}, nil
}

func (h *Handler) fail(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(errors.CodeOf(err))).Inc()
	h.errHandler.HandleJobError(ctx, client, job, err)
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	h.logger.Info("job completed", map[string]interface{}{
		"jobKey":  job.Key,
		"outcome": output.Outcome,
	})
}
