// Package engine runs every notification event through the same pipeline no matter which trigger
// observed it: resolve the recipient, admit the fingerprint once, spend rate budget, deliver, audit.
package engine

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"notification-engine/internal/common/clock"
	"notification-engine/internal/common/config"
	"notification-engine/internal/common/errors"
	"notification-engine/internal/common/logger"
	"notification-engine/internal/common/metrics"
	"notification-engine/internal/common/observability"
	"notification-engine/internal/engine/audit"
	"notification-engine/internal/engine/dedup"
	"notification-engine/internal/engine/dispatch"
	"notification-engine/internal/engine/fingerprint"
	"notification-engine/internal/engine/identity"
	"notification-engine/internal/engine/ratelimit"
	"notification-engine/internal/models"
)

// Stage names used for timing metrics and span events.
const (
	StageValidate = "validate"
	StageResolve  = "resolve"
	StageDedup    = "dedup"
	StageRate     = "rate"
	StageDispatch = "dispatch"
	StageAudit    = "audit"
)

// Deliverer is satisfied by *dispatch.Dispatcher.
type Deliverer interface {
	Deliver(ctx context.Context, req dispatch.Request) dispatch.Result
}

// Janitor is a backend with a background reaper, started by Start.
type Janitor interface {
	StartJanitor(ctx context.Context, interval time.Duration)
}

type ScheduledJanitor struct {
	Name     string
	Janitor  Janitor
	Interval time.Duration
}

// Options wires an Engine. Resolver, Fingerprints, Dedup, Limiter, Dispatcher and Audit are required.
type Options struct {
	Resolver      *identity.Resolver
	Fingerprints  *fingerprint.Builder
	Dedup         dedup.Store
	Limiter       ratelimit.Limiter
	Dispatcher    Deliverer
	Audit         audit.Sink
	DedupTTL      time.Duration
	Timeouts      config.TimeoutsConfig
	Clock         clock.Clock
	Logger        logger.Logger
	Observability *observability.Observability
	Janitors      []ScheduledJanitor
	NewDeliveryID func() string
}

type Engine struct {
	resolver     *identity.Resolver
	fingerprints *fingerprint.Builder
	dedup        dedup.Store
	limiter      ratelimit.Limiter
	dispatcher   Deliverer
	audit        audit.Sink
	ttl          time.Duration
	timeouts     config.TimeoutsConfig
	clock        clock.Clock
	log          logger.Logger
	obs          *observability.Observability
	validate     *validator.Validate
	janitors     []ScheduledJanitor
	newDelivery  func() string
}

func New(opts Options) (*Engine, error) {
	switch {
	case opts.Resolver == nil:
		return nil, fmt.Errorf("engine: resolver is required")
	case opts.Fingerprints == nil:
		return nil, fmt.Errorf("engine: fingerprint builder is required")
	case opts.Dedup == nil:
		return nil, fmt.Errorf("engine: dedup store is required")
	case opts.Limiter == nil:
		return nil, fmt.Errorf("engine: rate limiter is required")
	case opts.Dispatcher == nil:
		return nil, fmt.Errorf("engine: dispatcher is required")
	case opts.Audit == nil:
		return nil, fmt.Errorf("engine: audit sink is required")
	}

	ttl := opts.DedupTTL
	if ttl <= 0 {
		ttl = 2 * opts.Fingerprints.Window()
	}
	if ttl < opts.Fingerprints.Window() {
		return nil, fmt.Errorf("engine: dedup ttl %s is shorter than the window %s", ttl, opts.Fingerprints.Window())
	}

	timeouts := opts.Timeouts
	if timeouts.Dedup <= 0 {
		timeouts.Dedup = 500 * time.Millisecond
	}
	if timeouts.Rate <= 0 {
		timeouts.Rate = 500 * time.Millisecond
	}
	if timeouts.Dispatch <= 0 {
		timeouts.Dispatch = 5 * time.Second
	}
	if timeouts.Audit <= 0 {
		timeouts.Audit = 2 * time.Second
	}

	clk := opts.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	newDelivery := opts.NewDeliveryID
	if newDelivery == nil {
		newDelivery = uuid.NewString
	}

	return &Engine{
		resolver:     opts.Resolver,
		fingerprints: opts.Fingerprints,
		dedup:        opts.Dedup,
		limiter:      opts.Limiter,
		dispatcher:   opts.Dispatcher,
		audit:        opts.Audit,
		ttl:          ttl,
		timeouts:     timeouts,
		clock:        clk,
		log:          log.Named("engine"),
		obs:          opts.Observability,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
		janitors:     opts.Janitors,
		newDelivery:  newDelivery,
	}, nil
}

// Start launches the background reapers of in-memory backends. They stop when ctx is done.
func (e *Engine) Start(ctx context.Context) {
	for _, j := range e.janitors {
		if j.Janitor == nil || j.Interval <= 0 {
			continue
		}
		j.Janitor.StartJanitor(ctx, j.Interval)
		e.log.Info("Janitor started", map[string]interface{}{
			"janitor":  j.Name,
			"interval": j.Interval.String(),
		})
	}
}

// run tracks one Submit call through its stages.
type run struct {
	entry  models.AuditEntry
	result models.SubmitResult
	log    logger.Logger
}

// Submit runs one event to a terminal outcome and audits it. Suppressions return a nil error;
// failures return a *errors.StandardError alongside the result.
func (e *Engine) Submit(ctx context.Context, ev models.NotificationEvent) (models.SubmitResult, error) {
	started := e.clock.Now()
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = started
	}

	source := ev.SourceTrigger
	if source == "" {
		source = "unknown"
	}

	ctx, span := e.obs.StartSpan(ctx, "notification.submit",
		attribute.String("job.id", ev.JobID),
		attribute.String("event.type", string(ev.EventType)),
		attribute.String("priority", string(ev.Priority)),
		attribute.String("source", source),
	)
	defer span.End()

	r := &run{
		entry: models.AuditEntry{
			JobID:         ev.JobID,
			EventType:     ev.EventType,
			Priority:      ev.Priority,
			SourceTrigger: ev.SourceTrigger,
		},
		log: e.log.With(map[string]interface{}{
			"jobId":     ev.JobID,
			"eventType": string(ev.EventType),
			"priority":  string(ev.Priority),
			"source":    source,
		}),
	}

	res, err := e.process(ctx, r, ev)

	span.SetAttributes(attribute.String("outcome", string(res.Outcome)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(errors.CodeOf(err)))
	}
	metrics.NotificationsSubmitted.WithLabelValues(string(res.Outcome), source).Inc()
	e.obs.RecordProcessed(ctx, string(res.Outcome), source)
	e.obs.RecordDuration(ctx, e.clock.Now().Sub(started), string(res.Outcome))

	return res, err
}

func (e *Engine) process(ctx context.Context, r *run, ev models.NotificationEvent) (models.SubmitResult, error) {
	// Validating
	stop := e.stage(ctx, StageValidate)
	verr := e.validateEvent(ev)
	stop()
	if verr != nil {
		return e.finish(ctx, r, models.OutcomeFailed, "invalid event: "+verr.Details, verr)
	}

	// Resolving
	stop = e.stage(ctx, StageResolve)
	recipient, err := e.resolver.Resolve(ev.RecipientKeys)
	stop()
	if err != nil {
		rerr, ok := errors.AsStandardError(err)
		if !ok {
			rerr = errors.NewInvalidRecipientError(err.Error())
		}
		return e.finish(ctx, r, models.OutcomeFailed, "invalid recipient: "+rerr.Details, rerr)
	}

	fp := e.fingerprints.Build(ev.JobID, recipient.RecipientID, ev.EventType, ev.OccurredAt)
	r.entry.Fingerprint = fp.String()
	r.entry.RecipientID = recipient.RecipientID
	r.log = r.log.With(map[string]interface{}{
		"fingerprint": fp.Short(),
		"recipientId": recipient.RecipientID,
	})

	// DedupChecking
	decision, err := e.admit(ctx, fp)
	if err != nil {
		metrics.NotificationStoreErrors.WithLabelValues(StageDedup).Inc()
		r.log.Error("Dedup store unavailable, failing closed", map[string]interface{}{"error": err})
		// The write may have landed even though the reply did not.
		if decision.Record.Token != "" {
			e.release(r, decision.Record)
		}
		return e.finish(ctx, r, models.OutcomeFailed, "dedup store unavailable", errors.NewDedupUnavailableError(err))
	}
	if !decision.Admitted() {
		reason := "duplicate within dedup window"
		if !decision.Record.FirstSeenAt.IsZero() {
			reason = fmt.Sprintf("duplicate of event first seen at %s", decision.Record.FirstSeenAt.UTC().Format(time.RFC3339Nano))
		}
		r.log.Info("Duplicate suppressed", nil)
		return e.finish(ctx, r, models.OutcomeSuppressedDuplicate, reason, nil)
	}

	// RateChecking
	rate, err := e.consume(ctx, recipient.RecipientID, ev.Priority, fp.String())
	if err != nil {
		metrics.NotificationStoreErrors.WithLabelValues(StageRate).Inc()
		r.log.Error("Rate limiter unavailable, failing closed", map[string]interface{}{"error": err})
		e.release(r, decision.Record)
		return e.finish(ctx, r, models.OutcomeFailed, "rate limiter unavailable", errors.NewRateLimiterUnavailableError(err))
	}
	if !rate.Allowed() {
		reason := fmt.Sprintf("rate limit reached: %d of %d in %s", rate.Bucket.Count, rate.Bucket.Max, rate.Bucket.Window)
		r.log.Info("Rate limited", map[string]interface{}{"count": rate.Bucket.Count, "max": rate.Bucket.Max})
		return e.finish(ctx, r, models.OutcomeSuppressedRateLimited, reason, nil)
	}

	// Dispatching
	deliveryID := e.newDelivery()
	r.entry.DeliveryID = deliveryID
	r.result.DeliveryID = deliveryID

	dctx, cancel := context.WithTimeout(ctx, e.timeouts.Dispatch)
	stop = e.stage(ctx, StageDispatch)
	delivery := e.dispatcher.Deliver(dctx, dispatch.Request{
		DeliveryID:  deliveryID,
		Fingerprint: fp.String(),
		JobID:       ev.JobID,
		Recipient:   recipient,
		EventType:   ev.EventType,
		Priority:    ev.Priority,
		Payload:     ev.Payload,
	})
	stop()
	cancel()

	r.entry.Channel = delivery.Channel
	r.result.Channel = delivery.Channel
	if !delivery.Delivered() {
		cause := delivery.Err
		if cause == nil {
			cause = stderrors.New(delivery.Reason)
		}
		return e.finish(ctx, r, models.OutcomeFailed, "delivery failed: "+delivery.Reason,
			errors.NewDeliveryFailedError(string(delivery.Channel), cause))
	}

	r.result.ProviderMessageID = delivery.ProviderMessageID
	r.log.Info("Notification delivered", map[string]interface{}{
		"deliveryId": deliveryID,
		"channel":    string(delivery.Channel),
		"sender":     delivery.Sender,
	})
	return e.finish(ctx, r, models.OutcomeDelivered, "", nil)
}

func (e *Engine) validateEvent(ev models.NotificationEvent) *errors.StandardError {
	err := e.validate.Struct(ev)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if stderrors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
		return errors.NewInvalidEventError(strings.Join(fields, "; "))
	}
	return errors.NewInvalidEventError(err.Error())
}

func (e *Engine) admit(ctx context.Context, fp fingerprint.Fingerprint) (dedup.Decision, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeouts.Dedup)
	defer cancel()
	defer e.stage(ctx, StageDedup)()
	return e.dedup.TryAdmit(ctx, fp, e.ttl)
}

func (e *Engine) consume(ctx context.Context, recipientID string, p models.Priority, member string) (ratelimit.Decision, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeouts.Rate)
	defer cancel()
	defer e.stage(ctx, StageRate)()
	return e.limiter.TryConsume(ctx, recipientID, p, member)
}

// release gives the fingerprint back so the caller's retry of the whole event is admitted. It runs
// detached from the request context, which may already be past its deadline.
func (e *Engine) release(r *run, rec models.DedupRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeouts.Dedup)
	defer cancel()
	if err := e.dedup.Release(ctx, rec); err != nil {
		r.log.Warn("Failed to release dedup record; retries will be suppressed until it expires", map[string]interface{}{
			"error":     err,
			"expiresAt": rec.ExpiresAt.Format(time.RFC3339),
		})
	}
}

// finish writes the single audit entry for this Submit and builds the result. A failed audit write
// turns the call into AUDIT_WRITE_FAILED whatever the outcome was.
func (e *Engine) finish(ctx context.Context, r *run, outcome models.Outcome, reason string, stageErr *errors.StandardError) (models.SubmitResult, error) {
	now := e.clock.Now()
	r.entry.ID = audit.NewID(now)
	r.entry.Outcome = outcome
	r.entry.Reason = reason
	r.entry.Timestamp = now

	res := r.result
	res.AuditID = r.entry.ID
	res.Outcome = outcome
	res.Reason = reason
	res.Fingerprint = r.entry.Fingerprint
	res.RecipientID = r.entry.RecipientID
	res.CompletedAt = now

	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeouts.Audit)
	defer cancel()
	stop := e.stage(actx, StageAudit)
	auditErr := e.audit.Append(actx, r.entry)
	stop()

	if auditErr != nil {
		metrics.NotificationStoreErrors.WithLabelValues(StageAudit).Inc()
		r.log.Error("Audit write failed", map[string]interface{}{
			"auditId": r.entry.ID,
			"outcome": string(outcome),
			"error":   auditErr,
		})
		werr := errors.NewAuditWriteFailedError(auditErr).WithMetadata("outcome", string(outcome))
		if stageErr != nil {
			werr = werr.WithMetadata("stageErrorCode", string(stageErr.Code))
		}
		res.ErrorCode = string(werr.Code)
		return res, werr
	}

	if stageErr != nil {
		res.ErrorCode = string(stageErr.Code)
		r.log.Warn("Notification failed", map[string]interface{}{
			"auditId":   r.entry.ID,
			"errorCode": string(stageErr.Code),
			"details":   stageErr.Details,
		})
		return res, stageErr
	}
	return res, nil
}

// stage times one pipeline stage and marks it on the current span; call the returned func when it
// ends.
func (e *Engine) stage(ctx context.Context, name string) func() {
	trace.SpanFromContext(ctx).AddEvent(name)
	start := time.Now()
	return func() {
		metrics.NotificationStageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}
}

// SubmitAll submits each event concurrently and returns results in input order. A failing event does
// not stop the others; the first error is returned after all have finished.
func (e *Engine) SubmitAll(ctx context.Context, events []models.NotificationEvent) ([]models.SubmitResult, error) {
	results := make([]models.SubmitResult, len(events))
	var g errgroup.Group
	for i, ev := range events {
		i, ev := i, ev
		g.Go(func() error {
			res, err := e.Submit(ctx, ev)
			results[i] = res
			return err
		})
	}
	return results, g.Wait()
}

// Inspection is the diagnostic view of one fingerprint.
type Inspection struct {
	Fingerprint string              `json:"fingerprint"`
	Live        bool                `json:"live"`
	Record      *models.DedupRecord `json:"record,omitempty"`
	Trail       []models.AuditEntry `json:"trail,omitempty"`
}

// Inspect reports the live dedup record for fp and, when the audit sink can be read, its trail.
func (e *Engine) Inspect(ctx context.Context, fp fingerprint.Fingerprint) (Inspection, error) {
	out := Inspection{Fingerprint: fp.String()}

	lctx, cancel := context.WithTimeout(ctx, e.timeouts.Dedup)
	rec, found, err := e.dedup.Lookup(lctx, fp)
	cancel()
	if err != nil {
		return out, errors.NewDedupUnavailableError(err)
	}
	if found {
		out.Live = true
		out.Record = &rec
	}

	if reader, ok := e.audit.(audit.Reader); ok {
		actx, cancel := context.WithTimeout(ctx, e.timeouts.Audit)
		defer cancel()
		trail, err := reader.ByFingerprint(actx, fp.String())
		if err != nil {
			return out, errors.NewAuditWriteFailedError(err)
		}
		out.Trail = trail
	}
	return out, nil
}

// Fingerprint exposes the builder for adapters that need to report the key of an event.
func (e *Engine) Fingerprint(jobID, recipientID string, eventType models.EventType, occurredAt time.Time) fingerprint.Fingerprint {
	return e.fingerprints.Build(jobID, recipientID, eventType, occurredAt)
}
