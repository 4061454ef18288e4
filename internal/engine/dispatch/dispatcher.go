// Package dispatch picks a channel policy for an admitted notification and hands it to the sender
// bound to that channel.
package dispatch

import (
	"context"
	"fmt"

	"notification-engine/internal/common/config"
	"notification-engine/internal/common/logger"
	"notification-engine/internal/engine/transport"
	"notification-engine/internal/models"
)

type Status string

const (
	Delivered Status = "delivered"
	Failed    Status = "failed"
)

// Request is one admitted notification ready to go out.
type Request struct {
	DeliveryID  string
	Fingerprint string
	JobID       string
	Recipient   models.CanonicalRecipient
	EventType   models.EventType
	Priority    models.Priority
	Payload     map[string]interface{}
}

// Result is what Deliver reports. Transport errors are folded into a Failed result; Err keeps the
// cause for logging and error mapping.
type Result struct {
	Status            Status
	Channel           models.Channel
	Sender            string
	ProviderMessageID string
	Reason            string
	Err               error
}

func (r Result) Delivered() bool { return r.Status == Delivered }

// Dispatcher is safe for concurrent use.
type Dispatcher struct {
	channels map[models.Priority]models.Channel
	senders  map[models.Channel]transport.Sender
	log      logger.Logger
}

func New(channels map[models.Priority]models.Channel, senders map[models.Channel]transport.Sender, log logger.Logger) (*Dispatcher, error) {
	for _, p := range models.Priorities() {
		ch, ok := channels[p]
		if !ok {
			return nil, fmt.Errorf("dispatch: no channel for priority %q", p)
		}
		if _, ok := senders[ch]; !ok {
			return nil, fmt.Errorf("dispatch: no sender bound to channel %q", ch)
		}
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Dispatcher{channels: channels, senders: senders, log: log.Named("dispatch")}, nil
}

// ChannelFor returns the channel policy for a priority.
func (d *Dispatcher) ChannelFor(p models.Priority) (models.Channel, bool) {
	ch, ok := d.channels[p]
	return ch, ok
}

// Deliver makes exactly one transport call. It never retries: the event is already admitted for its
// window, so a second attempt is the caller's decision.
func (d *Dispatcher) Deliver(ctx context.Context, req Request) Result {
	ch, ok := d.channels[req.Priority]
	if !ok {
		err := fmt.Errorf("dispatch: no channel for priority %q", req.Priority)
		return Result{Status: Failed, Reason: err.Error(), Err: err}
	}
	sender := d.senders[ch]

	receipt, err := sender.Send(ctx, transport.Message{
		DeliveryID:  req.DeliveryID,
		Fingerprint: req.Fingerprint,
		JobID:       req.JobID,
		Recipient:   req.Recipient,
		EventType:   req.EventType,
		Priority:    req.Priority,
		Channel:     ch,
		Payload:     req.Payload,
	})
	if err != nil {
		d.log.Warn("Delivery failed", map[string]interface{}{
			"deliveryId":  req.DeliveryID,
			"recipientId": req.Recipient.RecipientID,
			"channel":     string(ch),
			"sender":      sender.Name(),
			"error":       err,
		})
		return Result{Status: Failed, Channel: ch, Sender: sender.Name(), Reason: err.Error(), Err: err}
	}

	return Result{
		Status:            Delivered,
		Channel:           ch,
		Sender:            sender.Name(),
		ProviderMessageID: receipt.ProviderMessageID,
	}
}

// ChannelsFromConfig converts engine.dispatch.channels.
func ChannelsFromConfig(cfg map[string]string) (map[models.Priority]models.Channel, error) {
	out := make(map[models.Priority]models.Channel, len(cfg))
	for _, p := range models.Priorities() {
		name, ok := cfg[string(p)]
		if !ok {
			return nil, fmt.Errorf("dispatch: no channel configured for priority %q", p)
		}
		ch := models.Channel(name)
		switch ch {
		case models.ChannelModal, models.ChannelBanner, models.ChannelSilent:
		default:
			return nil, fmt.Errorf("dispatch: unknown channel %q for priority %q", name, p)
		}
		out[p] = ch
	}
	return out, nil
}

// SenderSet holds the constructed transports; nil members are not available.
type SenderSet struct {
	SNS transport.Sender
	SQS transport.Sender
	SES transport.Sender
	Log transport.Sender
}

func (s SenderSet) byName(name string) transport.Sender {
	switch name {
	case transport.SenderSNS:
		return s.SNS
	case transport.SenderSQS:
		return s.SQS
	case transport.SenderSES:
		return s.SES
	case transport.SenderLog:
		return s.Log
	}
	return nil
}

// BindSenders resolves engine.dispatch.senders against the constructed transports.
func BindSenders(cfg config.DispatchConfig, set SenderSet) (map[models.Channel]transport.Sender, error) {
	out := make(map[models.Channel]transport.Sender, len(cfg.Senders))
	for channel, name := range cfg.Senders {
		s := set.byName(name)
		if s == nil {
			return nil, fmt.Errorf("dispatch: sender %q for channel %q is not available", name, channel)
		}
		out[models.Channel(channel)] = s
	}
	return out, nil
}

// SendersNeeded lists which transports the configuration refers to.
func SendersNeeded(cfg config.DispatchConfig) map[string]bool {
	needed := make(map[string]bool, len(cfg.Senders))
	for _, name := range cfg.Senders {
		needed[name] = true
	}
	return needed
}
