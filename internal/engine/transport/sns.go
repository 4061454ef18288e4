package transport

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// SNSAPI is satisfied by *sns.Client and the common aws.SNSClient wrapper.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSSender publishes push notifications to a topic that fans out to device endpoints.
type SNSSender struct {
	api      SNSAPI
	topicARN string
	pacer    *Pacer
}

var _ Sender = (*SNSSender)(nil)

func NewSNSSender(api SNSAPI, topicARN string, pacer *Pacer) *SNSSender {
	return &SNSSender{api: api, topicARN: topicARN, pacer: pacer}
}

func (s *SNSSender) Name() string { return SenderSNS }

func (s *SNSSender) Send(ctx context.Context, msg Message) (Receipt, error) {
	body, err := encodeEnvelope(msg)
	if err != nil {
		return Receipt{}, fmt.Errorf("sns: encode: %w", err)
	}
	if err := s.pacer.Wait(ctx); err != nil {
		return Receipt{}, fmt.Errorf("sns: pacing: %w", err)
	}

	in := &sns.PublishInput{
		TopicArn: aws.String(s.topicARN),
		Message:  aws.String(body),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"recipientId": stringAttr(msg.Recipient.RecipientID),
			"channel":     stringAttr(string(msg.Channel)),
			"eventType":   stringAttr(string(msg.EventType)),
			"priority":    stringAttr(string(msg.Priority)),
		},
	}
	if isFIFO(s.topicARN) {
		in.MessageGroupId = aws.String(msg.Recipient.RecipientID)
		in.MessageDeduplicationId = aws.String(msg.Fingerprint)
	}

	out, err := s.api.Publish(ctx, in)
	if err != nil {
		return Receipt{}, fmt.Errorf("sns: publish: %w", err)
	}
	return Receipt{ProviderMessageID: aws.ToString(out.MessageId)}, nil
}

func stringAttr(v string) types.MessageAttributeValue {
	return types.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(v)}
}
