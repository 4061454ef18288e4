package transport

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSSender writes to the in-app inbox queue consumed by the mobile backend.
type SQSSender struct {
	api      SQSAPI
	queueURL string
	pacer    *Pacer
}

var _ Sender = (*SQSSender)(nil)

func NewSQSSender(api SQSAPI, queueURL string, pacer *Pacer) *SQSSender {
	return &SQSSender{api: api, queueURL: queueURL, pacer: pacer}
}

func (s *SQSSender) Name() string { return SenderSQS }

func (s *SQSSender) Send(ctx context.Context, msg Message) (Receipt, error) {
	body, err := encodeEnvelope(msg)
	if err != nil {
		return Receipt{}, fmt.Errorf("sqs: encode: %w", err)
	}
	if err := s.pacer.Wait(ctx); err != nil {
		return Receipt{}, fmt.Errorf("sqs: pacing: %w", err)
	}

	in := &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.queueURL),
		MessageBody: aws.String(body),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"recipientId": {DataType: aws.String("String"), StringValue: aws.String(msg.Recipient.RecipientID)},
			"channel":     {DataType: aws.String("String"), StringValue: aws.String(string(msg.Channel))},
		},
	}
	if isFIFO(s.queueURL) {
		in.MessageGroupId = aws.String(msg.Recipient.RecipientID)
		in.MessageDeduplicationId = aws.String(msg.Fingerprint)
	}

	out, err := s.api.SendMessage(ctx, in)
	if err != nil {
		return Receipt{}, fmt.Errorf("sqs: send: %w", err)
	}
	return Receipt{ProviderMessageID: aws.ToString(out.MessageId)}, nil
}
