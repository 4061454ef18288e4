package transport

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESSender emails the recipient at the address carried in payload "email".
type SESSender struct {
	api   SESAPI
	from  string
	pacer *Pacer
}

var _ Sender = (*SESSender)(nil)

func NewSESSender(api SESAPI, from string, pacer *Pacer) *SESSender {
	return &SESSender{api: api, from: from, pacer: pacer}
}

func (s *SESSender) Name() string { return SenderSES }

func (s *SESSender) Send(ctx context.Context, msg Message) (Receipt, error) {
	to, _ := msg.Payload["email"].(string)
	to = strings.TrimSpace(to)
	if to == "" {
		return Receipt{}, fmt.Errorf("ses: payload has no email address for %s", msg.Recipient.RecipientID)
	}
	if err := s.pacer.Wait(ctx); err != nil {
		return Receipt{}, fmt.Errorf("ses: pacing: %w", err)
	}

	subject, body := Render(msg)
	out, err := s.api.SendEmail(ctx, &ses.SendEmailInput{
		Source: aws.String(s.from),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
	})
	if err != nil {
		return Receipt{}, fmt.Errorf("ses: send: %w", err)
	}
	return Receipt{ProviderMessageID: aws.ToString(out.MessageId)}, nil
}
