// internal/common/aws/ses.go
package aws

import (
	"context"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
)

type SESClient struct {
	client *ses.Client
}

// NewSESClient builds an SES client. endpoint is optional (LocalStack).
func NewSESClient(awsCfg awssdk.Config, endpoint string) *SESClient {
	return &SESClient{client: ses.NewFromConfig(awsCfg, func(o *ses.Options) {
		o.BaseEndpoint = endpointOverride(endpoint)
	})}
}

func (s *SESClient) SendEmail(ctx context.Context, input *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	return s.client.SendEmail(ctx, input, optFns...)
}
