package aws

import (
	"context"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// SQSClient feeds the in-app inbox queue.
type SQSClient struct {
	client *sqs.Client
}

// NewSQSClient builds an SQS client. endpoint is optional (LocalStack).
func NewSQSClient(awsCfg awssdk.Config, endpoint string) *SQSClient {
	return &SQSClient{client: sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		o.BaseEndpoint = endpointOverride(endpoint)
	})}
}

func (s *SQSClient) SendMessage(ctx context.Context, input *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	return s.client.SendMessage(ctx, input, optFns...)
}
