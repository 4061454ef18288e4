package database

import (
	"context"
	"fmt"

	"notification-engine/internal/common/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// DynamoDBClient wraps the client used by the DynamoDB dedup backend.
type DynamoDBClient struct {
	Client *dynamodb.Client
	Table  string
}

// NewDynamoDB builds a client from an already loaded AWS config. A non-empty endpoint
// (LocalStack, dynamodb-local) overrides the service endpoint.
func NewDynamoDB(awsCfg aws.Config, cfg config.DynamoDBConfig) *DynamoDBClient {
	var opts []func(*dynamodb.Options)
	if cfg.Endpoint != "" {
		opts = append(opts, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	return &DynamoDBClient{
		Client: dynamodb.NewFromConfig(awsCfg, opts...),
		Table:  cfg.Table,
	}
}

// Ping checks that the dedup table exists and is reachable.
func (c *DynamoDBClient) Ping(ctx context.Context) error {
	_, err := c.Client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(c.Table)})
	if err != nil {
		return fmt.Errorf("dynamodb describe %s failed: %w", c.Table, err)
	}
	return nil
}
