// Package aws builds the SDK clients used by the delivery transports and the DynamoDB dedup backend.
package aws

import (
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"notification-engine/internal/common/config"
)

// LoadConfig loads the default credential chain for the configured region.
func LoadConfig(ctx context.Context, cfg config.AWSConfig) (awssdk.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return awssdk.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return awsCfg, nil
}

func endpointOverride(endpoint string) *string {
	if endpoint == "" {
		return nil
	}
	return awssdk.String(endpoint)
}
