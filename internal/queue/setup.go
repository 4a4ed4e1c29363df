package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/smill0791/data-integration-platform/internal/config"
	"github.com/smill0791/data-integration-platform/internal/logger"
)

// EnsureQueues provisions the sync queue and its dead-letter queue, and
// attaches the redrive policy. CreateQueue is idempotent for identical
// attributes, so this is safe to run on every startup.
func EnsureQueues(ctx context.Context, client API, cfg *config.QueueConfig) error {
	dlq, err := client.CreateQueue(ctx, &sqs.CreateQueueInput{
		QueueName: aws.String(cfg.DeadLetterQueueName),
	})
	if err != nil {
		return fmt.Errorf("failed to create dead-letter queue %s: %w", cfg.DeadLetterQueueName, err)
	}

	attrs, err := client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       dlq.QueueUrl,
		AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameQueueArn},
	})
	if err != nil {
		return fmt.Errorf("failed to resolve dead-letter queue ARN: %w", err)
	}
	dlqARN := attrs.Attributes[string(types.QueueAttributeNameQueueArn)]
	if dlqARN == "" {
		return fmt.Errorf("dead-letter queue %s has no ARN attribute", cfg.DeadLetterQueueName)
	}

	redrive, err := json.Marshal(map[string]string{
		"deadLetterTargetArn": dlqARN,
		"maxReceiveCount":     strconv.Itoa(cfg.MaxReceiveCount),
	})
	if err != nil {
		return fmt.Errorf("failed to build redrive policy: %w", err)
	}

	if _, err := client.CreateQueue(ctx, &sqs.CreateQueueInput{
		QueueName: aws.String(cfg.QueueName),
		Attributes: map[string]string{
			string(types.QueueAttributeNameRedrivePolicy): string(redrive),
		},
	}); err != nil {
		return fmt.Errorf("failed to create queue %s: %w", cfg.QueueName, err)
	}

	logger.Infof("Provisioned queue %s with dead-letter queue %s (maxReceiveCount=%d)",
		cfg.QueueName, cfg.DeadLetterQueueName, cfg.MaxReceiveCount)
	return nil
}
