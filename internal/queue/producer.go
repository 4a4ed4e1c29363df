package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/smill0791/data-integration-platform/internal/logger"
)

// Producer enqueues dispatch messages on the sync queue. A send failure
// is returned to the caller so the trigger can fail loudly instead of
// leaving a QUEUED job that will never run.
type Producer struct {
	client    API
	queueName string

	mu       sync.Mutex
	queueURL string
}

// NewProducer creates a producer for the named queue. The queue URL is
// resolved lazily on first send.
func NewProducer(client API, queueName string) *Producer {
	return &Producer{
		client:    client,
		queueName: queueName,
	}
}

// SendSyncRequest enqueues one dispatch message.
func (p *Producer) SendSyncRequest(ctx context.Context, msg DispatchMessage) error {
	url, err := p.resolveQueueURL(ctx)
	if err != nil {
		return err
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to serialize dispatch message: %w", err)
	}
	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(url),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue sync request for job %d: %w", msg.JobID, err)
	}
	logger.Infof("Enqueued sync request: job=%d source=%s type=%s", msg.JobID, msg.SourceName, msg.SyncType)
	return nil
}

func (p *Producer) resolveQueueURL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.queueURL != "" {
		return p.queueURL, nil
	}
	out, err := p.client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{
		QueueName: aws.String(p.queueName),
	})
	if err != nil {
		return "", fmt.Errorf("failed to resolve queue URL for %s: %w", p.queueName, err)
	}
	p.queueURL = aws.ToString(out.QueueUrl)
	return p.queueURL, nil
}
