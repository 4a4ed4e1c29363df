package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"golang.org/x/sync/errgroup"

	"github.com/smill0791/data-integration-platform/internal/jobs"
	"github.com/smill0791/data-integration-platform/internal/logger"
	"github.com/smill0791/data-integration-platform/internal/models"
	"github.com/smill0791/data-integration-platform/internal/pipeline"
	"github.com/smill0791/data-integration-platform/internal/store"
)

const (
	// longPollSeconds is the SQS long-poll wait per receive call.
	longPollSeconds = 20

	// receiveErrorDelay throttles the worker loop after a receive failure
	// so a broken connection does not spin.
	receiveErrorDelay = time.Second
)

// Consumer runs worker goroutines that dequeue dispatch messages and
// execute the matching pipeline. A message is deleted only after its
// pipeline run finished; failed handling leaves the message for
// redelivery until the redrive policy moves it to the dead-letter queue.
type Consumer struct {
	client    API
	registry  *jobs.Registry
	router    *pipeline.Router
	queueName string
	workers   int
}

// NewConsumer creates a consumer with the given worker count.
func NewConsumer(client API, registry *jobs.Registry, router *pipeline.Router, queueName string, workers int) *Consumer {
	if workers < 1 {
		workers = 1
	}
	return &Consumer{
		client:    client,
		registry:  registry,
		router:    router,
		queueName: queueName,
		workers:   workers,
	}
}

// Run blocks polling the queue until the context is cancelled.
// Cancellation is a clean shutdown, not an error.
func (c *Consumer) Run(ctx context.Context) error {
	out, err := c.client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{
		QueueName: aws.String(c.queueName),
	})
	if err != nil {
		return fmt.Errorf("failed to resolve queue URL for %s: %w", c.queueName, err)
	}
	queueURL := aws.ToString(out.QueueUrl)

	logger.Infof("Starting %d queue consumer workers on %s", c.workers, c.queueName)
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < c.workers; i++ {
		worker := i
		g.Go(func() error {
			c.pollLoop(ctx, worker, queueURL)
			return nil
		})
	}
	return g.Wait()
}

func (c *Consumer) pollLoop(ctx context.Context, worker int, queueURL string) {
	for {
		if ctx.Err() != nil {
			logger.Infof("Queue worker %d stopping", worker)
			return
		}
		out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(queueURL),
			MaxNumberOfMessages: 1,
			WaitTimeSeconds:     longPollSeconds,
		})
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			logger.Errorf("Queue worker %d receive failed: %v", worker, err)
			select {
			case <-ctx.Done():
			case <-time.After(receiveErrorDelay):
			}
			continue
		}
		for _, msg := range out.Messages {
			if err := c.handleMessage(ctx, msg); err != nil {
				// No delete: the message is redelivered and eventually
				// redriven to the dead-letter queue.
				logger.Errorf("Queue worker %d failed to handle message %s: %v",
					worker, aws.ToString(msg.MessageId), err)
				continue
			}
			if _, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
				QueueUrl:      aws.String(queueURL),
				ReceiptHandle: msg.ReceiptHandle,
			}); err != nil {
				logger.Errorf("Queue worker %d failed to delete message %s: %v",
					worker, aws.ToString(msg.MessageId), err)
			}
		}
	}
}

// handleMessage executes one dispatch message end to end. Any returned
// error means the message must not be acknowledged.
func (c *Consumer) handleMessage(ctx context.Context, msg types.Message) error {
	var dispatch DispatchMessage
	if err := json.Unmarshal([]byte(aws.ToString(msg.Body)), &dispatch); err != nil {
		return fmt.Errorf("malformed dispatch message: %w", err)
	}
	logger.Infof("Dequeued sync request: job=%d source=%s type=%s",
		dispatch.JobID, dispatch.SourceName, dispatch.SyncType)

	job, err := c.registry.StartJob(ctx, dispatch.JobID)
	if err != nil {
		if errors.Is(err, store.ErrTerminal) {
			// Cancelled (or otherwise finished) before dequeue: ack the
			// message, there is nothing left to run.
			logger.Infof("Dropping dispatch for job %d: %v", dispatch.JobID, err)
			return nil
		}
		return fmt.Errorf("failed to start job %d: %w", dispatch.JobID, err)
	}

	orchestrator, err := c.router.Lookup(dispatch.SourceName)
	if err != nil {
		c.failJob(ctx, job, err)
		return err
	}
	if _, err := orchestrator.RunPipelineForJob(ctx, dispatch.JobID); err != nil {
		c.failJob(ctx, job, err)
		return err
	}
	return nil
}

// failJob marks the job failed best-effort; a secondary failure is only
// logged since the message redelivery already preserves the work.
func (c *Consumer) failJob(ctx context.Context, job *models.SyncJob, cause error) {
	if _, err := c.registry.FailJob(ctx, job, fmt.Sprintf("queue processing failed: %v", cause)); err != nil {
		logger.Errorf("Failed to mark job %d failed: %v", job.ID, err)
	}
}
