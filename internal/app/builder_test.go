package app

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smill0791/data-integration-platform/internal/config"
)

type fakeSQS struct {
	created []string
}

func (f *fakeSQS) CreateQueue(_ context.Context, params *sqs.CreateQueueInput, _ ...func(*sqs.Options)) (*sqs.CreateQueueOutput, error) {
	f.created = append(f.created, aws.ToString(params.QueueName))
	return &sqs.CreateQueueOutput{
		QueueUrl: aws.String("https://sqs.test/" + aws.ToString(params.QueueName)),
	}, nil
}

func (*fakeSQS) GetQueueAttributes(_ context.Context, params *sqs.GetQueueAttributesInput, _ ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error) {
	return &sqs.GetQueueAttributesOutput{
		Attributes: map[string]string{
			string(types.QueueAttributeNameQueueArn): "arn:aws:sqs:test:000000000000:" + aws.ToString(params.QueueUrl),
		},
	}, nil
}

func (*fakeSQS) GetQueueUrl(_ context.Context, params *sqs.GetQueueUrlInput, _ ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error) {
	return &sqs.GetQueueUrlOutput{
		QueueUrl: aws.String("https://sqs.test/" + aws.ToString(params.QueueName)),
	}, nil
}

func (*fakeSQS) SendMessage(context.Context, *sqs.SendMessageInput, ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	return &sqs.SendMessageOutput{}, nil
}

func (*fakeSQS) ReceiveMessage(context.Context, *sqs.ReceiveMessageInput, ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	return &sqs.ReceiveMessageOutput{}, nil
}

func (*fakeSQS) DeleteMessage(context.Context, *sqs.DeleteMessageInput, ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	return &sqs.DeleteMessageOutput{}, nil
}

func baseTestConfig() *config.Config {
	cfg := &config.Config{
		Server: config.ServerConfig{Address: "127.0.0.1:0"},
		Sources: config.SourcesConfig{
			CRM:        config.SourceConfig{BaseURL: "http://crm.test", PageSize: 10, MaxRetries: 1},
			ERP:        config.SourceConfig{BaseURL: "http://erp.test", PageSize: 10, MaxRetries: 1},
			Accounting: config.SourceConfig{BaseURL: "http://accounting.test", PageSize: 10, MaxRetries: 1},
		},
		DispatchMode: config.DispatchModeDirect,
	}
	return cfg
}

func TestNewAppDirectMode(t *testing.T) {
	t.Parallel()

	cfg := baseTestConfig()
	a, err := NewApp(context.Background(), WithConfig(cfg))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Stop(time.Second) })

	assert.Equal(t, cfg, a.GetConfig())
	assert.Equal(t, "127.0.0.1:0", a.GetHTTPServer().Addr)
	assert.Nil(t, a.consumer, "no queue configured, no consumer")
}

func TestNewAppQueuedMode(t *testing.T) {
	t.Parallel()

	cfg := baseTestConfig()
	cfg.DispatchMode = config.DispatchModeQueued
	cfg.Queue = &config.QueueConfig{
		Region:              "us-east-1",
		QueueName:           "sync-requests",
		DeadLetterQueueName: "sync-requests-dlq",
		MaxReceiveCount:     3,
		Workers:             2,
	}
	client := &fakeSQS{}

	a, err := NewApp(context.Background(), WithConfig(cfg), WithSQSClient(client))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Stop(time.Second) })

	require.NotNil(t, a.consumer)
	assert.Equal(t, []string{"sync-requests-dlq", "sync-requests"}, client.created,
		"dead-letter queue is provisioned before the main queue")
}

func TestNewAppRequiresConfig(t *testing.T) {
	t.Parallel()

	_, err := NewApp(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config cannot be nil")
}
