package handlers

import (
	"context"
	"fmt"

	"outbox-dispatcher/internal/events"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// sqsAPI is the subset of the SQS client this handler calls, narrowed so
// tests can substitute a fake without pulling in AWS credentials.
type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSEffectHandler sends integration events to an AWS SQS queue.
type SQSEffectHandler struct {
	client   sqsAPI
	queueURL string
}

// NewSQSEffectHandler loads the default AWS config for region and builds a
// handler that sends to queueURL.
func NewSQSEffectHandler(ctx context.Context, region, queueURL string) (*SQSEffectHandler, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &SQSEffectHandler{
		client:   sqs.NewFromConfig(awsCfg),
		queueURL: queueURL,
	}, nil
}

// NewSQSEffectHandlerWithClient builds a handler over an already-constructed
// client, the seam tests use to inject a fake sqsAPI.
func NewSQSEffectHandlerWithClient(client sqsAPI, queueURL string) *SQSEffectHandler {
	return &SQSEffectHandler{client: client, queueURL: queueURL}
}

// HandleExternalEffect sends evt to the queue, using its event id as the
// message deduplication id for FIFO queues. Standard queues ignore the
// field; the dispatcher's own idempotent-consumer contract covers it either
// way.
func (h *SQSEffectHandler) HandleExternalEffect(ctx context.Context, evt events.IntegrationEvent) error {
	data, err := events.Encode(evt)
	if err != nil {
		return fmt.Errorf("encode event for sqs send: %w", err)
	}

	dedupID := evt.EventID.String()
	_, err = h.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:               aws.String(h.queueURL),
		MessageBody:            aws.String(string(data)),
		MessageDeduplicationId: aws.String(dedupID),
		MessageGroupId:         aws.String(evt.EventName),
	})
	if err != nil {
		return fmt.Errorf("send message to queue: %w", err)
	}
	return nil
}
