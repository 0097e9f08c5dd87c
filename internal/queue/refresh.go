// Package queue publishes prediction refresh requests to SQS.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"pawtrail/internal/config"
	"pawtrail/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation. Production code uses
// *sqs.Client.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// RefreshPublisher enqueues RefreshMessages for the refresh worker.
type RefreshPublisher struct {
	client   SQSSender
	queueURL string
	clock    types.Clock
	logger   *slog.Logger
}

// NewRefreshPublisher reads the queue URL from the AWS config section.
func NewRefreshPublisher(client SQSSender, awsCfg config.AWSConfig, clock types.Clock, logger *slog.Logger) *RefreshPublisher {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &RefreshPublisher{
		client:   client,
		queueURL: awsCfg.RefreshQueueURL,
		clock:    clock,
		logger:   logger,
	}
}

// RequestRefresh enqueues a refresh of one stored prediction and returns the
// trace ID attached to the message.
func (p *RefreshPublisher) RequestRefresh(ctx context.Context, predictionID, reason string) (string, error) {
	msg := types.RefreshMessage{
		PredictionID: predictionID,
		Reason:       reason,
		RequestedAt:  p.clock.Now().UTC(),
		TraceID:      uuid.NewString(),
	}
	if err := p.Send(ctx, msg); err != nil {
		return "", err
	}
	return msg.TraceID, nil
}

// Send dispatches a prepared message. The worker uses it to requeue with an
// incremented RetryCount.
func (p *RefreshPublisher) Send(ctx context.Context, msg types.RefreshMessage) error {
	if p.queueURL == "" {
		return types.NewAppError(types.ErrCodeInternalQueue, "refresh queue is not configured", nil)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal RefreshMessage: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"reason": {
				DataType:    aws.String("String"),
				StringValue: aws.String(msg.Reason),
			},
		},
	}
	if msg.RetryCount > 0 {
		// Back off requeued refreshes; SQS caps the delay at 900 seconds.
		input.DelaySeconds = int32(min(msg.RetryCount*30, 900))
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return types.NewAppError(types.ErrCodeInternalQueue,
			fmt.Sprintf("failed to send refresh message to %s", p.queueURL), err)
	}

	p.logger.InfoContext(ctx, "refresh message sent",
		"queue_url", p.queueURL,
		"prediction_id", msg.PredictionID,
		"trace_id", msg.TraceID,
		"retry_count", msg.RetryCount,
		"reason", msg.Reason,
	)
	return nil
}

// ParseRefreshMessage decodes an SQS body.
func ParseRefreshMessage(body string) (types.RefreshMessage, error) {
	var msg types.RefreshMessage
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		return msg, fmt.Errorf("queue: invalid refresh message: %w", err)
	}
	if msg.PredictionID == "" {
		return msg, fmt.Errorf("queue: refresh message missing prediction_id")
	}
	return msg, nil
}
