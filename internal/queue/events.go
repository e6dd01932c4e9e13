// Package queue provides the SQS-based producer that hands generated
// tickets off to downstream assignment and notification workers.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"upkeep/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// TicketPublisher sends ticket-created events to the ticket events queue.
// The generator calls it after its transaction commits; a send failure is
// logged by the caller and never rolls back the ticket.
type TicketPublisher struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewTicketPublisher creates a TicketPublisher for the given queue URL.
func NewTicketPublisher(client SQSSender, queueURL string, logger *slog.Logger) *TicketPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &TicketPublisher{client: client, queueURL: queueURL, logger: logger}
}

// PublishTicketCreated serializes the event to JSON and dispatches it. The
// organization ID rides along as a message attribute so workers can filter
// without parsing the body.
func (p *TicketPublisher) PublishTicketCreated(ctx context.Context, event types.TicketCreatedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal ticket event: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"organization_id": {
				DataType:    aws.String("String"),
				StringValue: aws.String(event.OrganizationID),
			},
		},
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamQueue,
			"failed to enqueue ticket event", err)
	}

	p.logger.DebugContext(ctx, "published ticket created event",
		"ticket_id", event.TicketID,
		"org_id", event.OrganizationID,
	)
	return nil
}
