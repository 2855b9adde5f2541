package leads

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// EventLeadCreated is the type tag of lead creation messages.
const EventLeadCreated = "lead.created"

type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// LeadCreatedEvent is the message body published for each stored lead.
type LeadCreatedEvent struct {
	Type       string    `json:"type"`
	LeadID     string    `json:"lead_id"`
	LeadSource string    `json:"lead_source"`
	CaseType   string    `json:"case_type"`
	County     string    `json:"county,omitempty"`
	Urgency    string    `json:"urgency"`
	CreatedAt  time.Time `json:"created_at"`
}

// SQSPublisher sends lead events to an SQS queue.
type SQSPublisher struct {
	client   sqsAPI
	queueURL string
}

// NewSQSPublisher creates a publisher around the provided SQS client.
func NewSQSPublisher(client sqsAPI, queueURL string) *SQSPublisher {
	if client == nil {
		panic("leads: SQS client cannot be nil")
	}
	if queueURL == "" {
		panic("leads: SQS queueURL cannot be empty")
	}
	return &SQSPublisher{client: client, queueURL: queueURL}
}

// PublishLeadCreated sends one lead.created message.
func (p *SQSPublisher) PublishLeadCreated(ctx context.Context, lead *Lead) error {
	body, err := json.Marshal(LeadCreatedEvent{
		Type:       EventLeadCreated,
		LeadID:     lead.ID,
		LeadSource: lead.LeadSource,
		CaseType:   lead.CaseType,
		County:     lead.County,
		Urgency:    lead.Urgency,
		CreatedAt:  lead.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("leads: marshal lead event: %w", err)
	}
	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event_type": {DataType: aws.String("String"), StringValue: aws.String(EventLeadCreated)},
			"urgency":    {DataType: aws.String("String"), StringValue: aws.String(lead.Urgency)},
		},
	})
	if err != nil {
		return fmt.Errorf("leads: failed to send SQS message: %w", err)
	}
	return nil
}
