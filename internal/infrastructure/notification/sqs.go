package notification

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// SQSAPI is the subset of the SQS client the notifier needs
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSNotifier publishes messages to an SQS queue
type SQSNotifier struct {
	client   SQSAPI
	queueURL string
}

// NewSQSNotifier creates a notifier on an existing client
func NewSQSNotifier(client SQSAPI, queueURL string) *SQSNotifier {
	return &SQSNotifier{client: client, queueURL: queueURL}
}

// NewSQSNotifierFromConfig loads AWS credentials from the default chain
func NewSQSNotifierFromConfig(ctx context.Context, region, queueURL string) (*SQSNotifier, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewSQSNotifier(sqs.NewFromConfig(cfg), queueURL), nil
}

// Notify sends the envelope as the message body with routing attributes
func (n *SQSNotifier) Notify(ctx context.Context, msg Message) error {
	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(n.queueURL),
		MessageBody: aws.String(string(msg.Body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"kind":     {DataType: aws.String("String"), StringValue: aws.String(msg.Kind)},
			"severity": {DataType: aws.String("String"), StringValue: aws.String(string(msg.Severity))},
			"subject":  {DataType: aws.String("String"), StringValue: aws.String(msg.Subject)},
		},
	}
	if msg.TenantID != "" {
		input.MessageAttributes["tenant_id"] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(msg.TenantID),
		}
	}

	if _, err := n.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("sqs send %s: %w", msg.Kind, err)
	}
	return nil
}

// Close is a no-op; the SQS client holds no connection
func (n *SQSNotifier) Close() error { return nil }

var _ Notifier = (*SQSNotifier)(nil)
