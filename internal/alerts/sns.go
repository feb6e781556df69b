package alerts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// Publisher is the SNS call used to send alerts.
type Publisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// DeliveryFailure describes tracking events for one inbound event that the
// ingestion endpoint did not accept.
type DeliveryFailure struct {
	EventID    string
	Topic      string
	Shop       string
	ClientID   string
	EventNames []string
	Attempted  int
	OccurredAt time.Time
}

// SNSNotifier publishes delivery failures to an SNS topic.
type SNSNotifier struct {
	client   Publisher
	topicArn string
}

func NewSNSNotifier(client Publisher, topicArn string) *SNSNotifier {
	return &SNSNotifier{client: client, topicArn: strings.TrimSpace(topicArn)}
}

func (n *SNSNotifier) NotifyDeliveryFailure(ctx context.Context, f DeliveryFailure) error {
	if n == nil || n.topicArn == "" {
		return nil
	}

	subject, message := buildMessage(f)
	_, err := n.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicArn),
		Subject:  aws.String(subject),
		Message:  aws.String(message),
	})
	if err != nil {
		return fmt.Errorf("sns publish: %w", err)
	}
	return nil
}

func buildMessage(f DeliveryFailure) (subject string, body string) {
	subject = fmt.Sprintf("SimonData delivery failed: %s", f.Topic)
	if f.Shop != "" {
		subject = fmt.Sprintf("%s (%s)", subject, f.Shop)
	}
	// SNS caps subjects at 100 characters.
	if len(subject) > 100 {
		subject = subject[:100]
	}

	lines := []string{
		"SimonData tracking delivery failure",
		"",
		fmt.Sprintf("Topic: %s", f.Topic),
	}
	if f.Shop != "" {
		lines = append(lines, fmt.Sprintf("Shop: %s", f.Shop))
	}
	if f.EventID != "" {
		lines = append(lines, fmt.Sprintf("EventId: %s", f.EventID))
	}
	if f.ClientID != "" {
		lines = append(lines, fmt.Sprintf("ClientId: %s", f.ClientID))
	}
	lines = append(lines,
		fmt.Sprintf("Failed: %d of %d", len(f.EventNames), f.Attempted),
		fmt.Sprintf("Events: %s", strings.Join(f.EventNames, ", ")),
		"",
		fmt.Sprintf("OccurredAt: %s", f.OccurredAt.UTC().Format(time.RFC3339)),
	)

	return subject, strings.Join(lines, "\n")
}
