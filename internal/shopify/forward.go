package shopify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// PublishAPI is the SNS call the forwarder needs.
type PublishAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// snsMaxMessageBytes is the SNS payload limit.
const snsMaxMessageBytes = 256 * 1024

var ErrMessageTooLarge = errors.New("webhook envelope exceeds sns message limit")

// Forwarder publishes verified webhooks to an SNS topic whose SQS
// subscription (raw message delivery) feeds the tracking worker.
type Forwarder struct {
	client   PublishAPI
	topicArn string
}

func NewForwarder(client PublishAPI, topicArn string) *Forwarder {
	return &Forwarder{client: client, topicArn: strings.TrimSpace(topicArn)}
}

func (f *Forwarder) Dispatch(ctx context.Context, ev Event) error {
	if f.topicArn == "" {
		return fmt.Errorf("forward webhook: no topic configured")
	}

	body, err := json.Marshal(ToEventBridge(ev))
	if err != nil {
		return fmt.Errorf("marshal eb event: %w", err)
	}
	if len(body) > snsMaxMessageBytes {
		return fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, len(body))
	}

	in := &sns.PublishInput{
		TopicArn: aws.String(f.topicArn),
		Message:  aws.String(string(body)),
	}
	// FIFO topics need a group and a dedupe id; the webhook id serves both.
	if strings.HasSuffix(f.topicArn, ".fifo") {
		in.MessageGroupId = aws.String(ev.Shop + "/" + string(ev.Topic))
		in.MessageDeduplicationId = aws.String(ev.ID)
	}

	if _, err := f.client.Publish(ctx, in); err != nil {
		return fmt.Errorf("sns publish webhook %s: %w", ev.ID, err)
	}
	return nil
}
