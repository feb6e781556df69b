package shopify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockPublisher struct{ mock.Mock }

func (m *mockPublisher) Publish(ctx context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*sns.PublishOutput)
	return out, args.Error(1)
}

func forwardedEvent(t *testing.T) Event {
	t.Helper()
	p, err := DecodePayload([]byte(`{"id": 1001, "cart_token": "c1", "total_price": "59.00"}`))
	require.NoError(t, err)
	return Event{
		ID:         "wh-1",
		WebhookID:  "wh-1",
		Topic:      TopicOrdersPaid,
		Shop:       "demo.myshopify.com",
		Payload:    p,
		ReceivedAt: time.Date(2026, 1, 18, 10, 21, 2, 0, time.UTC),
	}
}

func TestForwarderMessageRoundTrips(t *testing.T) {
	ev := forwardedEvent(t)

	var published string
	pub := new(mockPublisher)
	pub.On("Publish", mock.Anything, mock.MatchedBy(func(in *sns.PublishInput) bool {
		published = aws.ToString(in.Message)
		return aws.ToString(in.TopicArn) == "arn:aws:sns:us-east-1:123456789012:webhooks" && in.MessageGroupId == nil
	})).Return(&sns.PublishOutput{}, nil)

	require.NoError(t, NewForwarder(pub, "arn:aws:sns:us-east-1:123456789012:webhooks").Dispatch(context.Background(), ev))
	pub.AssertExpectations(t)

	got, err := FromEventBridge([]byte(published), ev.ReceivedAt)
	require.NoError(t, err)
	assert.Equal(t, ev.ID, got.ID)
	assert.Equal(t, ev.WebhookID, got.WebhookID)
	assert.Equal(t, ev.Topic, got.Topic)
	assert.Equal(t, ev.Shop, got.Shop)
	assert.Equal(t, "c1", PickString(got.Payload, "cart_token"))
	assert.Equal(t, "1001", PickID(got.Payload, "id"))
}

func TestForwarderFIFOTopic(t *testing.T) {
	pub := new(mockPublisher)
	pub.On("Publish", mock.Anything, mock.MatchedBy(func(in *sns.PublishInput) bool {
		return aws.ToString(in.MessageGroupId) == "demo.myshopify.com/orders/paid" &&
			aws.ToString(in.MessageDeduplicationId) == "wh-1"
	})).Return(&sns.PublishOutput{}, nil)

	require.NoError(t, NewForwarder(pub, "arn:aws:sns:us-east-1:123456789012:webhooks.fifo").Dispatch(context.Background(), forwardedEvent(t)))
	pub.AssertExpectations(t)
}

func TestForwarderErrors(t *testing.T) {
	ev := forwardedEvent(t)

	err := NewForwarder(new(mockPublisher), "").Dispatch(context.Background(), ev)
	assert.Error(t, err)

	pub := new(mockPublisher)
	pub.On("Publish", mock.Anything, mock.Anything).Return(nil, errors.New("throttled"))
	err = NewForwarder(pub, "arn:aws:sns:us-east-1:123456789012:webhooks").Dispatch(context.Background(), ev)
	assert.ErrorContains(t, err, "throttled")

	ev.Payload["note"] = strings.Repeat("x", snsMaxMessageBytes)
	err = NewForwarder(new(mockPublisher), "arn:aws:sns:us-east-1:123456789012:webhooks").Dispatch(context.Background(), ev)
	assert.ErrorIs(t, err, ErrMessageTooLarge)
}
