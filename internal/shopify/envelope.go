package shopify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EBEvent is the EventBridge envelope Shopify partner sources deliver.
type EBEvent struct {
	DetailType string         `json:"detail-type"`
	Source     string         `json:"source"`
	Time       string         `json:"time"`
	Detail     map[string]any `json:"detail"`
}

// FromEventBridge decodes an SQS message body carrying an EventBridge
// envelope into an Event.
func FromEventBridge(body []byte, receivedAt time.Time) (Event, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var e EBEvent
	if err := dec.Decode(&e); err != nil {
		return Event{}, fmt.Errorf("unmarshal eb event: %w", err)
	}

	meta := AsMap(PickAny(e.Detail, "metadata"))
	topic := PickString(meta, "X-Shopify-Topic")
	if topic == "" {
		return Event{}, fmt.Errorf("eb event has no X-Shopify-Topic")
	}

	payload, ok := PickAny(e.Detail, "payload").(map[string]any)
	if !ok {
		return Event{}, fmt.Errorf("eb event %s has no payload object", topic)
	}

	webhookID := PickString(meta, "X-Shopify-Webhook-Id")
	return Event{
		ID:         WebhookIDOrNew(webhookID),
		WebhookID:  webhookID,
		Topic:      Topic(topic),
		Shop:       PickString(meta, "X-Shopify-Shop-Domain"),
		Payload:    payload,
		ReceivedAt: receivedAt,
	}, nil
}

// WebhookIDOrNew returns id, or a random UUID when id is empty.
func WebhookIDOrNew(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

// ToEventBridge wraps ev in the envelope FromEventBridge reads, so webhooks
// received over HTTP join the same queue as partner-source deliveries.
func ToEventBridge(ev Event) EBEvent {
	meta := map[string]any{"X-Shopify-Topic": string(ev.Topic)}
	if ev.Shop != "" {
		meta["X-Shopify-Shop-Domain"] = ev.Shop
	}
	if ev.WebhookID != "" {
		meta["X-Shopify-Webhook-Id"] = ev.WebhookID
	}
	return EBEvent{
		DetailType: "shopifyWebhook",
		Source:     "simondata-connector",
		Time:       ev.ReceivedAt.UTC().Format(time.RFC3339),
		Detail: map[string]any{
			"metadata": meta,
			"payload":  ev.Payload,
		},
	}
}
