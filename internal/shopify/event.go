package shopify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MX-Development/SimonData-Connector/internal/session"
)

// Topic identifies an inbound event kind. Shopify webhook topics use
// Shopify's own names; storefront and Recharge topics are local.
type Topic string

const (
	TopicCustomersCreate Topic = "customers/create"
	TopicCheckoutsCreate Topic = "checkouts/create"
	TopicOrdersPaid      Topic = "orders/paid"
	TopicOrdersFulfilled Topic = "orders/fulfilled"
	TopicRefundsCreate   Topic = "refunds/create"
	TopicCartsCreate     Topic = "carts/create"
	TopicCartsUpdate     Topic = "carts/update"
	TopicAppUninstalled  Topic = "app/uninstalled"

	TopicProductViewed  Topic = "storefront/product-viewed"
	TopicAddToCart      Topic = "storefront/add-to-cart"
	TopicUpdateCart     Topic = "storefront/update-cart"
	TopicRemoveFromCart Topic = "storefront/remove-from-cart"
	TopicBackInStock    Topic = "storefront/back-in-stock"

	TopicSubscriptionCreated   Topic = "recharge/subscription-created"
	TopicSubscriptionCancelled Topic = "recharge/subscription-cancelled"
)

// WebhookTopics are the Shopify topics a shop is subscribed to.
var WebhookTopics = []Topic{
	TopicAppUninstalled,
	TopicCustomersCreate,
	TopicCheckoutsCreate,
	TopicOrdersPaid,
	TopicOrdersFulfilled,
	TopicRefundsCreate,
	TopicCartsCreate,
	TopicCartsUpdate,
}

// IsCart reports whether t is a cart topic. Cart topics are logged only.
func (t Topic) IsCart() bool {
	return t == TopicCartsCreate || t == TopicCartsUpdate
}

// Event is one inbound occurrence: a Shopify webhook, a storefront call or
// a Recharge webhook.
// ID is always set; WebhookID only when Shopify supplied one.
type Event struct {
	ID         string
	WebhookID  string
	Topic      Topic
	Shop       string
	Payload    map[string]any
	ReceivedAt time.Time
}

// DecodePayload parses a JSON object body. Numbers are kept as json.Number
// so ids and prices survive untouched.
func DecodePayload(body []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if payload == nil {
		return nil, fmt.Errorf("decode payload: not a JSON object")
	}
	return payload, nil
}

// Keys extracts the correlation keys for the event's topic.
func (e Event) Keys() session.Keys {
	p := e.Payload
	switch e.Topic {
	case TopicCustomersCreate:
		return session.Keys{CustomerID: PickID(p, "id")}
	case TopicCheckoutsCreate, TopicOrdersPaid:
		return session.Keys{CartToken: PickString(p, "cart_token")}
	case TopicOrdersFulfilled:
		return session.Keys{OrderID: PickID(p, "id")}
	case TopicRefundsCreate:
		return session.Keys{
			CartToken: PickString(p, "cart_token"),
			OrderID:   PickID(p, "order_id"),
		}
	case TopicProductViewed, TopicAddToCart, TopicUpdateCart, TopicRemoveFromCart:
		return session.Keys{
			CartToken:  PickString(p, "cart_token", "cartToken"),
			CustomerID: PickID(p, "customerId", "customer_id"),
		}
	case TopicSubscriptionCreated, TopicSubscriptionCancelled:
		return session.Keys{CustomerID: PickID(AsMap(PickAny(p, "subscription")), "customer_id")}
	default:
		return session.Keys{}
	}
}
