package tracking

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MX-Development/SimonData-Connector/internal/shopify"
)

type mapper func(n *Normalizer, ev shopify.Event, clientID string, issues *issueList) []Event

// Normalizer turns inbound events into outbound tracking events. It holds
// no credentials.
type Normalizer struct {
	loc     *time.Location
	now     func() time.Time
	mappers map[shopify.Topic]mapper
}

type NormalizerOption func(*Normalizer)

// WithLocation sets the zone whose UTC offset is reported as "timezone".
func WithLocation(loc *time.Location) NormalizerOption {
	return func(n *Normalizer) {
		if loc != nil {
			n.loc = loc
		}
	}
}

// WithNow overrides the clock used for storefront events.
func WithNow(now func() time.Time) NormalizerOption {
	return func(n *Normalizer) { n.now = now }
}

func NewNormalizer(opts ...NormalizerOption) *Normalizer {
	n := &Normalizer{
		loc: time.Local,
		now: time.Now,
		mappers: map[shopify.Topic]mapper{
			shopify.TopicCustomersCreate: (*Normalizer).customerCreated,
			shopify.TopicCheckoutsCreate: (*Normalizer).checkoutCreated,
			shopify.TopicOrdersPaid:      (*Normalizer).orderPaid,
			shopify.TopicOrdersFulfilled: (*Normalizer).orderFulfilled,
			shopify.TopicRefundsCreate:   (*Normalizer).refundCreated,
			shopify.TopicCartsCreate:     nil,
			shopify.TopicCartsUpdate:     nil,

			shopify.TopicProductViewed:  (*Normalizer).productViewed,
			shopify.TopicAddToCart:      (*Normalizer).addToCart,
			shopify.TopicUpdateCart:     (*Normalizer).updateCart,
			shopify.TopicRemoveFromCart: (*Normalizer).removeFromCart,
			shopify.TopicBackInStock:    (*Normalizer).backInStock,

			shopify.TopicSubscriptionCreated:   subscription(NameSubscriptionCreated),
			shopify.TopicSubscriptionCancelled: subscription(NameSubscriptionCancelled),
		},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Supports reports whether topic has a mapping. Cart topics are supported
// and produce no events.
func (n *Normalizer) Supports(topic shopify.Topic) bool {
	_, ok := n.mappers[topic]
	return ok
}

// Normalize maps ev to zero or more outbound events, all carrying clientID.
// A non-nil error alongside events joins *MalformedEventError values for
// fields that were missing; the events are still usable.
func (n *Normalizer) Normalize(ev shopify.Event, clientID string) ([]Event, error) {
	m, ok := n.mappers[ev.Topic]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedTopic, ev.Topic)
	}
	if m == nil {
		return nil, nil
	}

	payload := ev.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	ev.Payload = payload

	issues := &issueList{topic: ev.Topic}
	out := m(n, ev, clientID, issues)
	return out, issues.err()
}

type issueList struct {
	topic shopify.Topic
	errs  []error
}

func (l *issueList) add(field, reason string) {
	l.errs = append(l.errs, &MalformedEventError{Topic: l.topic, Field: field, Reason: reason})
}

// require records every listed field that is absent or null.
func (l *issueList) require(p map[string]any, fields ...string) {
	for _, f := range fields {
		if v, ok := p[f]; !ok || v == nil {
			l.add(f, "missing")
		}
	}
}

func (l *issueList) err() error {
	return errors.Join(l.errs...)
}

func track(kind, name, clientID string) Event {
	return Event{Type: "track", Event: kind, ClientID: clientID, Name: name}
}

func custom(name, clientID string) Event {
	e := track(KindCustom, name, clientID)
	e.Properties = map[string]any{
		"eventName":        name,
		"requiresIdentity": false,
	}
	return e
}

// stamps derives timezone and sentAt from the payload's created_at. Both
// are invalid when created_at is missing or unparseable.
func (n *Normalizer) stamps(p map[string]any, issues *issueList) (*Stamp, *Stamp) {
	raw := shopify.PickString(p, "created_at")
	t, ok := shopify.ParseTime(raw)
	if !ok {
		if raw == "" {
			issues.add("created_at", "missing")
		} else {
			issues.add("created_at", fmt.Sprintf("unparseable timestamp %q", raw))
		}
		return &Stamp{}, &Stamp{}
	}
	_, offset := t.In(n.loc).Zone()
	return &Stamp{Value: int64(-offset / 60), Valid: true}, &Stamp{Value: t.UnixMilli(), Valid: true}
}

func (n *Normalizer) nowStamp() *Stamp {
	return &Stamp{Value: n.now().UnixMilli(), Valid: true}
}

func fullName(first, last any) string {
	var parts []string
	for _, v := range []any{first, last} {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			parts = append(parts, strings.TrimSpace(s))
		}
	}
	return strings.Join(parts, " ")
}

func (n *Normalizer) customerCreated(ev shopify.Event, clientID string, issues *issueList) []Event {
	p := ev.Payload
	issues.require(p, "id")

	e := track(KindRegistration, NameRegistration, clientID)
	e.Timezone, e.SentAt = n.stamps(p, issues)
	e.Properties = map[string]any{
		"email":     p["email"],
		"userId":    p["id"],
		"optIn":     p["marketing_opt_in_level"],
		"firstName": p["first_name"],
		"lastName":  p["last_name"],
		"name":      fullName(p["first_name"], p["last_name"]),
	}
	return []Event{e}
}

func (n *Normalizer) checkoutCreated(ev shopify.Event, clientID string, issues *issueList) []Event {
	p := ev.Payload

	e := custom(NameCheckoutCreated, clientID)
	e.Timezone, e.SentAt = n.stamps(p, issues)
	e.Traits = map[string]any{
		"email":     p["email"],
		"userId":    p["id"],
		"firstName": p["first_name"],
		"lastName":  p["last_name"],
		"name":      fullName(p["first_name"], p["last_name"]),
	}
	return []Event{e}
}

// orderPaid emits one ordered_product per valid line item, then revenue,
// then placed_order.
func (n *Normalizer) orderPaid(ev shopify.Event, clientID string, issues *issueList) []Event {
	p := ev.Payload
	issues.require(p, "id", "total_price")

	tz, sent := n.stamps(p, issues)
	items := lineItems(p, "line_items", true, issues)

	out := make([]Event, 0, len(items)+2)
	for _, item := range items {
		e := custom(NameOrderedProduct, clientID)
		e.Timezone, e.SentAt = tz, sent
		e.Traits = map[string]any{
			"orderId": p["id"],
			"product": item,
		}
		out = append(out, e)
	}

	rev := custom(NameRevenue, clientID)
	rev.Timezone, rev.SentAt = tz, sent
	rev.Traits = map[string]any{
		"orderId": p["id"],
		"revenue": p["total_price"],
	}
	out = append(out, rev)

	placed := track(KindCompleteTransaction, NamePlacedOrder, clientID)
	placed.Properties = map[string]any{
		"eventName":        NamePlacedOrder,
		"requiresIdentity": false,
	}
	placed.IPAddress = p["browser_ip"]
	placed.Timezone, placed.SentAt = tz, sent
	placed.UserID = p["user_id"]
	placed.Traits = map[string]any{
		"userId":        p["user_id"],
		"cartItems":     items,
		"transactionId": p["checkout_id"],
		"revenue":       p["total_price"],
	}
	out = append(out, placed)

	return out
}

func (n *Normalizer) orderFulfilled(ev shopify.Event, clientID string, issues *issueList) []Event {
	p := ev.Payload
	issues.require(p, "id")

	e := custom(NameFulfilledOrder, clientID)
	e.Timezone, e.SentAt = n.stamps(p, issues)
	e.Traits = map[string]any{
		"email":  p["email"],
		"userId": p["user_id"],
		"properties": map[string]any{
			"cartItems":     lineItems(p, "line_items", false, issues),
			"transactionId": p["checkout_id"],
			"revenue":       p["total_price"],
		},
	}
	return []Event{e}
}

func (n *Normalizer) refundCreated(ev shopify.Event, clientID string, issues *issueList) []Event {
	p := ev.Payload
	issues.require(p, "order_id")

	e := custom(NameRefundedOrder, clientID)
	e.Timezone, e.SentAt = n.stamps(p, issues)
	e.Traits = map[string]any{
		"userId":  p["user_id"],
		"orderId": p["order_id"],
		"properties": map[string]any{
			"refundItems": refundItems(p, issues),
		},
	}
	return []Event{e}
}

// lineItems flattens an order's line items. Entries that are not objects
// are skipped and reported.
func lineItems(p map[string]any, field string, withSKU bool, issues *issueList) []map[string]any {
	raw, ok := shopify.AsSlice(p[field])
	if !ok {
		issues.add(field, "missing or not a list")
		return []map[string]any{}
	}

	out := make([]map[string]any, 0, len(raw))
	for i, v := range raw {
		item, ok := v.(map[string]any)
		if !ok {
			issues.add(fmt.Sprintf("%s[%d]", field, i), "not an object")
			continue
		}
		product := map[string]any{
			"productId":   item["product_id"],
			"variant":     item["variant_id"],
			"productName": item["title"],
			"price":       item["price"],
			"quantity":    item["quantity"],
		}
		if withSKU {
			product["sku"] = item["sku"]
		}
		out = append(out, product)
	}
	return out
}

// refundItems reads refund_line_items, preferring the nested line_item
// object Shopify sends and falling back to top-level fields.
func refundItems(p map[string]any, issues *issueList) []map[string]any {
	raw, ok := shopify.AsSlice(p["refund_line_items"])
	if !ok {
		issues.add("refund_line_items", "missing or not a list")
		return []map[string]any{}
	}

	out := make([]map[string]any, 0, len(raw))
	for i, v := range raw {
		item, ok := v.(map[string]any)
		if !ok {
			issues.add(fmt.Sprintf("refund_line_items[%d]", i), "not an object")
			continue
		}
		li := shopify.AsMap(item["line_item"])
		pick := func(key string) any {
			if v, ok := li[key]; ok && v != nil {
				return v
			}
			return item[key]
		}
		out = append(out, map[string]any{
			"productId":   pick("product_id"),
			"variant":     pick("variant_id"),
			"productName": pick("title"),
			"price":       pick("price"),
			"quantity":    item["quantity"],
		})
	}
	return out
}

func (n *Normalizer) productViewed(ev shopify.Event, clientID string, issues *issueList) []Event {
	p := ev.Payload
	issues.require(p, "productId")

	customerID := p["customerId"]
	if customerID == nil {
		customerID = ""
	}

	e := track(KindProductView, NameProductView, clientID)
	e.SentAt = n.nowStamp()
	e.Properties = map[string]any{
		"productId":   p["productId"],
		"productName": p["title"],
		"price":       p["price"],
		"customerId":  customerID,
	}
	return []Event{e}
}

func cartProduct(p map[string]any, issues *issueList) map[string]any {
	product, ok := p["product"].(map[string]any)
	if !ok {
		issues.add("product", "missing or not an object")
		return map[string]any{}
	}
	return product
}

func (n *Normalizer) addToCart(ev shopify.Event, clientID string, issues *issueList) []Event {
	p := ev.Payload
	product := cartProduct(p, issues)

	e := track(KindAddToCart, NameAddToCart, clientID)
	e.SentAt = n.nowStamp()
	e.Properties = map[string]any{
		"productId": product["product_id"],
		"variant":   product["id"],
		"quantity":  p["quantity"],
	}
	return []Event{e}
}

func (n *Normalizer) updateCart(ev shopify.Event, clientID string, issues *issueList) []Event {
	p := ev.Payload
	product := cartProduct(p, issues)

	e := track(KindUpdateCart, NameUpdateCart, clientID)
	e.SentAt = n.nowStamp()
	e.Properties = map[string]any{
		"quantity":         p["quantity"],
		"previousQuantity": p["prevQuantity"],
		"productId":        product["product_id"],
		"variant":          product["id"],
	}
	return []Event{e}
}

func (n *Normalizer) removeFromCart(ev shopify.Event, clientID string, issues *issueList) []Event {
	p := ev.Payload
	product := cartProduct(p, issues)

	e := track(KindRemoveFromCart, NameRemoveFromCart, clientID)
	e.SentAt = n.nowStamp()
	e.Properties = map[string]any{
		"productId": product["product_id"],
		"variant":   product["id"],
		"quantity":  product["quantity"],
	}
	return []Event{e}
}

func (n *Normalizer) backInStock(ev shopify.Event, clientID string, issues *issueList) []Event {
	p := ev.Payload
	issues.require(p, "email", "variant")

	e := custom(NameBackInStock, clientID)
	e.Traits = map[string]any{
		"email":     p["email"],
		"productID": p["variant"],
	}
	return []Event{e}
}

func subscription(name string) mapper {
	return func(_ *Normalizer, _ shopify.Event, clientID string, _ *issueList) []Event {
		e := custom(name, clientID)
		e.Traits = map[string]any{}
		return []Event{e}
	}
}
