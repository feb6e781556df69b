package tracking

import (
	"strconv"
)

// Signal event kinds (the wire "event" field).
const (
	KindRegistration        = "registration"
	KindCustom              = "custom"
	KindCompleteTransaction = "complete_transaction"
	KindProductView         = "product_view"
	KindAddToCart           = "add_to_cart"
	KindUpdateCart          = "update_cart"
	KindRemoveFromCart      = "remove_from_cart"
)

// Semantic event names.
const (
	NameRegistration          = "registration"
	NameCheckoutCreated       = "checkout_created"
	NameOrderedProduct        = "ordered_product"
	NameRevenue               = "revenue"
	NamePlacedOrder           = "placed_order"
	NameFulfilledOrder        = "fulfilled_order"
	NameRefundedOrder         = "refunded_order"
	NameProductView           = "product_view"
	NameAddToCart             = "add_to_cart"
	NameUpdateCart            = "update_cart"
	NameRemoveFromCart        = "remove_from_cart"
	NameBackInStock           = "back_in_stock"
	NameSubscriptionCreated   = "subscription_created"
	NameSubscriptionCancelled = "subscription_cancelled"
)

// Stamp is a numeric wire value that may be invalid. Invalid stamps encode
// as JSON null, which is how an unparseable source timestamp reaches the
// ingestion endpoint.
type Stamp struct {
	Value int64
	Valid bool
}

func (s Stamp) MarshalJSON() ([]byte, error) {
	if !s.Valid {
		return []byte("null"), nil
	}
	return strconv.AppendInt(nil, s.Value, 10), nil
}

// Event is one outbound tracking payload. PartnerID and PartnerSecret are
// filled in by the Client at send time. Nil Timezone or SentAt are omitted.
type Event struct {
	PartnerID     string         `json:"partnerId"`
	PartnerSecret string         `json:"partnerSecret"`
	Type          string         `json:"type"`
	Event         string         `json:"event"`
	ClientID      string         `json:"clientId"`
	UserID        any            `json:"userId,omitempty"`
	IPAddress     any            `json:"ipAddress,omitempty"`
	Timezone      *Stamp         `json:"timezone,omitempty"`
	SentAt        *Stamp         `json:"sentAt,omitempty"`
	Properties    map[string]any `json:"properties,omitempty"`
	Traits        map[string]any `json:"traits,omitempty"`

	Name string `json:"-"`
}
