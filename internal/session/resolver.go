package session

import (
	"context"
	"strings"

	"github.com/MX-Development/SimonData-Connector/internal/ids"
	"github.com/MX-Development/SimonData-Connector/internal/metrics"

	"go.uber.org/zap"
)

// Keys are the correlation identifiers an inbound event may carry.
type Keys struct {
	CartToken  string
	CustomerID string
	OrderID    string
}

func (k Keys) normalized() Keys {
	return Keys{
		CartToken:  strings.TrimSpace(k.CartToken),
		CustomerID: strings.TrimSpace(k.CustomerID),
		OrderID:    strings.TrimSpace(k.OrderID),
	}
}

// Source tells how a Resolution obtained its client id.
type Source string

const (
	SourceCartToken  Source = "cart_token"
	SourceCustomerID Source = "customer_id"
	SourceOrderID    Source = "order_id"
	SourceGenerated  Source = "generated"
	SourceUnresolved Source = "unresolved"
)

// Resolution is the outcome of Resolve. ClientID is empty only when an
// order-id lookup found nothing; callers fall back to a fresh id then.
type Resolution struct {
	ClientID  string
	Source    Source
	Persisted bool
	Created   bool
	Record    *Record
}

// Resolver maps correlation keys to a session id. Store failures are
// logged and treated as "no session found"; Resolve never fails.
type Resolver struct {
	store   Store
	ids     *ids.Generator
	logger  *zap.Logger
	metrics metrics.Collector
}

type ResolverOption func(*Resolver)

func WithLogger(l *zap.Logger) ResolverOption {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

func WithMetrics(m metrics.Collector) ResolverOption {
	return func(r *Resolver) { r.metrics = metrics.OrNop(m) }
}

func NewResolver(store Store, gen *ids.Generator, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		store:   store,
		ids:     gen,
		logger:  zap.NewNop(),
		metrics: metrics.Nop{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve looks up, or for cart tokens creates, the session for keys.
// Precedence is cart token, then customer id, then order id.
func (r *Resolver) Resolve(ctx context.Context, keys Keys) Resolution {
	keys = keys.normalized()

	var res Resolution
	switch {
	case keys.CartToken != "":
		res = r.byCartToken(ctx, keys)
	case keys.CustomerID != "":
		res = r.byCustomerID(ctx, keys.CustomerID)
	case keys.OrderID != "":
		res = r.byOrderID(ctx, keys.OrderID)
	default:
		res = Resolution{ClientID: r.ids.SessionID(), Source: SourceGenerated}
	}

	r.metrics.IncrementCounter("session.resolve", map[string]string{
		"source":    string(res.Source),
		"persisted": boolTag(res.Persisted),
	})
	return res
}

func (r *Resolver) byCartToken(ctx context.Context, keys Keys) Resolution {
	log := r.logger.With(zap.String("cart_token", keys.CartToken))

	found, err := r.store.FindByCartToken(ctx, keys.CartToken)
	if err != nil {
		log.Warn("session lookup failed", zap.Error(err))
	}
	if found != nil {
		return Resolution{ClientID: found.SessionID, Source: SourceCartToken, Persisted: true, Record: found}
	}

	rec := Record{
		SessionID:  r.ids.SessionID(),
		CartToken:  keys.CartToken,
		CustomerID: keys.CustomerID,
	}
	created, err := r.store.Create(ctx, rec)
	if err != nil || created == nil {
		log.Warn("session create failed, using unpersisted id",
			zap.String("client_id", rec.SessionID), zap.Error(err))
		return Resolution{ClientID: rec.SessionID, Source: SourceGenerated}
	}

	log.Info("session created", zap.String("client_id", created.SessionID))
	return Resolution{
		ClientID:  created.SessionID,
		Source:    SourceCartToken,
		Persisted: true,
		Created:   created.SessionID == rec.SessionID,
		Record:    created,
	}
}

// Customer-keyed sessions are never created here; a miss yields a fresh,
// unpersisted id.
func (r *Resolver) byCustomerID(ctx context.Context, customerID string) Resolution {
	found, err := r.store.FindByCustomerID(ctx, customerID)
	if err != nil {
		r.logger.Warn("session lookup failed", zap.String("customer_id", customerID), zap.Error(err))
	}
	if found != nil {
		return Resolution{ClientID: found.SessionID, Source: SourceCustomerID, Persisted: true, Record: found}
	}
	return Resolution{ClientID: r.ids.SessionID(), Source: SourceGenerated}
}

func (r *Resolver) byOrderID(ctx context.Context, orderID string) Resolution {
	found, err := r.store.FindByOrderID(ctx, orderID)
	if err != nil {
		r.logger.Warn("session lookup failed", zap.String("order_id", orderID), zap.Error(err))
	}
	if found != nil {
		return Resolution{ClientID: found.SessionID, Source: SourceOrderID, Persisted: true, Record: found}
	}
	return Resolution{Source: SourceUnresolved}
}

// LinkOrder records orderID on the session for cartToken so later
// order-keyed events resolve to it. It reports whether a record was updated.
func (r *Resolver) LinkOrder(ctx context.Context, cartToken, orderID string) bool {
	cartToken = strings.TrimSpace(cartToken)
	orderID = strings.TrimSpace(orderID)
	if cartToken == "" || orderID == "" {
		return false
	}

	log := r.logger.With(zap.String("cart_token", cartToken), zap.String("order_id", orderID))

	updated, err := r.store.Update(ctx, cartToken, Patch{OrderID: &orderID})
	if err != nil {
		log.Warn("link order to session failed", zap.Error(err))
		return false
	}
	if updated == nil {
		log.Warn("no session to link order to")
		return false
	}

	log.Info("order linked to session", zap.String("client_id", updated.SessionID))
	return true
}

func boolTag(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
