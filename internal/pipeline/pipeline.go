package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/MX-Development/SimonData-Connector/internal/alerts"
	"github.com/MX-Development/SimonData-Connector/internal/archive"
	"github.com/MX-Development/SimonData-Connector/internal/ids"
	"github.com/MX-Development/SimonData-Connector/internal/metrics"
	"github.com/MX-Development/SimonData-Connector/internal/session"
	"github.com/MX-Development/SimonData-Connector/internal/shopify"
	"github.com/MX-Development/SimonData-Connector/internal/tracking"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Deliverer sends one tracking event and reports whether it was accepted.
type Deliverer interface {
	Deliver(ctx context.Context, ev tracking.Event) bool
}

// Claimer deduplicates inbound webhooks.
type Claimer interface {
	Claim(ctx context.Context, webhookID, shopDomain string, topic shopify.Topic) (bool, error)
}

type Archiver interface {
	Archive(ctx context.Context, rows []archive.Row) ([]string, error)
}

type Notifier interface {
	NotifyDeliveryFailure(ctx context.Context, f alerts.DeliveryFailure) error
}

// Result summarises what happened to one inbound event.
type Result struct {
	EventID     string
	Topic       shopify.Topic
	ClientID    string
	Source      session.Source
	Emitted     int
	Delivered   int
	Failed      int
	OrderLinked bool
	Duplicate   bool
	Skipped     bool
}

// Succeeded reports whether at least one event was emitted and all of
// them were delivered.
func (r Result) Succeeded() bool {
	return r.Emitted > 0 && r.Failed == 0
}

// Pipeline correlates, normalizes and delivers inbound events. Process
// never fails: every problem is logged and reflected in the Result.
type Pipeline struct {
	resolver    *session.Resolver
	normalizer  *tracking.Normalizer
	deliverer   Deliverer
	ids         *ids.Generator
	dedupe      Claimer
	archiver    Archiver
	notifier    Notifier
	logger      *zap.Logger
	metrics     metrics.Collector
	concurrency int
	now         func() time.Time
}

type Option func(*Pipeline)

func WithDeduper(c Claimer) Option {
	return func(p *Pipeline) { p.dedupe = c }
}

func WithArchiver(a Archiver) Option {
	return func(p *Pipeline) { p.archiver = a }
}

func WithNotifier(n Notifier) Option {
	return func(p *Pipeline) { p.notifier = n }
}

func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

func WithMetrics(m metrics.Collector) Option {
	return func(p *Pipeline) { p.metrics = metrics.OrNop(m) }
}

// WithConcurrency caps in-flight deliveries per inbound event.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

func New(resolver *session.Resolver, normalizer *tracking.Normalizer, deliverer Deliverer, gen *ids.Generator, opts ...Option) *Pipeline {
	p := &Pipeline{
		resolver:    resolver,
		normalizer:  normalizer,
		deliverer:   deliverer,
		ids:         gen,
		logger:      zap.NewNop(),
		metrics:     metrics.Nop{},
		concurrency: 8,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process handles one inbound event end to end. All deliveries, and the
// order link for orders/paid, have finished when it returns.
func (p *Pipeline) Process(ctx context.Context, ev shopify.Event) Result {
	start := p.now()
	res := Result{EventID: ev.ID, Topic: ev.Topic}

	log := p.logger.With(
		zap.String("topic", string(ev.Topic)),
		zap.String("event_id", ev.ID),
		zap.String("shop", ev.Shop),
	)

	defer func() {
		p.metrics.IncrementCounter("pipeline.events", map[string]string{
			"topic":   string(ev.Topic),
			"outcome": outcome(res),
		})
		p.metrics.RecordDuration("pipeline.duration", p.now().Sub(start), map[string]string{"topic": string(ev.Topic)})
	}()

	if ev.Topic.IsCart() {
		log.Info("cart event received", zap.String("cart_token", shopify.PickString(ev.Payload, "token")))
		res.Skipped = true
		return res
	}
	if !p.normalizer.Supports(ev.Topic) {
		log.Info("no tracking mapping for topic")
		res.Skipped = true
		return res
	}

	if p.dedupe != nil {
		dup, err := p.dedupe.Claim(ctx, ev.WebhookID, ev.Shop, ev.Topic)
		if err != nil {
			log.Warn("webhook dedupe failed, processing anyway", zap.Error(err))
		} else if dup {
			log.Info("duplicate webhook skipped", zap.String("webhook_id", ev.WebhookID))
			res.Duplicate = true
			return res
		}
	}

	keys := ev.Keys()
	resolved := p.resolver.Resolve(ctx, keys)
	clientID := resolved.ClientID
	if clientID == "" {
		clientID = p.ids.SessionID()
		log.Info("no session for event, using fresh client id", zap.String("client_id", clientID))
	}
	res.ClientID = clientID
	res.Source = resolved.Source
	log = log.With(zap.String("client_id", clientID))

	events, err := p.normalizer.Normalize(ev, clientID)
	if err != nil {
		log.Warn("event payload incomplete", zap.Error(err))
	}
	res.Emitted = len(events)

	delivered := make([]bool, len(events))
	var linked bool

	var g errgroup.Group
	g.SetLimit(p.concurrency)

	if ev.Topic == shopify.TopicOrdersPaid && resolved.Persisted && resolved.Source == session.SourceCartToken {
		orderID := shopify.PickID(ev.Payload, "id")
		g.Go(func() error {
			linked = p.resolver.LinkOrder(ctx, keys.CartToken, orderID)
			return nil
		})
	}
	for i, te := range events {
		g.Go(func() error {
			delivered[i] = p.deliverer.Deliver(ctx, te)
			return nil
		})
	}
	_ = g.Wait()

	res.OrderLinked = linked

	var failedNames []string
	for i, ok := range delivered {
		if ok {
			res.Delivered++
			continue
		}
		res.Failed++
		failedNames = append(failedNames, events[i].Name)
	}

	log.Info("event processed",
		zap.String("source", string(res.Source)),
		zap.Int("emitted", res.Emitted),
		zap.Int("delivered", res.Delivered),
		zap.Int("failed", res.Failed),
	)

	if res.Failed > 0 && p.notifier != nil {
		err := p.notifier.NotifyDeliveryFailure(ctx, alerts.DeliveryFailure{
			EventID:    ev.ID,
			Topic:      string(ev.Topic),
			Shop:       ev.Shop,
			ClientID:   clientID,
			EventNames: failedNames,
			Attempted:  res.Emitted,
			OccurredAt: p.now(),
		})
		if err != nil {
			log.Warn("delivery failure alert not sent", zap.Error(err))
		}
	}

	if p.archiver != nil && len(events) > 0 {
		if _, err := p.archiver.Archive(ctx, archiveRows(ev, events, delivered)); err != nil {
			log.Warn("archive tracking events failed", zap.Error(err))
		}
	}

	return res
}

func archiveRows(ev shopify.Event, events []tracking.Event, delivered []bool) []archive.Row {
	rows := make([]archive.Row, 0, len(events))
	for i, te := range events {
		payload, err := json.Marshal(te)
		if err != nil {
			payload = []byte("{}")
		}
		row := archive.Row{
			InboundID:   ev.ID,
			Topic:       string(ev.Topic),
			Shop:        ev.Shop,
			EventName:   te.Name,
			SignalEvent: te.Event,
			ClientID:    te.ClientID,
			Delivered:   delivered[i],
			Payload:     string(payload),
		}
		if te.SentAt != nil && te.SentAt.Valid {
			v := te.SentAt.Value
			row.SentAt = &v
		}
		rows = append(rows, row)
	}
	return rows
}

func outcome(r Result) string {
	switch {
	case r.Duplicate:
		return "duplicate"
	case r.Skipped:
		return "skipped"
	case r.Failed > 0:
		return "failed"
	default:
		return "delivered"
	}
}
