package handlers

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MX-Development/SimonData-Connector/internal/pipeline"
	"github.com/MX-Development/SimonData-Connector/internal/shopify"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Processor runs one inbound event through the tracking pipeline.
type Processor interface {
	Process(ctx context.Context, ev shopify.Event) pipeline.Result
}

const (
	pathHealth   = "/health"
	pathWebhooks = "/api/webhooks"
)

// Storefront endpoints answer 200 when every event was delivered, 500
// otherwise.
var storefrontRoutes = map[string]shopify.Topic{
	"/api/custom/simon-data/product-viewed":   shopify.TopicProductViewed,
	"/api/custom/simon-data/add-to-cart":      shopify.TopicAddToCart,
	"/api/custom/simon-data/update-cart":      shopify.TopicUpdateCart,
	"/api/custom/simon-data/remove-from-cart": shopify.TopicRemoveFromCart,
	"/api/custom/back-in-stock":               shopify.TopicBackInStock,
}

// Recharge endpoints always answer 200 and report the outcome in the body.
var rechargeRoutes = map[string]shopify.Topic{
	"/api/custom/recharge/webhooks/created":   shopify.TopicSubscriptionCreated,
	"/api/custom/recharge/webhooks/cancelled": shopify.TopicSubscriptionCancelled,
}

// Router serves the connector's HTTP API on API Gateway v2 events.
type Router struct {
	proc          Processor
	dispatch      Dispatcher
	webhookSecret string
	logger        *zap.Logger
	now           func() time.Time
}

type RouterOption func(*Router)

func WithRouterLogger(l *zap.Logger) RouterOption {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithDispatcher replaces the in-process hand-off for verified webhooks.
func WithDispatcher(d Dispatcher) RouterOption {
	return func(r *Router) {
		if d != nil {
			r.dispatch = d
		}
	}
}

// WithBackground runs verified webhooks in-process on ctx instead of the
// request context. Call Wait before shutting down.
func WithBackground(ctx context.Context) RouterOption {
	return func(r *Router) { r.dispatch = NewBackground(ctx, r.proc) }
}

func NewRouter(proc Processor, webhookSecret string, opts ...RouterOption) *Router {
	r := &Router{
		proc:          proc,
		webhookSecret: webhookSecret,
		logger:        zap.NewNop(),
		now:           func() time.Time { return time.Now().UTC() },
	}
	r.dispatch = NewBackground(context.Background(), proc)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Wait blocks until in-process webhook work has drained.
func (r *Router) Wait() {
	if w, ok := r.dispatch.(interface{ Wait() }); ok {
		w.Wait()
	}
}

func (r *Router) Handle(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	method := strings.ToUpper(req.RequestContext.HTTP.Method)
	path := req.RawPath
	if path == "" {
		path = req.RequestContext.HTTP.Path
	}

	switch {
	case path == pathHealth:
		return jsonResp(http.StatusOK, map[string]any{
			"ok":      true,
			"service": "simondata-connector",
			"time":    r.now().Format(time.RFC3339),
		})
	case path == pathWebhooks:
		if method != http.MethodPost {
			return errResp(http.StatusMethodNotAllowed, "method not allowed")
		}
		return r.webhook(ctx, req)
	}

	if topic, ok := storefrontRoutes[path]; ok {
		if method != http.MethodPost {
			return errResp(http.StatusMethodNotAllowed, "method not allowed")
		}
		return r.direct(ctx, req, topic, http.StatusInternalServerError)
	}
	if topic, ok := rechargeRoutes[path]; ok {
		if method != http.MethodPost {
			return errResp(http.StatusMethodNotAllowed, "method not allowed")
		}
		return r.direct(ctx, req, topic, http.StatusOK)
	}

	return errResp(http.StatusNotFound, "not found")
}

// webhook verifies a Shopify webhook and hands it off without waiting for
// delivery. Once the signature checks out the answer is 200 unless the
// hand-off itself failed.
func (r *Router) webhook(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	body, err := rawBody(req)
	if err != nil {
		return errResp(http.StatusBadRequest, "invalid body encoding")
	}

	topic := header(req, "X-Shopify-Topic")
	shop := header(req, "X-Shopify-Shop-Domain")
	webhookID := header(req, "X-Shopify-Webhook-Id")
	log := r.logger.With(zap.String("topic", topic), zap.String("shop", shop), zap.String("webhook_id", webhookID))

	if r.webhookSecret == "" {
		log.Error("webhook rejected: SHOPIFY_API_SECRET not configured")
		return errResp(http.StatusUnauthorized, "unauthorized")
	}
	if err := shopify.VerifyWebhook(body, r.webhookSecret, header(req, shopify.HeaderHmac)); err != nil {
		log.Warn("webhook rejected", zap.Error(err))
		return errResp(http.StatusUnauthorized, "unauthorized")
	}
	if topic == "" {
		return errResp(http.StatusBadRequest, "missing X-Shopify-Topic")
	}

	payload, err := shopify.DecodePayload(body)
	if err != nil {
		log.Warn("webhook payload dropped", zap.Error(err))
		return jsonResp(http.StatusOK, map[string]any{"ok": true})
	}

	ev := shopify.Event{
		ID:         shopify.WebhookIDOrNew(webhookID),
		WebhookID:  webhookID,
		Topic:      shopify.Topic(topic),
		Shop:       shop,
		Payload:    payload,
		ReceivedAt: r.now(),
	}

	if err := r.dispatch.Dispatch(ctx, ev); err != nil {
		log.Error("webhook hand-off failed", zap.Error(err))
		return errResp(http.StatusServiceUnavailable, "try again later")
	}

	return jsonResp(http.StatusOK, map[string]any{"ok": true})
}

func (r *Router) direct(ctx context.Context, req events.APIGatewayV2HTTPRequest, topic shopify.Topic, failStatus int) (events.APIGatewayV2HTTPResponse, error) {
	body, err := rawBody(req)
	if err != nil {
		return errResp(http.StatusBadRequest, "invalid body encoding")
	}
	payload, err := shopify.DecodePayload(body)
	if err != nil {
		return errResp(http.StatusBadRequest, "invalid JSON body")
	}

	res := r.proc.Process(ctx, shopify.Event{
		ID:         uuid.NewString(),
		Topic:      topic,
		Payload:    payload,
		ReceivedAt: r.now(),
	})
	if res.Succeeded() {
		return resultResp(http.StatusOK, true)
	}
	return resultResp(failStatus, false)
}

func rawBody(req events.APIGatewayV2HTTPRequest) ([]byte, error) {
	if !req.IsBase64Encoded {
		return []byte(req.Body), nil
	}
	b, err := base64.StdEncoding.DecodeString(req.Body)
	if err != nil {
		return nil, errors.New("body is not valid base64")
	}
	return b, nil
}

// header looks name up case-insensitively; API Gateway lowercases keys.
func header(req events.APIGatewayV2HTTPRequest, name string) string {
	if v, ok := req.Headers[strings.ToLower(name)]; ok {
		return strings.TrimSpace(v)
	}
	for k, v := range req.Headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
