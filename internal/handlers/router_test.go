package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/MX-Development/SimonData-Connector/internal/pipeline"
	"github.com/MX-Development/SimonData-Connector/internal/shopify"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const secret = "shpss_test"

type mockProcessor struct{ mock.Mock }

func (m *mockProcessor) Process(ctx context.Context, ev shopify.Event) pipeline.Result {
	args := m.Called(ctx, ev)
	return args.Get(0).(pipeline.Result)
}

func request(method, path, body string, headers map[string]string) events.APIGatewayV2HTTPRequest {
	req := events.APIGatewayV2HTTPRequest{
		RawPath: path,
		Body:    body,
		Headers: headers,
	}
	req.RequestContext.HTTP.Method = method
	req.RequestContext.HTTP.Path = path
	return req
}

func signed(body, topic string) map[string]string {
	return map[string]string{
		"x-shopify-hmac-sha256": shopify.SignWebhook([]byte(body), secret),
		"x-shopify-topic":       topic,
		"x-shopify-shop-domain": "demo.myshopify.com",
		"x-shopify-webhook-id":  "wh-1",
		"content-type":          "application/json",
	}
}

func decode(t *testing.T, resp events.APIGatewayV2HTTPResponse) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &out))
	return out
}

func TestHealth(t *testing.T) {
	r := NewRouter(new(mockProcessor), secret)
	resp, err := r.Handle(context.Background(), request(http.MethodGet, "/health", "", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, decode(t, resp)["ok"])
}

func TestWebhookProcessed(t *testing.T) {
	body := `{"id": 1001, "cart_token": "c1"}`
	proc := new(mockProcessor)
	proc.On("Process", mock.Anything, mock.MatchedBy(func(ev shopify.Event) bool {
		return ev.Topic == shopify.TopicOrdersPaid && ev.ID == "wh-1" &&
			ev.Shop == "demo.myshopify.com" && ev.Payload["cart_token"] == "c1"
	})).Return(pipeline.Result{Emitted: 4, Delivered: 4})

	r := NewRouter(proc, secret)
	resp, err := r.Handle(context.Background(), request(http.MethodPost, "/api/webhooks", body, signed(body, "orders/paid")))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	r.Wait()
	proc.AssertExpectations(t)
}

func TestWebhookAcknowledgedEvenWhenDeliveryFails(t *testing.T) {
	body := `{"id": 7}`
	proc := new(mockProcessor)
	proc.On("Process", mock.Anything, mock.Anything).Return(pipeline.Result{Emitted: 1, Failed: 1})

	r := NewRouter(proc, secret)
	resp, err := r.Handle(context.Background(), request(http.MethodPost, "/api/webhooks", body, signed(body, "customers/create")))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	r.Wait()
}

func TestWebhookBase64Body(t *testing.T) {
	body := `{"id": 7}`
	proc := new(mockProcessor)
	proc.On("Process", mock.Anything, mock.Anything).Return(pipeline.Result{Emitted: 1, Delivered: 1})

	req := request(http.MethodPost, "/api/webhooks", base64.StdEncoding.EncodeToString([]byte(body)), signed(body, "customers/create"))
	req.IsBase64Encoded = true

	r := NewRouter(proc, secret)
	resp, err := r.Handle(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	r.Wait()
	proc.AssertNumberOfCalls(t, "Process", 1)
}

func TestWebhookBadSignature(t *testing.T) {
	body := `{"id": 7}`
	headers := signed(body, "customers/create")
	headers["x-shopify-hmac-sha256"] = shopify.SignWebhook([]byte(body), "other")

	proc := new(mockProcessor)
	resp, err := NewRouter(proc, secret).Handle(context.Background(), request(http.MethodPost, "/api/webhooks", body, headers))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	proc.AssertNotCalled(t, "Process", mock.Anything, mock.Anything)
}

func TestWebhookWithoutSecretRejected(t *testing.T) {
	body := `{"id": 7}`
	proc := new(mockProcessor)
	resp, err := NewRouter(proc, "").Handle(context.Background(), request(http.MethodPost, "/api/webhooks", body, signed(body, "customers/create")))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebhookMissingTopic(t *testing.T) {
	body := `{"id": 7}`
	headers := signed(body, "")
	resp, err := NewRouter(new(mockProcessor), secret).Handle(context.Background(), request(http.MethodPost, "/api/webhooks", body, headers))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebhookInvalidJSONDropped(t *testing.T) {
	body := `not json`
	proc := new(mockProcessor)
	resp, err := NewRouter(proc, secret).Handle(context.Background(), request(http.MethodPost, "/api/webhooks", body, signed(body, "orders/paid")))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	proc.AssertNotCalled(t, "Process", mock.Anything, mock.Anything)
}

func TestWebhookAckDoesNotWaitForDelivery(t *testing.T) {
	body := `{"id": 1001, "cart_token": "c1"}`
	release := make(chan struct{})
	proc := new(mockProcessor)
	proc.On("Process", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { <-release }).
		Return(pipeline.Result{Emitted: 4, Delivered: 4})

	r := NewRouter(proc, secret, WithBackground(context.Background()))

	done := make(chan events.APIGatewayV2HTTPResponse, 1)
	go func() {
		resp, _ := r.Handle(context.Background(), request(http.MethodPost, "/api/webhooks", body, signed(body, "orders/paid")))
		done <- resp
	}()

	select {
	case resp := <-done:
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	case <-time.After(2 * time.Second):
		t.Fatal("webhook acknowledgment waited for processing")
	}

	close(release)
	r.Wait()
	proc.AssertNumberOfCalls(t, "Process", 1)
}

type mockDispatcher struct{ mock.Mock }

func (m *mockDispatcher) Dispatch(ctx context.Context, ev shopify.Event) error {
	return m.Called(ctx, ev).Error(0)
}

func TestWebhookHandedToDispatcher(t *testing.T) {
	body := `{"id": 7}`
	proc := new(mockProcessor)
	d := new(mockDispatcher)
	d.On("Dispatch", mock.Anything, mock.MatchedBy(func(ev shopify.Event) bool {
		return ev.Topic == shopify.TopicCustomersCreate && ev.WebhookID == "wh-1"
	})).Return(nil).Once()
	d.On("Dispatch", mock.Anything, mock.Anything).Return(errors.New("sns throttled"))

	r := NewRouter(proc, secret, WithDispatcher(d))

	resp, err := r.Handle(context.Background(), request(http.MethodPost, "/api/webhooks", body, signed(body, "customers/create")))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = r.Handle(context.Background(), request(http.MethodPost, "/api/webhooks", body, signed(body, "customers/create")))
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	r.Wait()
	proc.AssertNotCalled(t, "Process", mock.Anything, mock.Anything)
}

func TestStorefrontStatusFollowsDelivery(t *testing.T) {
	proc := new(mockProcessor)
	proc.On("Process", mock.Anything, mock.MatchedBy(func(ev shopify.Event) bool {
		return ev.Topic == shopify.TopicAddToCart
	})).Return(pipeline.Result{Emitted: 1, Delivered: 1}).Once()
	proc.On("Process", mock.Anything, mock.Anything).Return(pipeline.Result{Emitted: 1, Failed: 1})

	r := NewRouter(proc, "")
	body := `{"cart_token": "c1", "product": {"id": 1}}`

	resp, err := r.Handle(context.Background(), request(http.MethodPost, "/api/custom/simon-data/add-to-cart", body, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "success", decode(t, resp)["result"])

	resp, err = r.Handle(context.Background(), request(http.MethodPost, "/api/custom/simon-data/add-to-cart", body, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "failed", decode(t, resp)["result"])
}

func TestStorefrontInvalidJSON(t *testing.T) {
	resp, err := NewRouter(new(mockProcessor), "").Handle(context.Background(),
		request(http.MethodPost, "/api/custom/simon-data/product-viewed", "{", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRechargeAlwaysOK(t *testing.T) {
	proc := new(mockProcessor)
	proc.On("Process", mock.Anything, mock.MatchedBy(func(ev shopify.Event) bool {
		return ev.Topic == shopify.TopicSubscriptionCancelled
	})).Return(pipeline.Result{Emitted: 1, Failed: 1})

	resp, err := NewRouter(proc, "").Handle(context.Background(),
		request(http.MethodPost, "/api/custom/recharge/webhooks/cancelled", `{"subscription": {"customer_id": 5}}`, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "failed", decode(t, resp)["result"])
}

func TestRoutingErrors(t *testing.T) {
	r := NewRouter(new(mockProcessor), secret)

	resp, err := r.Handle(context.Background(), request(http.MethodGet, "/api/webhooks", "", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = r.Handle(context.Background(), request(http.MethodPost, "/nope", "", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
