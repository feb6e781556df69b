package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

type webhookCreateReq struct {
	Webhook struct {
		Address string `json:"address"`
		Topic   string `json:"topic"`
		Format  string `json:"format"`
	} `json:"webhook"`
}

// AdminClient talks to the Shopify Admin REST API for one shop.
type AdminClient struct {
	ShopDomain  string
	APIVersion  string
	AccessToken string
	HTTP        *http.Client
}

func (c *AdminClient) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

func (c *AdminClient) baseURL() string {
	if strings.HasPrefix(c.ShopDomain, "http://") || strings.HasPrefix(c.ShopDomain, "https://") {
		return strings.TrimRight(c.ShopDomain, "/")
	}
	return "https://" + c.ShopDomain
}

// CreateWebhook subscribes address to topic. address is either an HTTPS
// endpoint or an EventBridge partner event source ARN.
func (c *AdminClient) CreateWebhook(ctx context.Context, topic Topic, address string) error {
	url := fmt.Sprintf("%s/admin/api/%s/webhooks.json", c.baseURL(), c.APIVersion)

	var payload webhookCreateReq
	payload.Webhook.Address = address
	payload.Webhook.Topic = string(topic)
	payload.Webhook.Format = "json"

	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", c.AccessToken)

	res, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	raw, _ := io.ReadAll(res.Body)
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("create webhook failed: http %d: %s", res.StatusCode, string(raw))
	}
	return nil
}

// SubscriptionFailure records one topic that could not be subscribed.
type SubscriptionFailure struct {
	Topic Topic  `json:"topic"`
	Error string `json:"error"`
}

// Subscribe registers every topic in WebhookTopics. It keeps going after a
// failure and reports what worked and what did not.
func (c *AdminClient) Subscribe(ctx context.Context, address string) (created []Topic, failed []SubscriptionFailure) {
	for _, t := range WebhookTopics {
		if err := c.CreateWebhook(ctx, t, address); err != nil {
			failed = append(failed, SubscriptionFailure{Topic: t, Error: err.Error()})
			continue
		}
		created = append(created, t)
	}
	return created, failed
}
