package tracking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/MX-Development/SimonData-Connector/internal/metrics"

	"go.uber.org/zap"
)

// Credentials identify this integration to the ingestion endpoint.
type Credentials struct {
	PartnerID     string
	PartnerSecret string
}

// Client posts tracking events to the ingestion endpoint. Deliver reports
// success as a bool and never returns an error.
type Client struct {
	endpoint string
	creds    Credentials
	http     *http.Client
	retry    RetryPolicy
	logger   *zap.Logger
	metrics  metrics.Collector
}

type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout bounds each POST, including reading the response.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			hc := *c.http
			hc.Timeout = d
			c.http = &hc
		}
	}
}

func WithRetry(p RetryPolicy) ClientOption {
	return func(c *Client) { c.retry = p }
}

func WithClientLogger(l *zap.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithClientMetrics(m metrics.Collector) ClientOption {
	return func(c *Client) { c.metrics = metrics.OrNop(m) }
}

func NewClient(endpoint string, creds Credentials, opts ...ClientOption) *Client {
	c := &Client{
		endpoint: endpoint,
		creds:    creds,
		http:     &http.Client{Timeout: 10 * time.Second},
		retry:    SingleAttempt(),
		logger:   zap.NewNop(),
		metrics:  metrics.Nop{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Deliver sends ev and reports whether the endpoint answered 2xx.
func (c *Client) Deliver(ctx context.Context, ev Event) bool {
	ev.PartnerID = c.creds.PartnerID
	ev.PartnerSecret = c.creds.PartnerSecret

	log := c.logger.With(
		zap.String("event_name", ev.Name),
		zap.String("client_id", ev.ClientID),
	)

	body, err := json.Marshal(ev)
	if err != nil {
		log.Error("encode tracking event", zap.Error(err))
		c.metrics.IncrementCounter("tracking.delivery.failure", map[string]string{"event": ev.Name, "reason": "encode"})
		return false
	}

	start := time.Now()
	ok := c.retry.Do(ctx, func(attempt int) (bool, bool) {
		status, err := c.post(ctx, body)
		if err != nil {
			log.Warn("tracking delivery failed", zap.Int("attempt", attempt), zap.Error(err))
			return false, ctx.Err() == nil
		}
		if status < 200 || status >= 300 {
			log.Warn("tracking delivery rejected", zap.Int("attempt", attempt), zap.Int("status", status))
			return false, status == http.StatusTooManyRequests || status >= 500
		}
		return true, false
	})
	c.metrics.RecordDuration("tracking.delivery.duration", time.Since(start), map[string]string{"event": ev.Name})

	if !ok {
		c.metrics.IncrementCounter("tracking.delivery.failure", map[string]string{"event": ev.Name})
		return false
	}

	log.Debug("tracking event delivered")
	c.metrics.IncrementCounter("tracking.delivery.success", map[string]string{"event": ev.Name})
	return true
}

func (c *Client) post(ctx context.Context, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 64<<10))

	return res.StatusCode, nil
}
