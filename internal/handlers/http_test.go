package handlers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MX-Development/SimonData-Connector/internal/pipeline"
	"github.com/MX-Development/SimonData-Connector/internal/shopify"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestServeHTTPWebhook(t *testing.T) {
	body := `{"id": 7, "created_at": "2026-01-18T10:21:02Z"}`
	proc := new(mockProcessor)
	proc.On("Process", mock.Anything, mock.MatchedBy(func(ev shopify.Event) bool {
		return ev.Topic == shopify.TopicCustomersCreate && ev.Shop == "demo.myshopify.com"
	})).Return(pipeline.Result{Emitted: 1, Delivered: 1})

	r := NewRouter(proc, secret, WithBackground(context.Background()))
	srv := httptest.NewServer(r)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/webhooks", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("X-Shopify-Hmac-Sha256", shopify.SignWebhook([]byte(body), secret))
	req.Header.Set("X-Shopify-Topic", "customers/create")
	req.Header.Set("X-Shopify-Shop-Domain", "demo.myshopify.com")

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	r.Wait()
	proc.AssertExpectations(t)
}

func TestServeHTTPHealth(t *testing.T) {
	srv := httptest.NewServer(NewRouter(new(mockProcessor), secret))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), `"service":"simondata-connector"`)
}

func TestServeHTTPRejectsOversizedBody(t *testing.T) {
	proc := new(mockProcessor)
	srv := httptest.NewServer(NewRouter(proc, secret))
	defer srv.Close()

	body := strings.Repeat("x", maxBodyBytes+1)
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/webhooks", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("X-Shopify-Hmac-Sha256", shopify.SignWebhook([]byte(body), secret))
	req.Header.Set("X-Shopify-Topic", "orders/paid")

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	proc.AssertNotCalled(t, "Process", mock.Anything, mock.Anything)
}
