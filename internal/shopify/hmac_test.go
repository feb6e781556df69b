package shopify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifyWebhook(t *testing.T) {
	body := []byte(`{"id":1001,"cart_token":"c1"}`)
	sig := SignWebhook(body, "shpss_secret")

	assert.NoError(t, VerifyWebhook(body, "shpss_secret", sig))
	assert.NoError(t, VerifyWebhook(body, "shpss_secret", "  "+sig+"\n"))
	assert.ErrorIs(t, VerifyWebhook(body, "other", sig), ErrInvalidSignature)
	assert.ErrorIs(t, VerifyWebhook([]byte(`{"id":1002}`), "shpss_secret", sig), ErrInvalidSignature)
	assert.ErrorIs(t, VerifyWebhook(body, "shpss_secret", ""), ErrMissingSignature)
}
