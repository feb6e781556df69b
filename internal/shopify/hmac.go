package shopify

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
)

var (
	ErrMissingSignature = errors.New("missing webhook signature")
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// HeaderHmac carries the base64 HMAC-SHA256 of the raw webhook body.
const HeaderHmac = "X-Shopify-Hmac-Sha256"

// VerifyWebhook checks the X-Shopify-Hmac-Sha256 value against body.
func VerifyWebhook(body []byte, secret, providedB64 string) error {
	providedB64 = strings.TrimSpace(providedB64)
	if providedB64 == "" {
		return ErrMissingSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(providedB64)) {
		return ErrInvalidSignature
	}
	return nil
}

// SignWebhook computes the header value Shopify would send for body.
func SignWebhook(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
