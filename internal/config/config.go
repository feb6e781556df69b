package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// ErrMissingSetting is returned when a required environment variable is unset.
var ErrMissingSetting = errors.New("missing required setting")

// Config is the runtime configuration shared by every entry point.
type Config struct {
	IngestionURL       string
	PartnerID          string
	PartnerSecret      string
	PartnerSecretParam string

	WebhookSecret string

	SessionsTable       string
	SessionsCustomerIdx string
	SessionsOrderIdx    string
	DedupeTable         string

	DeliveryTimeout     time.Duration
	DeliveryMaxAttempts int
	DeliveryConcurrency int
	Timezone            string

	ArchiveBucket        string
	ArchivePrefix        string
	FailureTopicArn      string
	WebhookQueueTopicArn string

	GlueDatabase      string
	ArchiveTable      string
	AthenaWorkgroup   string
	AthenaOutput      string
	ShopifyAPIVersion string

	LogLevel        string
	HTTPAddr        string
	MetricsEndpoint string
	MetricsInterval time.Duration
}

// Load reads configuration from the environment and validates the
// settings every entry point needs to deliver events.
func Load() (Config, error) {
	c := Config{
		IngestionURL:       getString("SIMON_INGESTION_URL", ""),
		PartnerID:          getString("SIMON_PARTNER_ID", ""),
		PartnerSecret:      getString("SIMON_PARTNER_SECRET", ""),
		PartnerSecretParam: getString("SIMON_PARTNER_SECRET_PARAM", ""),

		WebhookSecret: getString("SHOPIFY_API_SECRET", ""),

		SessionsTable:       getString("SESSIONS_TABLE", ""),
		SessionsCustomerIdx: getString("SESSIONS_CUSTOMER_INDEX", "GSI_CustomerId"),
		SessionsOrderIdx:    getString("SESSIONS_ORDER_INDEX", "GSI_OrderId"),
		DedupeTable:         getString("SHOPIFY_WEBHOOK_DEDUPE_TABLE", ""),

		DeliveryTimeout:     time.Duration(getInt("DELIVERY_TIMEOUT_MS", 10000)) * time.Millisecond,
		DeliveryMaxAttempts: getInt("DELIVERY_MAX_ATTEMPTS", 1),
		DeliveryConcurrency: getInt("DELIVERY_CONCURRENCY", 8),
		Timezone:            getString("TRACKING_TIMEZONE", "Local"),

		ArchiveBucket:        getString("ARCHIVE_BUCKET", ""),
		ArchivePrefix:        getString("ARCHIVE_PREFIX", "tracking_events/"),
		FailureTopicArn:      getString("DELIVERY_FAILURE_TOPIC_ARN", ""),
		WebhookQueueTopicArn: getString("WEBHOOK_QUEUE_TOPIC_ARN", ""),

		GlueDatabase:      getString("ARCHIVE_GLUE_DATABASE", ""),
		ArchiveTable:      getString("ARCHIVE_TABLE", ""),
		AthenaWorkgroup:   getString("ATHENA_WORKGROUP", "primary"),
		AthenaOutput:      getString("ATHENA_OUTPUT", ""),
		ShopifyAPIVersion: getString("SHOPIFY_API_VERSION", "2026-01"),

		LogLevel:        getString("LOG_LEVEL", "info"),
		HTTPAddr:        getString("HTTP_ADDR", ":8081"),
		MetricsEndpoint: getString("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		MetricsInterval: time.Duration(getInt("METRICS_EXPORT_INTERVAL_MS", 60000)) * time.Millisecond,
	}

	var missing []string
	if c.IngestionURL == "" {
		missing = append(missing, "SIMON_INGESTION_URL")
	}
	if c.PartnerID == "" {
		missing = append(missing, "SIMON_PARTNER_ID")
	}
	if c.PartnerSecret == "" && c.PartnerSecretParam == "" {
		missing = append(missing, "SIMON_PARTNER_SECRET or SIMON_PARTNER_SECRET_PARAM")
	}
	if len(missing) > 0 {
		return c, fmt.Errorf("%w: %s", ErrMissingSetting, strings.Join(missing, ", "))
	}

	if c.DeliveryMaxAttempts < 1 {
		c.DeliveryMaxAttempts = 1
	}
	if c.DeliveryConcurrency < 1 {
		c.DeliveryConcurrency = 1
	}
	if c.DeliveryTimeout <= 0 {
		c.DeliveryTimeout = 10 * time.Second
	}
	return c, nil
}

// Location resolves Timezone. "Local" (or empty) is the process zone.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %s: %w", c.Timezone, err)
	}
	return loc, nil
}

// ParamClient is the subset of the SSM API used to resolve secrets.
type ParamClient interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// ResolveSecrets fills PartnerSecret from SSM Parameter Store when only the
// parameter name is configured. An explicit secret wins.
func (c *Config) ResolveSecrets(ctx context.Context, client ParamClient) error {
	if c.PartnerSecret != "" || c.PartnerSecretParam == "" {
		return nil
	}

	out, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(c.PartnerSecretParam),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("ssm get parameter %s: %w", c.PartnerSecretParam, err)
	}
	if out.Parameter == nil || aws.ToString(out.Parameter.Value) == "" {
		return fmt.Errorf("%w: ssm parameter %s is empty", ErrMissingSetting, c.PartnerSecretParam)
	}

	c.PartnerSecret = aws.ToString(out.Parameter.Value)
	return nil
}

func getString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
