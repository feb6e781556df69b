package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// ProviderConfig controls the SDK meter provider.
type ProviderConfig struct {
	ServiceName string
	// Endpoint is an OTLP/gRPC collector, "host:port" or a URL. Empty means
	// no exporter is attached. TLS and headers follow the standard
	// OTEL_EXPORTER_OTLP_* variables.
	Endpoint string
	Interval time.Duration
}

// NewMeterProvider builds an SDK meter provider exporting over OTLP when an
// endpoint is configured. Extra readers are attached as given.
func NewMeterProvider(ctx context.Context, cfg ProviderConfig, readers ...sdkmetric.Reader) (*sdkmetric.MeterProvider, error) {
	opts := []sdkmetric.Option{
		sdkmetric.WithResource(resource.NewSchemaless(attribute.String("service.name", cfg.ServiceName))),
	}

	if ep := strings.TrimSpace(cfg.Endpoint); ep != "" {
		var expOpts []otlpmetricgrpc.Option
		if strings.Contains(ep, "://") {
			expOpts = append(expOpts, otlpmetricgrpc.WithEndpointURL(ep))
		} else {
			expOpts = append(expOpts, otlpmetricgrpc.WithEndpoint(ep))
		}
		exp, err := otlpmetricgrpc.New(ctx, expOpts...)
		if err != nil {
			return nil, fmt.Errorf("otlp metric exporter: %w", err)
		}

		interval := cfg.Interval
		if interval <= 0 {
			interval = time.Minute
		}
		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(interval))))
	}

	for _, r := range readers {
		opts = append(opts, sdkmetric.WithReader(r))
	}
	return sdkmetric.NewMeterProvider(opts...), nil
}
