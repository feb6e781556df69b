package app

import (
	"context"
	"fmt"

	"github.com/MX-Development/SimonData-Connector/internal/alerts"
	"github.com/MX-Development/SimonData-Connector/internal/archive"
	"github.com/MX-Development/SimonData-Connector/internal/config"
	"github.com/MX-Development/SimonData-Connector/internal/db"
	"github.com/MX-Development/SimonData-Connector/internal/handlers"
	"github.com/MX-Development/SimonData-Connector/internal/ids"
	"github.com/MX-Development/SimonData-Connector/internal/logging"
	"github.com/MX-Development/SimonData-Connector/internal/metrics"
	"github.com/MX-Development/SimonData-Connector/internal/pipeline"
	"github.com/MX-Development/SimonData-Connector/internal/session"
	"github.com/MX-Development/SimonData-Connector/internal/shopify"
	"github.com/MX-Development/SimonData-Connector/internal/tracking"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/zap"
)

// Deps are the external clients App needs. A nil client disables the
// components built on it.
type Deps struct {
	DynamoDB session.DDBClient
	S3       archive.PutObjectAPI
	SNS      alerts.Publisher
	Metrics  metrics.Collector
}

const serviceName = "simondata-connector"

// App is the fully wired connector.
type App struct {
	Config   config.Config
	Logger   *zap.Logger
	Store    session.Store
	Resolver *session.Resolver
	Pipeline *pipeline.Pipeline

	meters *sdkmetric.MeterProvider
}

// Build loads AWS configuration, resolves secrets and wires every
// component from cfg.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, *db.Clients, error) {
	awsCfg, err := db.LoadAWSConfig(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load aws config: %w", err)
	}
	clients := db.NewClients(awsCfg)

	if err := cfg.ResolveSecrets(ctx, clients.SSM); err != nil {
		return nil, nil, err
	}

	collector, meters, err := newMetrics(ctx, cfg, logging.OrNop(logger))
	if err != nil {
		return nil, nil, err
	}

	a, err := New(cfg, Deps{
		DynamoDB: clients.DynamoDB,
		S3:       clients.S3,
		SNS:      clients.SNS,
		Metrics:  collector,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	a.meters = meters
	return a, clients, nil
}

// newMetrics installs the global meter provider when an OTLP endpoint is
// configured. Without one, metrics are discarded.
func newMetrics(ctx context.Context, cfg config.Config, logger *zap.Logger, readers ...sdkmetric.Reader) (metrics.Collector, *sdkmetric.MeterProvider, error) {
	if cfg.MetricsEndpoint == "" && len(readers) == 0 {
		logger.Info("OTEL_EXPORTER_OTLP_ENDPOINT not set, metrics export disabled")
		return metrics.Nop{}, nil, nil
	}

	mp, err := metrics.NewMeterProvider(ctx, metrics.ProviderConfig{
		ServiceName: serviceName,
		Endpoint:    cfg.MetricsEndpoint,
		Interval:    cfg.MetricsInterval,
	}, readers...)
	if err != nil {
		return nil, nil, err
	}
	otel.SetMeterProvider(mp)
	return metrics.NewOTelWithMeter(mp.Meter(serviceName)), mp, nil
}

// FlushMetrics exports pending metrics. Lambda handlers call it before
// returning because the sandbox may freeze before the next periodic export.
func (a *App) FlushMetrics(ctx context.Context) {
	if a.meters == nil {
		return
	}
	if err := a.meters.ForceFlush(ctx); err != nil {
		a.Logger.Warn("flush metrics", zap.Error(err))
	}
}

// Shutdown flushes and stops the meter provider.
func (a *App) Shutdown(ctx context.Context) error {
	if a.meters == nil {
		return nil
	}
	if err := a.meters.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown meter provider: %w", err)
	}
	return nil
}

// New wires the pipeline from cfg and deps without touching the network.
func New(cfg config.Config, deps Deps, logger *zap.Logger) (*App, error) {
	logger = logging.OrNop(logger)
	m := metrics.OrNop(deps.Metrics)

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	var store session.Store
	if cfg.SessionsTable != "" && deps.DynamoDB != nil {
		store = session.NewDynamoStore(deps.DynamoDB, cfg.SessionsTable,
			session.WithCustomerIndex(cfg.SessionsCustomerIdx),
			session.WithOrderIndex(cfg.SessionsOrderIdx),
		)
	} else {
		logger.Warn("SESSIONS_TABLE not set, sessions are kept in memory")
		store = session.NewMemoryStore()
	}

	gen := ids.NewRandom()
	resolver := session.NewResolver(store, gen,
		session.WithLogger(logger.Named("session")),
		session.WithMetrics(m),
	)

	clientOpts := []tracking.ClientOption{
		tracking.WithTimeout(cfg.DeliveryTimeout),
		tracking.WithClientLogger(logger.Named("tracking")),
		tracking.WithClientMetrics(m),
	}
	if cfg.DeliveryMaxAttempts > 1 {
		clientOpts = append(clientOpts, tracking.WithRetry(tracking.DefaultRetryPolicy(cfg.DeliveryMaxAttempts)))
	}
	deliverer := tracking.NewClient(cfg.IngestionURL, tracking.Credentials{
		PartnerID:     cfg.PartnerID,
		PartnerSecret: cfg.PartnerSecret,
	}, clientOpts...)

	opts := []pipeline.Option{
		pipeline.WithLogger(logger.Named("pipeline")),
		pipeline.WithMetrics(m),
		pipeline.WithConcurrency(cfg.DeliveryConcurrency),
	}
	if cfg.DedupeTable != "" && deps.DynamoDB != nil {
		opts = append(opts, pipeline.WithDeduper(shopify.NewDeduper(deps.DynamoDB, cfg.DedupeTable)))
	}
	if cfg.ArchiveBucket != "" && deps.S3 != nil {
		opts = append(opts, pipeline.WithArchiver(archive.NewS3Archiver(deps.S3, cfg.ArchiveBucket, cfg.ArchivePrefix)))
	}
	if cfg.FailureTopicArn != "" && deps.SNS != nil {
		opts = append(opts, pipeline.WithNotifier(alerts.NewSNSNotifier(deps.SNS, cfg.FailureTopicArn)))
	}

	p := pipeline.New(resolver, tracking.NewNormalizer(tracking.WithLocation(loc)), deliverer, gen, opts...)

	return &App{
		Config:   cfg,
		Logger:   logger,
		Store:    store,
		Resolver: resolver,
		Pipeline: p,
	}, nil
}

// Router returns the HTTP router for the webhook and storefront endpoints.
func (a *App) Router(opts ...handlers.RouterOption) *handlers.Router {
	opts = append([]handlers.RouterOption{handlers.WithRouterLogger(a.Logger.Named("http"))}, opts...)
	return handlers.NewRouter(a.Pipeline, a.Config.WebhookSecret, opts...)
}
