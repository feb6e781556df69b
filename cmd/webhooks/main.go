package main

import (
	"context"
	"log"

	"github.com/MX-Development/SimonData-Connector/internal/app"
	"github.com/MX-Development/SimonData-Connector/internal/config"
	"github.com/MX-Development/SimonData-Connector/internal/handlers"
	"github.com/MX-Development/SimonData-Connector/internal/logging"
	"github.com/MX-Development/SimonData-Connector/internal/shopify"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// Lambda freezes the sandbox after the response, so verified webhooks
	// are queued for cmd/tracking-worker instead of processed here.
	if cfg.WebhookQueueTopicArn == "" {
		logger.Fatal("WEBHOOK_QUEUE_TOPIC_ARN is required")
	}

	a, clients, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("build app", zap.Error(err))
	}

	router := a.Router(handlers.WithDispatcher(shopify.NewForwarder(clients.SNS, cfg.WebhookQueueTopicArn)))
	lambda.Start(func(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
		defer a.FlushMetrics(ctx)
		return router.Handle(ctx, req)
	})
}
