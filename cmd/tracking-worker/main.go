package main

import (
	"context"
	"log"
	"time"

	"github.com/MX-Development/SimonData-Connector/internal/app"
	"github.com/MX-Development/SimonData-Connector/internal/config"
	"github.com/MX-Development/SimonData-Connector/internal/logging"
	"github.com/MX-Development/SimonData-Connector/internal/pipeline"
	"github.com/MX-Development/SimonData-Connector/internal/shopify"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"
)

type worker struct {
	proc   *pipeline.Pipeline
	logger *zap.Logger
	flush  func(context.Context)
}

// handle processes Shopify webhooks delivered through EventBridge and SQS,
// and those queued by cmd/webhooks.
// Delivery failures are alerted and archived by the pipeline, so every
// message is acknowledged; redelivery would only duplicate accepted events.
func (w *worker) handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	if w.flush != nil {
		defer w.flush(ctx)
	}
	for _, rec := range sqsEvent.Records {
		ev, err := shopify.FromEventBridge([]byte(rec.Body), time.Now().UTC())
		if err != nil {
			w.logger.Warn("dropping unreadable message", zap.String("message_id", rec.MessageId), zap.Error(err))
			continue
		}
		res := w.proc.Process(ctx, ev)
		if res.Failed > 0 {
			w.logger.Warn("message processed with delivery failures",
				zap.String("message_id", rec.MessageId),
				zap.String("topic", string(ev.Topic)),
				zap.Int("failed", res.Failed),
			)
		}
	}
	return events.SQSEventResponse{BatchItemFailures: []events.SQSBatchItemFailure{}}, nil
}

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

	a, _, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("build app", zap.Error(err))
	}

	w := &worker{proc: a.Pipeline, logger: logger.Named("worker"), flush: a.FlushMetrics}
	lambda.Start(w.handle)
}
