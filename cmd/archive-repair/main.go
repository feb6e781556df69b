package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/MX-Development/SimonData-Connector/internal/archive"
	"github.com/MX-Development/SimonData-Connector/internal/config"
	"github.com/MX-Development/SimonData-Connector/internal/db"
	"github.com/MX-Development/SimonData-Connector/internal/logging"

	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"
)

type repairer struct {
	cfg     config.Config
	clients *db.Clients
	logger  *zap.Logger
}

// handle runs on a schedule. It checks the archive table still carries the
// columns the archiver writes, then registers new partitions.
func (r *repairer) handle(ctx context.Context) (archive.RepairResult, error) {
	schema, err := archive.LoadTableSchema(ctx, r.clients.Glue, r.cfg.GlueDatabase, r.cfg.ArchiveTable)
	if err != nil {
		return archive.RepairResult{}, err
	}
	if missing := schema.Missing(archive.RequiredColumns...); len(missing) > 0 {
		return archive.RepairResult{}, fmt.Errorf("archive table %s.%s is missing columns %v", r.cfg.GlueDatabase, r.cfg.ArchiveTable, missing)
	}

	res, err := archive.RepairPartitions(ctx, r.clients.Athena, archive.RepairOptions{
		Database:     r.cfg.GlueDatabase,
		Table:        r.cfg.ArchiveTable,
		Workgroup:    r.cfg.AthenaWorkgroup,
		Output:       r.cfg.AthenaOutput,
		PollInterval: 2 * time.Second,
		Timeout:      5 * time.Minute,
	})
	if err != nil {
		r.logger.Error("repair partitions failed", zap.String("query_id", res.QueryID), zap.Error(err))
		return res, err
	}
	r.logger.Info("partitions repaired", zap.String("query_id", res.QueryID), zap.String("state", res.State))
	return res, nil
}

func main() {
	ctx := context.Background()

	// Only the catalog settings matter here; delivery settings may be unset.
	cfg, _ := config.Load()
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	awsCfg, err := db.LoadAWSConfig(ctx)
	if err != nil {
		logger.Fatal("load aws config", zap.Error(err))
	}

	r := &repairer{cfg: cfg, clients: db.NewClients(awsCfg), logger: logger.Named("archive-repair")}
	lambda.Start(r.handle)
}
