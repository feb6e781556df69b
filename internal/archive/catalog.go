package archive

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	athenatypes "github.com/aws/aws-sdk-go-v2/service/athena/types"
	"github.com/aws/aws-sdk-go-v2/service/glue"
)

type GlueClient interface {
	GetTable(ctx context.Context, params *glue.GetTableInput, optFns ...func(*glue.Options)) (*glue.GetTableOutput, error)
}

type AthenaClient interface {
	StartQueryExecution(ctx context.Context, params *athena.StartQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.StartQueryExecutionOutput, error)
	GetQueryExecution(ctx context.Context, params *athena.GetQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.GetQueryExecutionOutput, error)
}

type TableSchema struct {
	Database   string
	Table      string
	Location   string
	Columns    []Column
	Partitions []Column
}

type Column struct {
	Name string
	Type string
}

func LoadTableSchema(ctx context.Context, c GlueClient, database, table string) (*TableSchema, error) {
	out, err := c.GetTable(ctx, &glue.GetTableInput{
		DatabaseName: aws.String(database),
		Name:         aws.String(table),
	})
	if err != nil {
		return nil, fmt.Errorf("glue GetTable %s.%s: %w", database, table, err)
	}
	if out.Table == nil {
		return nil, fmt.Errorf("glue GetTable %s.%s: empty table", database, table)
	}

	ti := out.Table
	schema := &TableSchema{
		Database: database,
		Table:    aws.ToString(ti.Name),
	}

	if sd := ti.StorageDescriptor; sd != nil {
		schema.Location = aws.ToString(sd.Location)
		for _, col := range sd.Columns {
			schema.Columns = append(schema.Columns, Column{
				Name: strings.ToLower(aws.ToString(col.Name)),
				Type: strings.ToLower(aws.ToString(col.Type)),
			})
		}
	}
	for _, p := range ti.PartitionKeys {
		schema.Partitions = append(schema.Partitions, Column{
			Name: strings.ToLower(aws.ToString(p.Name)),
			Type: strings.ToLower(aws.ToString(p.Type)),
		})
	}

	sort.Slice(schema.Columns, func(i, j int) bool { return schema.Columns[i].Name < schema.Columns[j].Name })
	sort.Slice(schema.Partitions, func(i, j int) bool { return schema.Partitions[i].Name < schema.Partitions[j].Name })

	return schema, nil
}

// Missing returns the names in required that the table lacks, checking
// both columns and partition keys.
func (s *TableSchema) Missing(required ...string) []string {
	have := map[string]bool{}
	for _, c := range s.Columns {
		have[c.Name] = true
	}
	for _, p := range s.Partitions {
		have[p.Name] = true
	}

	var missing []string
	for _, r := range required {
		if !have[strings.ToLower(r)] {
			missing = append(missing, r)
		}
	}
	return missing
}

type RepairOptions struct {
	Database     string
	Table        string
	Workgroup    string
	Output       string
	PollInterval time.Duration
	Timeout      time.Duration
}

type RepairResult struct {
	Ok        bool   `json:"ok"`
	QueryID   string `json:"query_id,omitempty"`
	State     string `json:"state,omitempty"`
	Database  string `json:"database,omitempty"`
	Table     string `json:"table,omitempty"`
	Workgroup string `json:"workgroup,omitempty"`
	Output    string `json:"output,omitempty"`
}

// RepairPartitions runs MSCK REPAIR TABLE so partitions written by the
// archiver become queryable, and waits for it to finish.
func RepairPartitions(ctx context.Context, ath AthenaClient, opts RepairOptions) (RepairResult, error) {
	if opts.Database == "" || opts.Table == "" || opts.Output == "" {
		return RepairResult{}, fmt.Errorf("repair partitions: database, table and output are required")
	}
	if !strings.HasPrefix(opts.Output, "s3://") {
		return RepairResult{}, fmt.Errorf("repair partitions: output must start with s3://")
	}
	if opts.Workgroup == "" {
		opts.Workgroup = "primary"
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}

	startOut, err := ath.StartQueryExecution(ctx, &athena.StartQueryExecutionInput{
		QueryString: aws.String(fmt.Sprintf("MSCK REPAIR TABLE %s;", opts.Table)),
		QueryExecutionContext: &athenatypes.QueryExecutionContext{
			Database: aws.String(opts.Database),
		},
		WorkGroup: aws.String(opts.Workgroup),
		ResultConfiguration: &athenatypes.ResultConfiguration{
			OutputLocation: aws.String(opts.Output),
		},
	})
	if err != nil {
		return RepairResult{}, fmt.Errorf("StartQueryExecution: %w", err)
	}

	res := RepairResult{
		QueryID:   aws.ToString(startOut.QueryExecutionId),
		Database:  opts.Database,
		Table:     opts.Table,
		Workgroup: opts.Workgroup,
		Output:    opts.Output,
	}

	deadline := time.Now().Add(opts.Timeout)
	for time.Now().Before(deadline) {
		st, err := ath.GetQueryExecution(ctx, &athena.GetQueryExecutionInput{
			QueryExecutionId: aws.String(res.QueryID),
		})
		if err != nil {
			return res, fmt.Errorf("GetQueryExecution: %w", err)
		}

		var state athenatypes.QueryExecutionState
		var reason string
		if st.QueryExecution != nil && st.QueryExecution.Status != nil {
			state = st.QueryExecution.Status.State
			reason = aws.ToString(st.QueryExecution.Status.StateChangeReason)
		}
		res.State = string(state)

		switch state {
		case athenatypes.QueryExecutionStateSucceeded:
			res.Ok = true
			return res, nil
		case athenatypes.QueryExecutionStateFailed, athenatypes.QueryExecutionStateCancelled:
			return res, fmt.Errorf("repair %s: %s", state, reason)
		}

		select {
		case <-ctx.Done():
			return res, ctx.Err()
		case <-time.After(opts.PollInterval):
		}
	}

	res.State = "TIMEOUT"
	return res, fmt.Errorf("repair timed out waiting for qid=%s", res.QueryID)
}
