package archive

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/writer"
)

// Row is one archived outbound tracking event with its delivery outcome.
// Columns match the archive Glue table.
type Row struct {
	RowID       string `parquet:"name=row_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	InboundID   string `parquet:"name=inbound_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Topic       string `parquet:"name=topic, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Shop        string `parquet:"name=shop, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	EventName   string `parquet:"name=event_name, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	SignalEvent string `parquet:"name=signal_event, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	ClientID    string `parquet:"name=client_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	SentAt      *int64 `parquet:"name=sent_at, type=INT64, repetitiontype=OPTIONAL"`
	Delivered   bool   `parquet:"name=delivered, type=BOOLEAN"`
	Payload     string `parquet:"name=payload, type=BYTE_ARRAY, convertedtype=UTF8"`
	ArchivedAt  string `parquet:"name=archived_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// RequiredColumns are the archive table columns a reader relies on.
var RequiredColumns = []string{
	"row_id", "inbound_id", "topic", "shop", "event_name", "signal_event",
	"client_id", "sent_at", "delivered", "payload", "archived_at",
}

// PutObjectAPI is the S3 call the archiver needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver writes rows as parquet objects under
//
//	<prefix>dt=YYYY-MM-DD/topic=<topic>/part-<id>.parquet
type S3Archiver struct {
	s3     PutObjectAPI
	bucket string
	prefix string
	tmpDir string
	now    func() time.Time
}

func NewS3Archiver(client PutObjectAPI, bucket, prefix string) *S3Archiver {
	if strings.TrimSpace(prefix) == "" {
		prefix = "tracking_events/"
	}
	return &S3Archiver{
		s3:     client,
		bucket: bucket,
		prefix: ensureTrailingSlash(prefix),
		tmpDir: os.TempDir(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Archive writes one object per topic present in rows and returns the
// keys written.
func (a *S3Archiver) Archive(ctx context.Context, rows []Row) ([]string, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	now := a.now()
	byTopic := map[string][]Row{}
	for _, r := range rows {
		if r.ArchivedAt == "" {
			r.ArchivedAt = now.Format(time.RFC3339)
		}
		if r.RowID == "" {
			r.RowID = uuid.NewString()
		}
		byTopic[r.Topic] = append(byTopic[r.Topic], r)
	}

	topics := make([]string, 0, len(byTopic))
	for t := range byTopic {
		topics = append(topics, t)
	}
	sort.Strings(topics)

	keys := make([]string, 0, len(topics))
	for _, topic := range topics {
		key := fmt.Sprintf("%sdt=%s/topic=%s/part-%s.parquet",
			a.prefix,
			now.Format("2006-01-02"),
			partitionValue(topic),
			uuid.NewString(),
		)
		if err := a.writeRows(ctx, key, byTopic[topic]); err != nil {
			return keys, fmt.Errorf("archive topic=%s: %w", topic, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func (a *S3Archiver) writeRows(ctx context.Context, key string, rows []Row) error {
	localPath := filepath.Join(a.tmpDir, "tracking_events_"+uuid.NewString()+".parquet")
	defer func() { _ = os.Remove(localPath) }()

	fw, err := local.NewLocalFileWriter(localPath)
	if err != nil {
		return fmt.Errorf("parquet file writer: %w", err)
	}

	pw, err := writer.NewParquetWriter(fw, new(Row), 1)
	if err != nil {
		_ = fw.Close()
		return fmt.Errorf("parquet writer: %w", err)
	}
	pw.RowGroupSize = 16 * 1024 * 1024
	pw.PageSize = 8 * 1024
	pw.CompressionType = 0

	for _, r := range rows {
		if err := pw.Write(r); err != nil {
			_ = pw.WriteStop()
			_ = fw.Close()
			return fmt.Errorf("parquet write row: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		_ = fw.Close()
		return fmt.Errorf("parquet write stop: %w", err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("parquet close: %w", err)
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("read parquet tmp: %w", err)
	}

	_, err = a.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		ACL:         s3types.ObjectCannedACLPrivate,
	})
	if err != nil {
		return fmt.Errorf("s3 putobject: %w", err)
	}
	return nil
}

// partitionValue makes a topic safe as a Hive partition value.
func partitionValue(topic string) string {
	r := strings.NewReplacer("/", "_", "=", "_", " ", "_")
	return r.Replace(strings.ToLower(topic))
}

func ensureTrailingSlash(s string) string {
	if s == "" || strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}
