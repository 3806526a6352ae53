package audit

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/stockroom/pkg/observability"
)

// ObjectPutter is the subset of the S3 client used for archiving
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config configures the archive bucket
type S3Config struct {
	Endpoint     string
	Region       string
	Bucket       string
	Prefix       string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// NewS3Client creates an S3 client from static or default credentials
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	var awsConfig aws.Config
	var err error

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		// Static credentials (MinIO or AWS with explicit keys)
		awsConfig, err = config.LoadDefaultConfig(ctx,
			config.WithRegion(cfg.Region),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKey,
				cfg.SecretKey,
				"",
			)),
		)
	} else {
		awsConfig, err = config.LoadDefaultConfig(ctx,
			config.WithRegion(cfg.Region),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.UsePathStyle {
			o.UsePathStyle = true
		}
	}), nil
}

// Archiver uploads an organization's records for a time range to S3 as NDJSON
type Archiver struct {
	reader Reader
	client ObjectPutter
	bucket string
	prefix string
	logger logrus.FieldLogger
}

// NewArchiver creates an archiver
func NewArchiver(reader Reader, client ObjectPutter, bucket, prefix string, logger logrus.FieldLogger) *Archiver {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Archiver{
		reader: reader,
		client: client,
		bucket: bucket,
		prefix: prefix,
		logger: logger.WithField("component", "audit_archiver"),
	}
}

// ObjectKey returns the key used for an organization and range
func (a *Archiver) ObjectKey(organizationID string, start, end time.Time) string {
	name := fmt.Sprintf("%s_%s.ndjson",
		start.UTC().Format("20060102T150405Z"),
		end.UTC().Format("20060102T150405Z"))
	return path.Join(a.prefix, organizationID, name)
}

// Archive uploads the records in [start, end) and returns the key and the
// number of records written. Empty ranges are skipped.
func (a *Archiver) Archive(ctx context.Context, organizationID string, start, end time.Time) (string, int, error) {
	ctx, span := observability.Tracer().Start(ctx, "Archiver.Archive",
		trace.WithAttributes(
			attribute.String("organization.id", organizationID),
			attribute.String("s3.bucket", a.bucket),
		),
	)
	defer span.End()

	records, err := a.reader.Query(ctx, Query{
		OrganizationID: organizationID,
		Start:          start,
		End:            end,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return "", 0, fmt.Errorf("failed to query audit records: %w", err)
	}
	if len(records) == 0 {
		return "", 0, nil
	}

	var buf bytes.Buffer
	if err := Export(&buf, records, ExportFormatNDJSON); err != nil {
		return "", 0, err
	}

	hash := sha256.Sum256(buf.Bytes())
	key := a.ObjectKey(organizationID, start, end)

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String(ExportFormatNDJSON.ContentType()),
		Metadata: map[string]string{
			"checksum-sha256": hex.EncodeToString(hash[:]),
			"record-count":    fmt.Sprintf("%d", len(records)),
		},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upload failed")
		return "", 0, fmt.Errorf("failed to upload audit archive: %w", err)
	}

	span.SetAttributes(attribute.String("s3.key", key), attribute.Int("audit.records", len(records)))
	return key, len(records), nil
}

// Schedule registers a cron job that archives the window preceding each run
// for every organization returned by orgs
func (a *Archiver) Schedule(c *cron.Cron, spec string, window time.Duration, orgs func() []string) (cron.EntryID, error) {
	return c.AddFunc(spec, func() {
		defer observability.RecoverPanic(a.logger, "audit archive job")

		end := time.Now().UTC().Truncate(window)
		start := end.Add(-window)
		a.runOnce(context.Background(), orgs(), start, end)
	})
}

func (a *Archiver) runOnce(ctx context.Context, orgs []string, start, end time.Time) {
	for _, org := range orgs {
		key, n, err := a.Archive(ctx, org, start, end)
		entry := a.logger.WithFields(logrus.Fields{
			"organization_id": org,
			"start":           start,
			"end":             end,
		})
		if err != nil {
			entry.WithError(err).Error("Audit archive failed")
			continue
		}
		if n > 0 {
			entry.WithFields(logrus.Fields{"key": key, "records": n}).Info("Audit records archived")
		}
	}
}
