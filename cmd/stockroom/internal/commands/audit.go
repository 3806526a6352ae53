package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/platinummonkey/stockroom/pkg/audit"
)

// AuditCmd groups the audit subcommands
type AuditCmd struct {
	Export  AuditExportCmd  `cmd:"" help:"Export an organization's audit records."`
	Archive AuditArchiveCmd `cmd:"" help:"Upload an organization's audit records for a time range to S3."`
}

// AuditExportCmd reads the configured audit sink directly. It is an
// operator tool and is not subject to role policies.
type AuditExportCmd struct {
	Org      string    `help:"Organization ID." required:""`
	Start    time.Time `help:"Inclusive start (RFC3339)."`
	End      time.Time `help:"Exclusive end (RFC3339)."`
	Actor    string    `help:"Only records of this user."`
	Decision string    `help:"Only allowed or denied records."`
	Format   string    `help:"Output format." enum:"json,ndjson,csv" default:"json"`
	Output   string    `short:"o" help:"Output file; defaults to stdout." type:"path"`
}

func (e *AuditExportCmd) Run(ctx context.Context, globals *Globals) error {
	cfg, logger, err := globals.load()
	if err != nil {
		return err
	}
	format, err := audit.ParseExportFormat(e.Format)
	if err != nil {
		return err
	}
	decision := audit.Decision(e.Decision)
	if decision != "" && decision != audit.DecisionAllowed && decision != audit.DecisionDenied {
		return fmt.Errorf("decision must be allowed or denied")
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	records, err := a.auditStore.Query(ctx, audit.Query{
		OrganizationID: e.Org,
		Start:          e.Start,
		End:            e.End,
		ActorUserID:    e.Actor,
		Decision:       decision,
	})
	if err != nil {
		return err
	}

	var out io.Writer = os.Stdout
	if e.Output != "" {
		f, err := os.Create(e.Output)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", e.Output, err)
		}
		defer f.Close()
		out = f
	}
	return audit.Export(out, records, format)
}

// AuditArchiveCmd runs one archive upload outside the schedule
type AuditArchiveCmd struct {
	Org   string        `help:"Organization ID." required:""`
	End   time.Time     `help:"Exclusive end (RFC3339); defaults to now."`
	Since time.Duration `help:"Length of the archived range." default:"24h"`
}

func (c *AuditArchiveCmd) Run(ctx context.Context, globals *Globals) error {
	cfg, logger, err := globals.load()
	if err != nil {
		return err
	}
	if cfg.Audit.Archive.S3.Bucket == "" {
		return fmt.Errorf("STOCKROOM_S3_BUCKET is required")
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	client, err := audit.NewS3Client(ctx, cfg.Audit.Archive.S3)
	if err != nil {
		return err
	}
	archiver := audit.NewArchiver(a.auditStore, client, cfg.Audit.Archive.S3.Bucket, cfg.Audit.Archive.S3.Prefix, logger)

	end := c.End
	if end.IsZero() {
		end = time.Now().UTC()
	}
	key, n, err := archiver.Archive(ctx, c.Org, end.Add(-c.Since), end)
	if err != nil {
		return err
	}
	fmt.Printf("archived %d records to s3://%s/%s\n", n, cfg.Audit.Archive.S3.Bucket, key)
	return nil
}
