package report

import (
	"context"
	"fmt"

	"github.com/rl1809/duka/internal/config"
	"github.com/rl1809/duka/internal/port"
)

// Open selects the report store named by cfg.ReportDriver.
func Open(ctx context.Context, cfg *config.Config) (port.ReportStore, error) {
	switch cfg.ReportDriver {
	case config.ReportDriverFS, "":
		return NewFSStore(cfg.ReportDir)
	case config.ReportDriverS3:
		return NewS3Store(ctx, S3Config{
			Region:          cfg.S3.Region,
			Bucket:          cfg.S3.Bucket,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			PathStyle:       cfg.S3.PathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown report driver %s", cfg.ReportDriver)
	}
}
