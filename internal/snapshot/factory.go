package snapshot

import (
	"context"
	"fmt"

	"github.com/consciousfounders/dental-leads-etl/internal/config"
)

// NewStore builds the configured snapshot backend. The filesystem
// backend needs no credentials and is the default for local work.
func NewStore(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Snapshot.Backend {
	case "", "filesystem":
		return NewFilesystemStore(cfg.Snapshot.DataDir), nil
	case "s3":
		if cfg.Snapshot.S3Bucket == "" {
			return nil, fmt.Errorf("snapshot backend s3 requires a bucket")
		}
		return NewS3Store(ctx, cfg.Snapshot.S3Bucket, cfg.Snapshot.S3Prefix, cfg.Snapshot.S3Region, cfg.Snapshot.GetAWSProfile())
	case "snowflake":
		return NewSnowflakeStore(cfg.Snowflake)
	default:
		return nil, fmt.Errorf("unknown snapshot backend: %q", cfg.Snapshot.Backend)
	}
}
