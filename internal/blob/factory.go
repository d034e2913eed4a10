package blob

import (
	"context"
	"fmt"

	"datastory/internal/config"
	fsstore "datastory/internal/infra/blob/fs"
	memorystore "datastory/internal/infra/blob/memory"
	s3store "datastory/internal/infra/blob/s3"
)

// Open selects a Store implementation from configuration:
//
//	driver fs (default): directory root cfg.FSRoot (default ./data)
//	driver s3: bucket/region/endpoint from cfg.S3, credentials from the AWS default chain
//	driver memory: empty process-local store
func Open(ctx context.Context, cfg config.BlobConfig) (Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		return fsstore.New(cfg.FSRoot)
	case DriverS3:
		return s3store.New(ctx, s3store.Config{
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			PathStyle: cfg.S3.PathStyle,
		})
	case DriverMemory:
		return memorystore.New(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}
