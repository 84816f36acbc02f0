package blob

import (
	"context"

	infraS3 "fedaidash/internal/infra/blob/s3"
)

// S3Config configures the S3 backend.
type S3Config = infraS3.Config

// S3ConfigFromEnv reads FEDAIDASH_BLOB_S3_* variables.
func S3ConfigFromEnv() S3Config { return infraS3.ConfigFromEnv() }

// NewS3 constructs an S3-backed store.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	return infraS3.New(ctx, cfg)
}

// NewMockS3 returns an S3 store backed by an in-process fake bucket, for
// tests in packages that cannot import the infra layer.
func NewMockS3(ctx context.Context) (Store, error) { return infraS3.NewMock(ctx) }

// S3 environment variables read by S3ConfigFromEnv.
const (
	EnvS3Bucket    = infraS3.EnvBucket
	EnvS3Region    = infraS3.EnvRegion
	EnvS3Endpoint  = infraS3.EnvEndpoint
	EnvS3PathStyle = infraS3.EnvPathStyle
	EnvS3Prefix    = infraS3.EnvPrefix
)
