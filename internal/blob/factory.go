package blob

import (
	"context"
	"fmt"
	"os"
)

// Environment variables read by ConfigFromEnv.
const (
	EnvDriver = "FEDAIDASH_BLOB_DRIVER"
	EnvFSRoot = "FEDAIDASH_BLOB_FS_ROOT"
)

// Config selects a backend. An empty driver means fs.
type Config struct {
	Driver Driver   `yaml:"driver" validate:"omitempty,oneof=fs s3 memory"`
	FSRoot string   `yaml:"fs_root"`
	S3     S3Config `yaml:"s3"`
}

// ConfigFromEnv reads FEDAIDASH_BLOB_* variables, including the S3 ones.
func ConfigFromEnv() Config {
	return Config{
		Driver: Driver(os.Getenv(EnvDriver)),
		FSRoot: os.Getenv(EnvFSRoot),
		S3:     S3ConfigFromEnv(),
	}
}

// Open constructs the configured store.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverFilesystem:
		return NewFilesystem(cfg.FSRoot)
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", cfg.Driver)
	}
}
