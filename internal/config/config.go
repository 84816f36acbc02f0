// Package config loads fedaidash settings.
//
// Settings come from three layers, later layers winning: built-in defaults,
// an optional YAML file (path from --config or FEDAIDASH_CONFIG), and
// FEDAIDASH_* environment variables. The result is validated before use.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"fedaidash/internal/auth"
	"fedaidash/internal/blob"
	"fedaidash/internal/core"
)

// Environment variables. Blob variables (FEDAIDASH_BLOB_*) are read by the
// blob package and merged here.
const (
	EnvConfig        = "FEDAIDASH_CONFIG"
	EnvHTTPAddr      = "FEDAIDASH_HTTP_ADDR"
	EnvSecureCookies = "FEDAIDASH_SECURE_COOKIES"
	EnvStorageDriver = "FEDAIDASH_STORAGE_DRIVER"
	EnvSQLitePath    = "FEDAIDASH_SQLITE_PATH"
	EnvPostgresDSN   = "FEDAIDASH_POSTGRES_DSN"
	EnvPasswordHash  = "FEDAIDASH_ADMIN_PASSWORD_HASH"
	EnvSessionTTL    = "FEDAIDASH_SESSION_TTL"
	EnvLoginEvery    = "FEDAIDASH_LOGIN_EVERY"
	EnvLoginBurst    = "FEDAIDASH_LOGIN_BURST"
	EnvCacheSize     = "FEDAIDASH_CACHE_SIZE"
	EnvLogLevel      = "FEDAIDASH_LOG_LEVEL"
	EnvLogFormat     = "FEDAIDASH_LOG_FORMAT"
)

// Config is the complete service configuration.
type Config struct {
	HTTP      HTTPConfig         `yaml:"http"`
	Storage   core.StorageConfig `yaml:"storage"`
	Blob      blob.Config        `yaml:"blob"`
	Auth      auth.Config        `yaml:"auth"`
	Log       LogConfig          `yaml:"log"`
	CacheSize int                `yaml:"cache_size" validate:"gte=0"`
}

// HTTPConfig configures the listener.
type HTTPConfig struct {
	Addr            string        `yaml:"addr" validate:"required"`
	ReadTimeout     time.Duration `yaml:"read_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gte=0"`
	// SecureCookies marks the admin session cookie Secure; enable behind TLS.
	SecureCookies bool `yaml:"secure_cookies"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json console"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Storage: core.StorageConfig{Driver: core.StorageSQLite, SQLitePath: "fedaidash.db"},
		Blob:    blob.Config{Driver: blob.DriverFilesystem, FSRoot: "./blobdata"},
		Auth: auth.Config{
			SessionTTL: auth.DefaultSessionTTL,
			LoginEvery: auth.DefaultLoginEvery,
			LoginBurst: auth.DefaultLoginBurst,
		},
		Log:       LogConfig{Level: "info", Format: "json"},
		CacheSize: core.DefaultCacheSize,
	}
}

// Load builds the configuration from defaults, the YAML file at path (or
// FEDAIDASH_CONFIG when path is empty) and the environment.
func Load(path string) (Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	if path == "" {
		path, _ = lookup(EnvConfig)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := decode(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// decode rejects unknown keys so typos fail loudly.
func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

type envReader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (r *envReader) str(key string, dst *string) {
	if v, ok := r.lookup(key); ok && v != "" {
		*dst = v
	}
}

func (r *envReader) boolean(key string, dst *bool) {
	v, ok := r.lookup(key)
	if !ok || v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = b
}

func (r *envReader) integer(key string, dst *int) {
	v, ok := r.lookup(key)
	if !ok || v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = n
}

func (r *envReader) duration(key string, dst *time.Duration) {
	v, ok := r.lookup(key)
	if !ok || v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = d
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	r := &envReader{lookup: lookup}
	r.str(EnvHTTPAddr, &c.HTTP.Addr)
	r.boolean(EnvSecureCookies, &c.HTTP.SecureCookies)
	var driver string
	r.str(EnvStorageDriver, &driver)
	if driver != "" {
		c.Storage.Driver = core.StorageDriver(driver)
	}
	r.str(EnvSQLitePath, &c.Storage.SQLitePath)
	r.str(EnvPostgresDSN, &c.Storage.PostgresDSN)
	r.str(EnvPasswordHash, &c.Auth.PasswordHash)
	r.duration(EnvSessionTTL, &c.Auth.SessionTTL)
	r.duration(EnvLoginEvery, &c.Auth.LoginEvery)
	r.integer(EnvLoginBurst, &c.Auth.LoginBurst)
	r.integer(EnvCacheSize, &c.CacheSize)
	r.str(EnvLogLevel, &c.Log.Level)
	r.str(EnvLogFormat, &c.Log.Format)

	var blobDriver string
	r.str(blob.EnvDriver, &blobDriver)
	if blobDriver != "" {
		c.Blob.Driver = blob.Driver(blobDriver)
	}
	r.str(blob.EnvFSRoot, &c.Blob.FSRoot)
	r.str(blob.EnvS3Bucket, &c.Blob.S3.Bucket)
	r.str(blob.EnvS3Region, &c.Blob.S3.Region)
	r.str(blob.EnvS3Endpoint, &c.Blob.S3.Endpoint)
	r.str(blob.EnvS3Prefix, &c.Blob.S3.Prefix)
	r.boolean(blob.EnvS3PathStyle, &c.Blob.S3.PathStyle)
	c.Log.Level = strings.ToLower(c.Log.Level)
	return errors.Join(r.errs...)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and cross-field requirements.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	switch {
	case c.Storage.Driver == core.StoragePostgres && c.Storage.PostgresDSN == "":
		return errors.New("invalid config: storage.postgres_dsn is required for the postgres driver")
	case c.Blob.Driver == blob.DriverS3 && c.Blob.S3.Bucket == "":
		return errors.New("invalid config: blob.s3.bucket is required for the s3 driver")
	}
	return nil
}
