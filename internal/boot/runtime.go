// Package boot provides runtime configuration and dependency wiring for assetd.
package boot

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/memohai/assetd/internal/auth"
	"github.com/memohai/assetd/internal/config"
)

// Database drivers accepted in [database].driver.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// RuntimeConfig holds validated runtime settings. Values may be overridden by
// environment variables (HTTP_ADDR, ASSETS_ENCRYPTION_KEY, ASSETS_STORAGE_ROOT,
// ASSETS_JWT_SECRET).
type RuntimeConfig struct {
	Server   config.ServerConfig
	Auth     config.AuthConfig
	Database config.DatabaseConfig
	Postgres config.PostgresConfig
	Storage  config.StorageConfig
	Assets   config.AssetsConfig

	EncryptionAlgorithm string
	EncryptionKey       string
	EncryptionIV        []byte

	RetryInterval    time.Duration
	JanitorSchedule  string
	JanitorRetention time.Duration
}

// ProvideRuntimeConfig builds RuntimeConfig from the given config and applies env overrides.
func ProvideRuntimeConfig(cfg config.Config) (*RuntimeConfig, error) {
	ret := &RuntimeConfig{
		Server:              cfg.Server,
		Auth:                cfg.Auth,
		Database:            cfg.Database,
		Postgres:            cfg.Postgres,
		Storage:             cfg.Storage,
		Assets:              cfg.Assets,
		EncryptionAlgorithm: strings.TrimSpace(cfg.Encryption.Algorithm),
		EncryptionKey:       cfg.Encryption.Key,
		JanitorSchedule:     strings.TrimSpace(cfg.Janitor.Schedule),
	}

	if value := os.Getenv("HTTP_ADDR"); value != "" {
		ret.Server.Addr = value
	}
	if value := os.Getenv("ASSETS_JWT_SECRET"); value != "" {
		ret.Auth.JWTSecret = value
	}
	if value := os.Getenv("ASSETS_ENCRYPTION_KEY"); value != "" {
		ret.EncryptionKey = value
	}
	if value := os.Getenv("ASSETS_STORAGE_ROOT"); value != "" {
		ret.Storage.RootFolder = value
	}

	if strings.TrimSpace(ret.Auth.JWTSecret) == "" {
		return nil, errors.New("jwt secret is required")
	}
	alg, err := auth.ValidateAlgorithm(ret.Auth.JWTAlgorithm)
	if err != nil {
		return nil, err
	}
	ret.Auth.JWTAlgorithm = alg

	ret.Database.Driver = strings.ToLower(strings.TrimSpace(ret.Database.Driver))
	switch ret.Database.Driver {
	case "":
		ret.Database.Driver = DriverPostgres
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Database.Driver)
	}

	if ret.EncryptionKey == "" {
		return nil, errors.New("encryption key is required")
	}
	if iv := strings.TrimSpace(cfg.Encryption.IV); iv != "" {
		ret.EncryptionIV, err = hex.DecodeString(iv)
		if err != nil {
			return nil, fmt.Errorf("invalid encryption iv: %w", err)
		}
	}

	if ret.Assets.MaxImageWidth <= 0 {
		return nil, errors.New("assets.max_image_width must be positive")
	}
	if ret.Assets.ThumbnailWidth <= 0 {
		return nil, errors.New("assets.thumbnail_width must be positive")
	}
	if ret.Assets.MaxUploadRetries < 1 {
		return nil, errors.New("assets.max_upload_retries must be at least 1")
	}

	ret.RetryInterval, err = parseDuration(ret.Assets.RetryInterval, config.DefaultRetryInterval)
	if err != nil {
		return nil, fmt.Errorf("invalid assets.retry_interval: %w", err)
	}
	ret.JanitorRetention, err = parseDuration(cfg.Janitor.Retention, config.DefaultJanitorRetention)
	if err != nil {
		return nil, fmt.Errorf("invalid janitor.retention: %w", err)
	}
	return ret, nil
}

func parseDuration(raw, fallback string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", raw)
	}
	return d, nil
}
