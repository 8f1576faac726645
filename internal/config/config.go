// Package config loads and exposes application configuration (TOML or YAML).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Default configuration values used when a field is missing in the file.
const (
	DefaultConfigPath       = "config.toml"
	DefaultHTTPAddr         = ":3000"
	DefaultBodyLimit        = "50M"
	DefaultJWTAlgorithm     = "HS256"
	DefaultDatabaseDriver   = "postgres"
	DefaultSQLitePath       = "assetd.db"
	DefaultPGHost           = "127.0.0.1"
	DefaultPGPort           = 5432
	DefaultPGUser           = "postgres"
	DefaultPGDatabase       = "assetd"
	DefaultPGSSLMode        = "disable"
	DefaultStorageProvider  = "FILESYSTEM"
	DefaultStorageRoot      = "static"
	DefaultMaxImageWidth    = 2500
	DefaultThumbnailWidth   = 200
	DefaultMaxUploadRetries = 5
	DefaultRetryInterval    = "200ms"
	DefaultEncryptionAlg    = "aes-128-ecb"
	DefaultJanitorRetention = "720h"
)

// Config is the root application configuration.
type Config struct {
	Log        LogConfig        `toml:"log" yaml:"log"`
	Server     ServerConfig     `toml:"server" yaml:"server"`
	Auth       AuthConfig       `toml:"auth" yaml:"auth"`
	Database   DatabaseConfig   `toml:"database" yaml:"database"`
	Postgres   PostgresConfig   `toml:"postgres" yaml:"postgres"`
	Storage    StorageConfig    `toml:"storage" yaml:"storage"`
	Assets     AssetsConfig     `toml:"assets" yaml:"assets"`
	Encryption EncryptionConfig `toml:"encryption" yaml:"encryption"`
	Janitor    JanitorConfig    `toml:"janitor" yaml:"janitor"`
}

// LogConfig holds logging level and format (e.g. level=info, format=text).
type LogConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

// ServerConfig holds the HTTP listen address, request body limit (e.g. 50M)
// and per-client request rate (requests/second, 0 disables limiting).
type ServerConfig struct {
	Addr      string  `toml:"addr" yaml:"addr"`
	BodyLimit string  `toml:"body_limit" yaml:"body_limit"`
	RateLimit float64 `toml:"rate_limit" yaml:"rate_limit"`
}

// AuthConfig holds the JWT verification secret and signing algorithm.
type AuthConfig struct {
	JWTSecret    string `toml:"jwt_secret" yaml:"jwt_secret"`
	JWTAlgorithm string `toml:"jwt_algorithm" yaml:"jwt_algorithm"`
}

// DatabaseConfig selects the asset repository backend (postgres or sqlite).
type DatabaseConfig struct {
	Driver     string `toml:"driver" yaml:"driver"`
	SQLitePath string `toml:"sqlite_path" yaml:"sqlite_path"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host     string `toml:"host" yaml:"host"`
	Port     int    `toml:"port" yaml:"port"`
	User     string `toml:"user" yaml:"user"`
	Password string `toml:"password" yaml:"password"`
	Database string `toml:"database" yaml:"database"`
	SSLMode  string `toml:"sslmode" yaml:"sslmode"`
}

// StorageConfig selects the storage provider and its parameters.
type StorageConfig struct {
	Provider           string `toml:"provider" yaml:"provider"`
	RootFolder         string `toml:"root_folder" yaml:"root_folder"`
	GCSBucket          string `toml:"gcs_bucket" yaml:"gcs_bucket"`
	GCSCredentialsFile string `toml:"gcs_credentials_file" yaml:"gcs_credentials_file"`
}

// AssetsConfig tunes the ingestion pipeline.
type AssetsConfig struct {
	MaxImageWidth    int    `toml:"max_image_width" yaml:"max_image_width"`
	ThumbnailWidth   int    `toml:"thumbnail_width" yaml:"thumbnail_width"`
	MaxUploadRetries int    `toml:"max_upload_retries" yaml:"max_upload_retries"`
	RetryInterval    string `toml:"retry_interval" yaml:"retry_interval"`
	CensorNSFW       bool   `toml:"censor_nsfw" yaml:"censor_nsfw"`
	AllowFullDelete  bool   `toml:"allow_full_delete" yaml:"allow_full_delete"`
}

// EncryptionConfig holds the at-rest cipher. IV is hex encoded and optional.
type EncryptionConfig struct {
	Algorithm string `toml:"algorithm" yaml:"algorithm"`
	Key       string `toml:"key" yaml:"key"`
	IV        string `toml:"iv" yaml:"iv"`
}

// JanitorConfig schedules purging of soft-deleted assets. An empty schedule
// disables the janitor.
type JanitorConfig struct {
	Schedule  string `toml:"schedule" yaml:"schedule"`
	Retention string `toml:"retention" yaml:"retention"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr:      DefaultHTTPAddr,
			BodyLimit: DefaultBodyLimit,
		},
		Auth: AuthConfig{
			JWTAlgorithm: DefaultJWTAlgorithm,
		},
		Database: DatabaseConfig{
			Driver:     DefaultDatabaseDriver,
			SQLitePath: DefaultSQLitePath,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Storage: StorageConfig{
			Provider:   DefaultStorageProvider,
			RootFolder: DefaultStorageRoot,
		},
		Assets: AssetsConfig{
			MaxImageWidth:    DefaultMaxImageWidth,
			ThumbnailWidth:   DefaultThumbnailWidth,
			MaxUploadRetries: DefaultMaxUploadRetries,
			RetryInterval:    DefaultRetryInterval,
			CensorNSFW:       true,
			AllowFullDelete:  true,
		},
		Encryption: EncryptionConfig{
			Algorithm: DefaultEncryptionAlg,
		},
		Janitor: JanitorConfig{
			Retention: DefaultJanitorRetention,
		},
	}
}

// Load reads the config file at path and applies default values for missing
// fields. Files ending in .yaml or .yml are parsed as YAML, everything else as
// TOML. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultConfigPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse yaml config: %w", err)
		}
	default:
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return cfg, fmt.Errorf("parse toml config: %w", err)
		}
	}

	return cfg, nil
}
