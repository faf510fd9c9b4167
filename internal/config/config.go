package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DocStoreMemory   = "memory"
	DocStorePostgres = "postgres"
	DocStoreMongo    = "mongo"

	BlobStoreMemory = "memory"
	BlobStoreS3     = "s3"
)

// Config is built once at start-up and handed to the store and codec
// constructors. Nothing below it reads the process environment.
type Config struct {
	Port     string `mapstructure:"PORT"`
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	JWTSecret     string        `mapstructure:"JWT_SECRET"`
	JWTExpire     time.Duration `mapstructure:"JWT_EXPIRE"`
	JWTIssuerName string        `mapstructure:"JWT_ISSUER_NAME"`

	DocStoreDriver string `mapstructure:"DOCSTORE_DRIVER"`
	DatabaseURL    string `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32  `mapstructure:"DB_MIN_CONNS"`
	MongoURI       string `mapstructure:"MONGO_URI"`
	MongoDatabase  string `mapstructure:"MONGO_DATABASE"`

	BlobStoreDriver       string `mapstructure:"BLOBSTORE_DRIVER"`
	BucketName            string `mapstructure:"BUCKET_NAME"`
	BucketEndpoint        string `mapstructure:"BUCKET_ENDPOINT"`
	BucketRegion          string `mapstructure:"BUCKET_REGION"`
	BucketAccessKeyID     string `mapstructure:"BUCKET_ACCESS_KEY_ID"`
	BucketSecretAccessKey string `mapstructure:"BUCKET_SECRET_ACCESS_KEY"`

	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`
	BodyLimit   string   `mapstructure:"BODY_LIMIT"`
	TLSEnabled  bool     `mapstructure:"TLS_ENABLED"`
	TLSCertFile string   `mapstructure:"TLS_CERT_FILE"`
	TLSKeyFile  string   `mapstructure:"TLS_KEY_FILE"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL",
	"JWT_SECRET", "JWT_EXPIRE", "JWT_ISSUER_NAME",
	"DOCSTORE_DRIVER", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "MONGO_URI", "MONGO_DATABASE",
	"BLOBSTORE_DRIVER", "BUCKET_NAME", "BUCKET_ENDPOINT", "BUCKET_REGION",
	"BUCKET_ACCESS_KEY_ID", "BUCKET_SECRET_ACCESS_KEY",
	"CORS_ORIGINS", "BODY_LIMIT", "TLS_ENABLED", "TLS_CERT_FILE", "TLS_KEY_FILE",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("JWT_EXPIRE", "12h")
	v.SetDefault("JWT_ISSUER_NAME", "treatment-api")
	v.SetDefault("DOCSTORE_DRIVER", DocStoreMemory)
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("MONGO_DATABASE", "treatments")
	v.SetDefault("BLOBSTORE_DRIVER", BlobStoreMemory)
	v.SetDefault("BUCKET_NAME", "treatments")
	v.SetDefault("BUCKET_REGION", "us-east-1")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("BODY_LIMIT", "2M")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) <= 1 {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks the driver selections carry the settings they need.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.JWTExpire <= 0 {
		return fmt.Errorf("JWT_EXPIRE must be a positive duration, got %s", c.JWTExpire)
	}

	switch c.DocStoreDriver {
	case DocStoreMemory:
	case DocStorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when DOCSTORE_DRIVER is %q", DocStorePostgres)
		}
	case DocStoreMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required when DOCSTORE_DRIVER is %q", DocStoreMongo)
		}
	default:
		return fmt.Errorf("DOCSTORE_DRIVER must be %q, %q or %q, got %q",
			DocStoreMemory, DocStorePostgres, DocStoreMongo, c.DocStoreDriver)
	}

	switch c.BlobStoreDriver {
	case BlobStoreMemory:
	case BlobStoreS3:
		if c.BucketName == "" {
			return fmt.Errorf("BUCKET_NAME is required when BLOBSTORE_DRIVER is %q", BlobStoreS3)
		}
	default:
		return fmt.Errorf("BLOBSTORE_DRIVER must be %q or %q, got %q", BlobStoreMemory, BlobStoreS3, c.BlobStoreDriver)
	}

	// TLS validation: when TLS is enabled, cert and key files must be specified.
	if c.TLSEnabled {
		if c.TLSCertFile == "" {
			return fmt.Errorf("TLS_CERT_FILE is required when TLS_ENABLED is true")
		}
		if c.TLSKeyFile == "" {
			return fmt.Errorf("TLS_KEY_FILE is required when TLS_ENABLED is true")
		}
	}

	return nil
}
