package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds the complete server configuration, loadable from environment
// variables (POS_ prefix), flags, or YAML config files.
type Config struct {
	Addr            string        `default:"0.0.0.0:8080" usage:"API server listen address"`
	StoreName       string        `default:"" usage:"Store name printed on receipts" flag:"store-name"`
	RollbackTimeout time.Duration `default:"10s" usage:"Time allowed to undo a failed checkout" flag:"rollback-timeout"`
	Storage         StorageConfig
	Redis           RedisConfig
	Kafka           KafkaConfig
	RateLimit       RateLimitConfig
	CORS            CORSConfig
	Graceful        GracefulConfig
}

// StorageConfig selects where sales, stock and trade-ins are kept.
type StorageConfig struct {
	Driver      string `default:"postgres" usage:"Storage driver: postgres or sqlite"`
	DatabaseURL string `usage:"PostgreSQL connection URL (POS_STORAGE_DATABASEURL or DATABASE_URL)" flag:"database-url"`
	SQLitePath  string `default:"pos.db" usage:"SQLite database file for a single-register till" flag:"sqlite-path"`
}

// RedisConfig enables the shared duplicate submission guard. Without an
// address each server guards only its own registers.
type RedisConfig struct {
	Addr     string        `default:"" usage:"Redis address for checkout leases" flag:"redis-addr"`
	Password string        `default:"" usage:"Redis password" flag:"redis-password"`
	LeaseTTL time.Duration `default:"30s" usage:"How long a register's checkout lease lives" flag:"redis-lease-ttl"`
}

// KafkaConfig enables the sale confirmation feed.
type KafkaConfig struct {
	Brokers        []string      `default:"" usage:"Kafka brokers for sale confirmations" flag:"kafka-brokers"`
	Topic          string        `default:"pos.sales" usage:"Topic committed sales are published to" flag:"kafka-topic"`
	PublishTimeout time.Duration `default:"5s" usage:"Time allowed to publish one confirmation" flag:"kafka-publish-timeout"`
}

// RateLimitConfig controls the per-register sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"120" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig reads .env files, then environment variables and YAML config
// files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "POS",
		Files:     []string{"config.yaml", "/etc/pos/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case DriverPostgres:
		if c.Storage.DatabaseURL == "" {
			return errors.New("database URL is required: set POS_STORAGE_DATABASEURL or DATABASE_URL")
		}
	case DriverSQLite:
		if c.Storage.SQLitePath == "" {
			return errors.New("sqlite path is required")
		}
	default:
		return errors.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return errors.New("kafka topic is required when brokers are set")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables
// (DATABASE_URL, PORT, REDIS_URL) onto the POS_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.Storage.DatabaseURL == "" {
		c.Storage.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
	// An empty default slice tag still yields one empty element.
	brokers := c.Kafka.Brokers[:0]
	for _, b := range c.Kafka.Brokers {
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	c.Kafka.Brokers = brokers
}
