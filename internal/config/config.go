package config

import (
	"os"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/nimasrn/support-inbox/internal/notifier"
	"github.com/nimasrn/support-inbox/internal/processor"
	"github.com/nimasrn/support-inbox/internal/queue"
	"github.com/nimasrn/support-inbox/pkg/logger"
	"github.com/nimasrn/support-inbox/pkg/pg"
	"github.com/nimasrn/support-inbox/pkg/redis"
	"github.com/pkg/errors"
)

var config *Config

// Config holds every setting the binaries read. Nothing else in the module
// looks at the environment directly.
type Config struct {
	AppEnv  string `env:"APP_ENV,default=dev"`
	AppName string `env:"APP_NAME,default=support_inbox"`

	HttpListenAddr     string        `env:"HTTP_LISTEN_ADDR,default=:8080"`
	HttpRequestTimeout time.Duration `env:"HTTP_REQUEST_TIMEOUT,default=5s"`

	PostgresReadHost     string `env:"POSTGRES_READ_HOST"`
	PostgresReadPort     string `env:"POSTGRES_READ_PORT,default=5432"`
	PostgresReadUser     string `env:"POSTGRES_READ_USER"`
	PostgresReadPassword string `env:"POSTGRES_READ_PASSWORD"`
	PostgresReadDatabase string `env:"POSTGRES_READ_DBNAME"`

	PostgresWriteHost     string `env:"POSTGRES_WRITE_HOST"`
	PostgresWritePort     string `env:"POSTGRES_WRITE_PORT,default=5432"`
	PostgresWriteUser     string `env:"POSTGRES_WRITE_USER"`
	PostgresWritePassword string `env:"POSTGRES_WRITE_PASSWORD"`
	PostgresWriteDatabase string `env:"POSTGRES_WRITE_DBNAME"`

	RedisAddr               string `env:"REDIS_ADDR,default=localhost:6379"`
	RedisUsername           string `env:"REDIS_USER"`
	RedisPassword           string `env:"REDIS_PASS"`
	RedisDatabase           int    `env:"REDIS_DATABASE"`
	RedisUniversalKeyPrefix string `env:"REDIS_UNIVERSAL_KEY_PREFIX"`

	PromNamespace string `env:"PROM_NAMESPACE,default=support_inbox"`
	PromAddr      string `env:"PROM_ADDR,default=:9100"`
	PromURI       string `env:"PROM_URI,default=/metrics"`

	QueueName              string        `env:"QUEUE_NAME,default=inbox:submissions"`
	QueueConsumerGroup     string        `env:"QUEUE_CONSUMER_GROUP,default=ingestion"`
	QueueConsumerName      string        `env:"QUEUE_CONSUMER_NAME"`
	QueueMaxRetries        int           `env:"QUEUE_MAX_RETRIES,default=5"`
	QueueVisibilityTimeout time.Duration `env:"QUEUE_VISIBILITY_TIMEOUT,default=30s"`
	QueuePollInterval      time.Duration `env:"QUEUE_POLL_INTERVAL,default=500ms"`
	QueueBatchSize         int64         `env:"QUEUE_BATCH_SIZE,default=10"`
	QueueMaxLen            int64         `env:"QUEUE_MAX_LEN,default=100000"`
	QueueEnableDLQ         bool          `env:"QUEUE_ENABLE_DLQ,default=true"`

	IngestionConsumers         int           `env:"INGESTION_CONSUMERS,default=2"`
	IngestionWorkers           int           `env:"INGESTION_WORKERS,default=8"`
	IngestionBufferSize        int           `env:"INGESTION_BUFFER_SIZE,default=256"`
	IngestionProcessingTimeout time.Duration `env:"INGESTION_PROCESSING_TIMEOUT,default=5s"`
	IngestionMaxRetries        int           `env:"INGESTION_MAX_RETRIES,default=3"`

	NotifierDriver                  string        `env:"NOTIFIER_DRIVER,default=log"`
	NotifierTimeout                 time.Duration `env:"NOTIFIER_TIMEOUT,default=10s"`
	NotifierMaxRetries              int           `env:"NOTIFIER_MAX_RETRIES,default=3"`
	NotifierRetryDelay              time.Duration `env:"NOTIFIER_RETRY_DELAY,default=100ms"`
	NotifierMaxConns                int           `env:"NOTIFIER_MAX_CONNS,default=100"`
	NotifierHealthCheckInterval     time.Duration `env:"NOTIFIER_HEALTH_CHECK_INTERVAL,default=30s"`
	NotifierCircuitBreakerThreshold int           `env:"NOTIFIER_CIRCUIT_BREAKER_THRESHOLD,default=5"`
	NotifierCircuitBreakerTimeout   time.Duration `env:"NOTIFIER_CIRCUIT_BREAKER_TIMEOUT,default=60s"`

	RelayPrimaryUrl   string `env:"RELAY_PRIMARY_URL"`
	RelaySecondaryUrl string `env:"RELAY_SECONDARY_URL"`
	RelayBackupUrl    string `env:"RELAY_BACKUP_URL"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT,default=587"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	SMTPFrom     string `env:"SMTP_FROM"`
}

func Load(path string) error {
	logger.Info("loading configs..", "path", path)
	c, err := Parse(path)
	if err != nil {
		return err
	}
	config = c
	return nil
}

// Parse loads the optional env file into the process environment and maps
// the environment onto a fresh Config.
func Parse(path string) (*Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return nil, errors.Wrapf(err, "failed to load configuration file %s", path)
		}
	}

	c := &Config{}
	if _, err := env.UnmarshalFromEnviron(c); err != nil {
		return nil, errors.Wrap(err, "failed to map env variables to Config")
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) validate() error {
	c.NotifierDriver = strings.ToLower(c.NotifierDriver)
	switch c.NotifierDriver {
	case notifier.DriverLog, notifier.DriverSMTP, notifier.DriverRelay:
	default:
		return errors.Errorf("unknown NOTIFIER_DRIVER %q", c.NotifierDriver)
	}
	if c.NotifierDriver == notifier.DriverRelay && c.RelayPrimaryUrl == "" {
		return errors.New("RELAY_PRIMARY_URL is required for the relay notifier")
	}
	if c.NotifierDriver == notifier.DriverSMTP && (c.SMTPHost == "" || c.SMTPFrom == "") {
		return errors.New("SMTP_HOST and SMTP_FROM are required for the smtp notifier")
	}
	return nil
}

func Get() *Config {
	if config == nil {
		logger.Panic("Config is not initialized")
	}
	return config
}

func (c *Config) IsDev() bool {
	return c.AppEnv == "dev"
}

func (c *Config) PostgresRead() pg.Config {
	return pg.Config{
		User:     c.PostgresReadUser,
		Host:     c.PostgresReadHost,
		Port:     c.PostgresReadPort,
		Password: c.PostgresReadPassword,
		Database: c.PostgresReadDatabase,
	}
}

func (c *Config) PostgresWrite() pg.Config {
	return pg.Config{
		User:     c.PostgresWriteUser,
		Host:     c.PostgresWriteHost,
		Port:     c.PostgresWritePort,
		Password: c.PostgresWritePassword,
		Database: c.PostgresWriteDatabase,
	}
}

func (c *Config) RedisOptions(clientName string) *redis.Options {
	return &redis.Options{
		Addrs:      []string{c.RedisAddr},
		ClientName: clientName,
		DB:         c.RedisDatabase,
		Username:   c.RedisUsername,
		Password:   c.RedisPassword,
	}
}

// Queue describes the ingestion stream. An empty consumer name falls back
// to the hostname.
func (c *Config) Queue() queue.QueueConfig {
	name := c.QueueConsumerName
	if name == "" {
		if h, err := os.Hostname(); err == nil {
			name = h
		}
	}
	return queue.QueueConfig{
		Name:              c.QueueName,
		ConsumerGroup:     c.QueueConsumerGroup,
		ConsumerName:      name,
		MaxRetries:        c.QueueMaxRetries,
		VisibilityTimeout: c.QueueVisibilityTimeout,
		PollInterval:      c.QueuePollInterval,
		BatchSize:         c.QueueBatchSize,
		MaxLen:            c.QueueMaxLen,
		EnableDLQ:         c.QueueEnableDLQ,
	}
}

func (c *Config) Processor() processor.ServiceConfig {
	return processor.ServiceConfig{
		Queue:             c.Queue(),
		Consumers:         c.IngestionConsumers,
		Workers:           c.IngestionWorkers,
		BufferSize:        c.IngestionBufferSize,
		ProcessingTimeout: c.IngestionProcessingTimeout,
	}
}

func (c *Config) Idempotency() processor.IdempotencyConfig {
	ic := processor.DefaultIdempotencyConfig()
	ic.MaxRetries = c.IngestionMaxRetries
	// The lock must outlive one processing attempt.
	if c.IngestionProcessingTimeout*2 > ic.LockTTL {
		ic.LockTTL = c.IngestionProcessingTimeout * 2
	}
	return ic
}

// Notifier returns the notifier settings. Relay URLs left empty are skipped;
// primary, secondary and backup get descending weights.
func (c *Config) Notifier() *notifier.Config {
	cfg := &notifier.Config{
		Driver:                  c.NotifierDriver,
		Timeout:                 c.NotifierTimeout,
		MaxRetries:              c.NotifierMaxRetries,
		RetryDelay:              c.NotifierRetryDelay,
		MaxConns:                c.NotifierMaxConns,
		HealthCheckInterval:     c.NotifierHealthCheckInterval,
		CircuitBreakerThreshold: c.NotifierCircuitBreakerThreshold,
		CircuitBreakerTimeout:   c.NotifierCircuitBreakerTimeout,
		SMTP: notifier.SMTPConfig{
			Host:     c.SMTPHost,
			Port:     c.SMTPPort,
			Username: c.SMTPUsername,
			Password: c.SMTPPassword,
			From:     c.SMTPFrom,
		},
	}

	relays := []notifier.ProviderConfig{
		{Name: "primary", URL: c.RelayPrimaryUrl, Weight: 100},
		{Name: "secondary", URL: c.RelaySecondaryUrl, Weight: 80},
		{Name: "backup", URL: c.RelayBackupUrl, Weight: 60},
	}
	for _, r := range relays {
		if r.URL != "" {
			cfg.Providers = append(cfg.Providers, r)
		}
	}
	return cfg
}
