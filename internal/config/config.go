// Package config loads and validates process configuration from the
// environment (and an optional .env file), per the recognized options
// named in spec.md §6.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Transport holds the broker connection options common to the device
// client and the collector subscriber.
type Transport struct {
	BrokerHost     string `env:"BROKER_HOST" envDefault:"localhost"`
	BrokerPort     int    `env:"BROKER_PORT" envDefault:"1883"`
	UseTLS         bool   `env:"USE_TLS" envDefault:"false"`
	TLSInsecure    bool   `env:"TLS_INSECURE" envDefault:"false"`
	CACerts        string `env:"MQTT_CA_CERTS"`
	CertFile       string `env:"MQTT_CERTFILE"`
	KeyFile        string `env:"MQTT_KEYFILE"`
	Username       string `env:"MQTT_USERNAME"`
	Password       string `env:"MQTT_PASSWORD"`
	ClientID       string `env:"MQTT_CLIENT_ID"`
	KeepAliveSecs  int    `env:"MQTT_KEEPALIVE_SECS" envDefault:"60"`
	ConnectTimeout time.Duration `env:"MQTT_CONNECT_TIMEOUT" envDefault:"10s"`
}

// Store holds the time-series store connection options.
type Store struct {
	URL    string `env:"STORE_URL" envDefault:"http://localhost:8086"`
	Token  string `env:"STORE_TOKEN"`
	Org    string `env:"STORE_ORG" envDefault:"fleet"`
	Bucket string `env:"STORE_BUCKET" envDefault:"device_data"`
}

// Logging holds the shared logger configuration.
type Logging struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

// Device holds configuration specific to one device process.
type Device struct {
	Transport
	Logging
	DeviceID          string        `env:"DEVICE_ID,required"`
	PublishIntervalS  float64       `env:"PUBLISH_INTERVAL_S" envDefault:"1.0"`
	OutboxMaxCapacity int           `env:"OUTBOX_MAX_CAPACITY" envDefault:"10000"`
	QueueDir          string        `env:"QUEUE_DIR" envDefault:"./queues"`
	MetricsAddr       string        `env:"DEVICE_METRICS_ADDR" envDefault:":9101"`
}

// Collector holds configuration specific to the collector process.
type Collector struct {
	Transport
	Store
	Logging
	WorkerThreads    int           `env:"WORKER_THREADS" envDefault:"4"`
	RingCapacity     int           `env:"RING_CAPACITY" envDefault:"10000"`
	BatchSize        int           `env:"BATCH_SIZE" envDefault:"250"`
	FlushInterval    time.Duration `env:"FLUSH_INTERVAL" envDefault:"500ms"`
	RetryInterval    time.Duration `env:"RETRY_INTERVAL" envDefault:"5s"`
	MaxRetries       int           `env:"MAX_RETRIES" envDefault:"3"`
	MaxRetryDelay    time.Duration `env:"MAX_RETRY_DELAY" envDefault:"30s"`
	CollectorLabel   string        `env:"COLLECTOR_LABEL" envDefault:"go-collector"`
	MetricsAddr      string        `env:"COLLECTOR_METRICS_ADDR" envDefault:":9102"`
	CPUPauseThreshold float64      `env:"CPU_PAUSE_THRESHOLD" envDefault:"85.0"`
	MaxIngestRatePerSec int        `env:"MAX_INGEST_RATE_PER_SEC" envDefault:"50000"`
}

// Harness holds configuration for the test harness binary.
type Harness struct {
	Transport
	Store
	Logging
	DeviceCount  int    `env:"HARNESS_DEVICE_COUNT" envDefault:"50"`
	ResultsDir   string `env:"HARNESS_RESULTS_DIR" envDefault:"./results"`
	ScenariosFile string `env:"HARNESS_SCENARIOS_FILE"`
}

// Load parses T from the environment, first loading an optional .env file.
// Missing .env files are not an error — only explicit environment
// variables are required in production.
func Load[T any](logger *zerolog.Logger) (*T, error) {
	if err := godotenv.Load(); err != nil && logger != nil {
		logger.Info().Msg("no .env file found, using environment variables only")
	}

	cfg := new(T)
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// Validate checks cross-field invariants not expressible via struct tags.
func (c *Device) Validate() error {
	if c.PublishIntervalS <= 0 {
		return fmt.Errorf("PUBLISH_INTERVAL_S must be > 0, got %f", c.PublishIntervalS)
	}
	if c.OutboxMaxCapacity < 1 {
		return fmt.Errorf("OUTBOX_MAX_CAPACITY must be > 0, got %d", c.OutboxMaxCapacity)
	}
	return nil
}

// Validate checks cross-field invariants not expressible via struct tags.
func (c *Collector) Validate() error {
	if c.WorkerThreads < 1 {
		return fmt.Errorf("WORKER_THREADS must be > 0, got %d", c.WorkerThreads)
	}
	if c.RingCapacity < 1 {
		return fmt.Errorf("RING_CAPACITY must be > 0, got %d", c.RingCapacity)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("BATCH_SIZE must be > 0, got %d", c.BatchSize)
	}
	if c.CPUPauseThreshold <= 0 || c.CPUPauseThreshold > 100 {
		return fmt.Errorf("CPU_PAUSE_THRESHOLD must be in (0,100], got %f", c.CPUPauseThreshold)
	}
	return nil
}
