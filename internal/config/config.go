package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Environment string `envconfig:"ENV" default:"development"`

	// An empty connection string runs the API against the in-memory document store.
	DBConnectionString string `envconfig:"DB_CONNECTION_STRING"`

	// Auth. JWTSecretName takes precedence and is read from Secret Manager.
	JWTSecret     string `envconfig:"JWT_SECRET"`
	JWTSecretName string `envconfig:"JWT_SECRET_NAME"`

	// Blob storage for item photos. An empty bucket keeps photos in memory.
	S3URL       string `envconfig:"S3_URL"`
	S3Bucket    string `envconfig:"S3_BUCKET"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY"`
	S3SecretKey string `envconfig:"S3_SECRET_KEY"`

	// Pub/Sub domain events
	GCPProjectID       string `envconfig:"GCP_PROJECT_ID"`
	PubSubEmulatorHost string `envconfig:"PUBSUB_EMULATOR_HOST"`
	PubSubEventsTopic  string `envconfig:"PUBSUB_EVENTS_TOPIC" default:"trove-events"`

	// Reservation receipts
	RedisURL        string `envconfig:"REDIS_URL"`
	ReceiptTTLHours int    `envconfig:"RECEIPT_TTL_HOURS" default:"24"`

	// Usage reconcile worker settings
	ReconcileQueueName      string `envconfig:"RECONCILE_QUEUE_NAME" default:"usage_reconcile_queue"`
	ReconcilePollTimeoutSec int    `envconfig:"RECONCILE_POLL_TIMEOUT_SEC" default:"30"`
	ReconcilePollMaxMsg     int    `envconfig:"RECONCILE_POLL_MAX_MSG" default:"10"`

	StrictQuota bool `envconfig:"STRICT_QUOTA" default:"false"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ReceiptTTL is how long a reservation receipt is remembered.
func (c *Config) ReceiptTTL() time.Duration {
	if c.ReceiptTTLHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.ReceiptTTLHours) * time.Hour
}

// UsesMemoryStore reports whether the API runs without Postgres.
func (c *Config) UsesMemoryStore() bool {
	return c.DBConnectionString == ""
}
