package config

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"

	strutil "cashkiosk/pkg/platform/strings"
)

// Config is the process configuration, read once at startup.
type Config struct {
	Addr          string
	JWTSigningKey string
	LogLevel      string

	// DatabaseURL empty runs every store in memory.
	DatabaseURL string
	RedisURL    string

	KafkaBrokers       []string
	KafkaOverrideTopic string

	AnonymousCustomerID uuid.UUID
	CustomerPageSize    int
	VolumeCacheTTL      time.Duration

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
}

// DefaultAnonymousCustomerID is the walk-in customer kiosks use when no
// phone is given.
const DefaultAnonymousCustomerID = "47ac1184-8102-11e7-9079-8f13a7117867"

// FromEnv builds Config from environment variables, applying defaults for
// everything unset.
func FromEnv() (Config, error) {
	v := viper.New()
	v.SetDefault("CASHKIOSK_ADDR", ":8080")
	v.SetDefault("JWT_SIGNING_KEY", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_OVERRIDE_TOPIC", "compliance.overrides")
	v.SetDefault("ANONYMOUS_CUSTOMER_ID", DefaultAnonymousCustomerID)
	v.SetDefault("CUSTOMER_PAGE_SIZE", 100)
	v.SetDefault("VOLUME_CACHE_TTL", 25*time.Hour)
	v.SetDefault("OUTBOX_POLL_INTERVAL", time.Second)
	v.SetDefault("OUTBOX_BATCH_SIZE", 50)
	v.AutomaticEnv()

	anonymous, err := uuid.Parse(v.GetString("ANONYMOUS_CUSTOMER_ID"))
	if err != nil {
		return Config{}, fmt.Errorf("parse ANONYMOUS_CUSTOMER_ID: %w", err)
	}

	cfg := Config{
		Addr:                v.GetString("CASHKIOSK_ADDR"),
		JWTSigningKey:       v.GetString("JWT_SIGNING_KEY"),
		LogLevel:            v.GetString("LOG_LEVEL"),
		DatabaseURL:         v.GetString("DATABASE_URL"),
		RedisURL:            v.GetString("REDIS_URL"),
		KafkaBrokers:        strutil.SplitList(v.GetString("KAFKA_BROKERS")),
		KafkaOverrideTopic:  v.GetString("KAFKA_OVERRIDE_TOPIC"),
		AnonymousCustomerID: anonymous,
		CustomerPageSize:    v.GetInt("CUSTOMER_PAGE_SIZE"),
		VolumeCacheTTL:      v.GetDuration("VOLUME_CACHE_TTL"),
		OutboxPollInterval:  v.GetDuration("OUTBOX_POLL_INTERVAL"),
		OutboxBatchSize:     v.GetInt("OUTBOX_BATCH_SIZE"),
	}
	if cfg.CustomerPageSize <= 0 {
		return Config{}, fmt.Errorf("CUSTOMER_PAGE_SIZE must be positive, got %d", cfg.CustomerPageSize)
	}
	if cfg.OutboxBatchSize <= 0 {
		return Config{}, fmt.Errorf("OUTBOX_BATCH_SIZE must be positive, got %d", cfg.OutboxBatchSize)
	}
	return cfg, nil
}
