package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/flexprice/planshift/internal/types"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Configuration struct {
	Deployment DeploymentConfig `validate:"required"`
	Server     ServerConfig     `validate:"required"`
	Logging    LoggingConfig    `validate:"required"`
	Postgres   PostgresConfig   `validate:"required"`
	Auth       AuthConfig       `validate:"required"`
	Stripe     StripeConfig     `validate:"required"`
	Cache      CacheConfig      `validate:"required"`
	Audit      AuditConfig      `validate:"required"`
	DynamoDB   DynamoDBConfig   `mapstructure:"dynamodb"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	EventBus   EventBusConfig   `mapstructure:"event_bus"`
	Sentry     SentryConfig     `mapstructure:"sentry"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
}

type DeploymentConfig struct {
	Mode types.RunMode `validate:"required"`
}

type ServerConfig struct {
	Address string `validate:"required"`
}

type LoggingConfig struct {
	Level types.LogLevel `validate:"required"`
}

type PostgresConfig struct {
	Host                   string `mapstructure:"host"`
	Port                   int    `mapstructure:"port"`
	User                   string `mapstructure:"user"`
	Password               string `mapstructure:"password"`
	DBName                 string `mapstructure:"dbname"`
	SSLMode                string `mapstructure:"sslmode"`
	MaxOpenConns           int    `mapstructure:"max_open_conns" default:"10"`
	MaxIdleConns           int    `mapstructure:"max_idle_conns" default:"5"`
	ConnMaxLifetimeMinutes int    `mapstructure:"conn_max_lifetime_minutes" default:"60"`
}

type AuthConfig struct {
	Secret string `mapstructure:"secret" validate:"required"`
	Issuer string `mapstructure:"issuer"`
}

// StripeConfig carries provider credentials and the plan price table.
// Prices is keyed by plan id then billing period, ex prices.pro.annual.
type StripeConfig struct {
	SecretKey          string                       `mapstructure:"secret_key" validate:"required"`
	WebhookSecret      string                       `mapstructure:"webhook_secret"`
	APIBase            string                       `mapstructure:"api_base"`
	Timeout            time.Duration                `mapstructure:"timeout" default:"10s"`
	MaxRetries         int                          `mapstructure:"max_retries" default:"2"`
	Prices             map[string]map[string]string `mapstructure:"prices"`
	CheckoutSuccessURL string                       `mapstructure:"checkout_success_url"`
	CheckoutCancelURL  string                       `mapstructure:"checkout_cancel_url"`
	PortalReturnURL    string                       `mapstructure:"portal_return_url"`
}

type CacheConfig struct {
	Backend        types.CacheBackend `mapstructure:"backend" validate:"required,oneof=memory redis"`
	DailyResetHour int                `mapstructure:"daily_reset_hour" validate:"gte=0,lte=23"`
	ShortTTL       time.Duration      `mapstructure:"short_ttl" validate:"required"`
	Redis          RedisConfig        `mapstructure:"redis"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type AuditConfig struct {
	Store types.AuditStore `mapstructure:"store" validate:"required,oneof=postgres dynamodb"`
	Topic string           `mapstructure:"topic"`
}

// DynamoDBConfig holds configuration for DynamoDB
type DynamoDBConfig struct {
	Region         string `mapstructure:"region"`
	AuditTableName string `mapstructure:"audit_table_name"`
}

type KafkaConfig struct {
	Brokers       []string `mapstructure:"brokers"`
	ConsumerGroup string   `mapstructure:"consumer_group"`
	ClientID      string   `mapstructure:"client_id"`
	TLS           bool     `mapstructure:"tls"`
	UseSASL       bool     `mapstructure:"use_sasl"`
	SASLUser      string   `mapstructure:"sasl_user"`
	SASLMechanism string   `mapstructure:"sasl_mechanism"`
	SASLPassword  string   `mapstructure:"sasl_password"`
}

type EventBusConfig struct {
	PubSub types.PubSubType `mapstructure:"pubsub" default:"memory"`
}

type SentryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	DSN         string  `mapstructure:"dsn"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate" default:"1.0"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	Burst             int `mapstructure:"burst"`
}

func NewConfig() (*Configuration, error) {
	// .env is optional; values already present in the environment win
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/planshift")

	v.SetEnvPrefix("PLANSHIFT")
	v.SetEnvKeyReplacer(strings.NewReplacer(
		".", "_",
		"-", "_",
	))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("Error reading config file: %v\n", err)
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, err
		}
	} else {
		fmt.Printf("Using config file: %s\n", v.ConfigFileUsed())
	}

	var config Configuration
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("deployment.mode", types.ModeLocal)
	v.SetDefault("server.address", ":8080")
	v.SetDefault("logging.level", types.LogLevelInfo)
	v.SetDefault("stripe.timeout", 10*time.Second)
	v.SetDefault("stripe.max_retries", 2)
	v.SetDefault("cache.backend", types.CacheBackendMemory)
	v.SetDefault("cache.daily_reset_hour", 0)
	v.SetDefault("cache.short_ttl", 5*time.Minute)
	v.SetDefault("audit.store", types.AuditStorePostgres)
	v.SetDefault("audit.topic", "billing.plan_changes")
	v.SetDefault("event_bus.pubsub", types.MemoryPubSub)
	v.SetDefault("rate_limit.requests_per_minute", 60)
	v.SetDefault("rate_limit.burst", 10)
	v.SetDefault("sentry.sample_rate", 1.0)
}

func (c Configuration) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}

// GetDefaultConfig returns a default configuration for local development
// This is useful for running scripts or other non-web applications
func GetDefaultConfig() *Configuration {
	return &Configuration{
		Deployment: DeploymentConfig{Mode: types.ModeLocal},
		Logging:    LoggingConfig{Level: types.LogLevelDebug},
		Stripe:     StripeConfig{Timeout: 10 * time.Second},
		Cache: CacheConfig{
			Backend:        types.CacheBackendMemory,
			DailyResetHour: 0,
			ShortTTL:       5 * time.Minute,
		},
		Audit:    AuditConfig{Store: types.AuditStorePostgres, Topic: "billing.plan_changes"},
		EventBus: EventBusConfig{PubSub: types.MemoryPubSub},
	}
}

func (c PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"user=%s password=%s dbname=%s host=%s port=%d sslmode=%s",
		c.User,
		c.Password,
		c.DBName,
		c.Host,
		c.Port,
		c.SSLMode,
	)
}
