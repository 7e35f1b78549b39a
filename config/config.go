package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server         ServerConfig
	Database       DatabaseConfig
	JWT            JWTConfig
	Log            LogConfig
	Paystack       PaystackConfig
	Reconciliation ReconciliationConfig
	RateLimit      RateLimitConfig
	Redis          RedisConfig
	Kafka          KafkaConfig
	Firebase       FirebaseConfig
	Cloudinary     CloudinaryConfig
}

type ServerConfig struct {
	Port         string
	Env          string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	Driver          string // mysql, postgres, sqlite
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

type JWTConfig struct {
	AccessSecret string
	AccessExpiry time.Duration
	Issuer       string
}

type LogConfig struct {
	Level string
}

// PaystackConfig holds gateway credentials. An empty SecretKey leaves the gateway unconfigured.
type PaystackConfig struct {
	Mode        string // paystack | stub
	BaseURL     string
	SecretKey   string
	PublicKey   string
	CallbackURL string
	Timeout     time.Duration
}

type ReconciliationConfig struct {
	SweepSchedule string
	PurgeSchedule string
	BackoffBase   time.Duration
	DefaultDays   int
	Workers       int
	KYCThreshold  string // decimal, invoice currency major units
}

type RateLimitConfig struct {
	APILimit      int
	APIWindow     time.Duration
	WebhookLimit  int
	WebhookWindow time.Duration
}

// RedisConfig enables the shared rate limiter when Addr is set.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// KafkaConfig enables payment status events when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type FirebaseConfig struct {
	ServiceAccountPath string
}

type CloudinaryConfig struct {
	CloudName string
	APIKey    string
	APISecret string
}

func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8099")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 40*time.Second)

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.dsn", "billflow:billflow@tcp(localhost:3306)/billflow?charset=utf8mb4&parseTime=True&loc=UTC")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", time.Hour)

	v.SetDefault("jwt.access_secret", "change-me-in-production")
	v.SetDefault("jwt.access_expiry", 15*time.Minute)
	v.SetDefault("jwt.issuer", "billflow")

	v.SetDefault("log.level", "info")

	v.SetDefault("paystack.mode", "paystack")
	v.SetDefault("paystack.base_url", "https://api.paystack.co")
	v.SetDefault("paystack.secret_key", "")
	v.SetDefault("paystack.public_key", "")
	v.SetDefault("paystack.callback_url", "")
	v.SetDefault("paystack.timeout", 30*time.Second)

	v.SetDefault("reconciliation.sweep_schedule", "@every 30s")
	v.SetDefault("reconciliation.purge_schedule", "@hourly")
	v.SetDefault("reconciliation.backoff_base", 30*time.Second)
	v.SetDefault("reconciliation.default_days", 7)
	v.SetDefault("reconciliation.workers", 1)
	v.SetDefault("reconciliation.kyc_threshold", "100000")

	v.SetDefault("rate_limit.api_limit", 100)
	v.SetDefault("rate_limit.api_window", time.Minute)
	v.SetDefault("rate_limit.webhook_limit", 120)
	v.SetDefault("rate_limit.webhook_window", time.Minute)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "payments.status")

	v.SetDefault("firebase.service_account_path", "")

	v.SetDefault("cloudinary.cloud_name", "")
	v.SetDefault("cloudinary.api_key", "")
	v.SetDefault("cloudinary.api_secret", "")
}

// Load reads defaults, an optional config.yaml (working dir or /etc/billflow) and
// environment variables. Env names are the upper-cased keys with dots replaced by
// underscores, e.g. PAYSTACK_SECRET_KEY or DATABASE_DSN.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/billflow")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	return &Config{
		Server: ServerConfig{
			Port:         v.GetString("server.port"),
			Env:          v.GetString("server.env"),
			ReadTimeout:  v.GetDuration("server.read_timeout"),
			WriteTimeout: v.GetDuration("server.write_timeout"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			DSN:             v.GetString("database.dsn"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
		},
		JWT: JWTConfig{
			AccessSecret: v.GetString("jwt.access_secret"),
			AccessExpiry: v.GetDuration("jwt.access_expiry"),
			Issuer:       v.GetString("jwt.issuer"),
		},
		Log: LogConfig{
			Level: v.GetString("log.level"),
		},
		Paystack: PaystackConfig{
			Mode:        v.GetString("paystack.mode"),
			BaseURL:     v.GetString("paystack.base_url"),
			SecretKey:   v.GetString("paystack.secret_key"),
			PublicKey:   v.GetString("paystack.public_key"),
			CallbackURL: v.GetString("paystack.callback_url"),
			Timeout:     v.GetDuration("paystack.timeout"),
		},
		Reconciliation: ReconciliationConfig{
			SweepSchedule: v.GetString("reconciliation.sweep_schedule"),
			PurgeSchedule: v.GetString("reconciliation.purge_schedule"),
			BackoffBase:   v.GetDuration("reconciliation.backoff_base"),
			DefaultDays:   v.GetInt("reconciliation.default_days"),
			Workers:       v.GetInt("reconciliation.workers"),
			KYCThreshold:  v.GetString("reconciliation.kyc_threshold"),
		},
		RateLimit: RateLimitConfig{
			APILimit:      v.GetInt("rate_limit.api_limit"),
			APIWindow:     v.GetDuration("rate_limit.api_window"),
			WebhookLimit:  v.GetInt("rate_limit.webhook_limit"),
			WebhookWindow: v.GetDuration("rate_limit.webhook_window"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Kafka: KafkaConfig{
			Brokers: v.GetStringSlice("kafka.brokers"),
			Topic:   v.GetString("kafka.topic"),
		},
		Firebase: FirebaseConfig{
			ServiceAccountPath: v.GetString("firebase.service_account_path"),
		},
		Cloudinary: CloudinaryConfig{
			CloudName: v.GetString("cloudinary.cloud_name"),
			APIKey:    v.GetString("cloudinary.api_key"),
			APISecret: v.GetString("cloudinary.api_secret"),
		},
	}, nil
}
