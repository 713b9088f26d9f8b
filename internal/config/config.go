package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	HTTP     HTTP
	DB       DB
	Redis    Redis
	RabbitMQ RabbitMQ
	OTel     OTel
	Saga     Saga
	Checkout Checkout
	Delivery Delivery
	Log      Log
}

type HTTP struct {
	Port            int
	CORSOrigins     []string
	ShutdownTimeout time.Duration
}

type DB struct {
	Driver string
	DSN    string
}

// Redis is optional; an empty Addr disables idempotent replay.
type Redis struct {
	Addr     string
	Password string
	DB       int
}

// RabbitMQ is optional; without a URL delivery codes are only logged.
type RabbitMQ struct {
	URL   string
	Queue string
}

type OTel struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
	Environment string
	SampleRatio float64
}

type Saga struct {
	LogPath string
}

type Checkout struct {
	Timeout time.Duration
}

type Delivery struct {
	CodeTTL     time.Duration
	MaxAttempts int
}

type Log struct {
	Level string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.cors.allowed_origins", []string{"*"})
	v.SetDefault("http.shutdown_timeout", "10s")
	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.dsn", "file:./data/quitq.db?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("rabbitmq.url", "")
	v.SetDefault("rabbitmq.queue", "quitq.delivery.codes")
	v.SetDefault("otel.enabled", false)
	v.SetDefault("otel.endpoint", "localhost:4317")
	v.SetDefault("otel.service_name", "quitq-checkout")
	v.SetDefault("otel.environment", "local")
	v.SetDefault("otel.sample_ratio", 1.0)
	v.SetDefault("saga.log_path", "./data/saga.db")
	v.SetDefault("checkout.timeout", "15s")
	v.SetDefault("delivery.code_ttl", "15m")
	v.SetDefault("delivery.max_attempts", 5)
	v.SetDefault("log.level", "info")
}

// Load reads, in increasing priority: defaults, config.yaml from the
// working directory or /etc/quitq, a .env file, and QUITQ_* environment
// variables (QUITQ_DB_DSN overrides db.dsn). Missing files are not errors.
func Load(paths ...string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/quitq")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read config file: %w", err)
		}
	}

	v.SetEnvPrefix("QUITQ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		HTTP: HTTP{
			Port:            v.GetInt("http.port"),
			CORSOrigins:     v.GetStringSlice("http.cors.allowed_origins"),
			ShutdownTimeout: v.GetDuration("http.shutdown_timeout"),
		},
		DB: DB{
			Driver: v.GetString("db.driver"),
			DSN:    v.GetString("db.dsn"),
		},
		Redis: Redis{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		RabbitMQ: RabbitMQ{
			URL:   v.GetString("rabbitmq.url"),
			Queue: v.GetString("rabbitmq.queue"),
		},
		OTel: OTel{
			Enabled:     v.GetBool("otel.enabled"),
			Endpoint:    v.GetString("otel.endpoint"),
			ServiceName: v.GetString("otel.service_name"),
			Environment: v.GetString("otel.environment"),
			SampleRatio: v.GetFloat64("otel.sample_ratio"),
		},
		Saga:     Saga{LogPath: v.GetString("saga.log_path")},
		Checkout: Checkout{Timeout: v.GetDuration("checkout.timeout")},
		Delivery: Delivery{
			CodeTTL:     v.GetDuration("delivery.code_ttl"),
			MaxAttempts: v.GetInt("delivery.max_attempts"),
		},
		Log: Log{Level: v.GetString("log.level")},
	}
	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	switch c.DB.Driver {
	case "sqlite", "pgx":
	default:
		return fmt.Errorf("config: db.driver must be sqlite or pgx, got %q", c.DB.Driver)
	}
	if c.DB.DSN == "" {
		return errors.New("config: db.dsn is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("config: invalid http.port %d", c.HTTP.Port)
	}
	if c.Delivery.MaxAttempts < 0 {
		return errors.New("config: delivery.max_attempts must not be negative")
	}
	return nil
}
