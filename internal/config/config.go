// Package config loads service configuration from a TOML file and OPTILEDGER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. OPTILEDGER_DATABASE_HOST.
const EnvPrefix = "OPTILEDGER"

type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Log       LogConfig
	Numbering NumberingConfig
	Worker    WorkerConfig
}

type AppConfig struct {
	Name string
	Env  string
	Port string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
	MinConns int32
}

type RedisConfig struct {
	// Enabled turns on the cross-process repair lock.
	Enabled   bool
	Host      string
	Port      int
	Password  string
	DB        int
	KeyPrefix string
}

type JWTConfig struct {
	Secret string
	Issuer string
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
}

type NumberingConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	LockTTL         time.Duration
	ScanBatchSize   int
	PurchaseTable   string
	SaleTable       string
	IdempotencyTTL  time.Duration // how long commit responses stay replayable
}

// WorkerConfig drives the drift monitor.
type WorkerConfig struct {
	Interval    time.Duration
	MetricsPort string
}

// Load reads config.toml from the working directory (optional) and applies env overrides.
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom reads the given file instead of searching for config.toml. An empty path searches.
func LoadFrom(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/optiledger")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("database.host"),
			Port:     v.GetInt("database.port"),
			User:     v.GetString("database.user"),
			Password: v.GetString("database.password"),
			DBName:   v.GetString("database.dbname"),
			SSLMode:  v.GetString("database.sslmode"),
			MaxConns: v.GetInt32("database.max_conns"),
			MinConns: v.GetInt32("database.min_conns"),
		},
		Redis: RedisConfig{
			Enabled:   v.GetBool("redis.enabled"),
			Host:      v.GetString("redis.host"),
			Port:      v.GetInt("redis.port"),
			Password:  v.GetString("redis.password"),
			DB:        v.GetInt("redis.db"),
			KeyPrefix: v.GetString("redis.key_prefix"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("jwt.secret"),
			Issuer: v.GetString("jwt.issuer"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Numbering: NumberingConfig{
			MaxRetries:      v.GetInt("numbering.max_retries"),
			InitialInterval: v.GetDuration("numbering.initial_interval"),
			MaxInterval:     v.GetDuration("numbering.max_interval"),
			LockTTL:         v.GetDuration("numbering.lock_ttl"),
			ScanBatchSize:   v.GetInt("numbering.scan_batch_size"),
			PurchaseTable:   v.GetString("numbering.purchase_table"),
			SaleTable:       v.GetString("numbering.sale_table"),
			IdempotencyTTL:  v.GetDuration("numbering.idempotency_ttl"),
		},
		Worker: WorkerConfig{
			Interval:    v.GetDuration("worker.interval"),
			MetricsPort: v.GetString("worker.metrics_port"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "optiledger")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "optiledger")
	v.SetDefault("database.dbname", "optiledger")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.key_prefix", "optiledger:")

	v.SetDefault("jwt.secret", "dev-secret-change-me")
	v.SetDefault("jwt.issuer", "optiledger")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("numbering.max_retries", 8)
	v.SetDefault("numbering.initial_interval", 5*time.Millisecond)
	v.SetDefault("numbering.max_interval", 200*time.Millisecond)
	v.SetDefault("numbering.lock_ttl", 10*time.Minute)
	v.SetDefault("numbering.scan_batch_size", 500)
	v.SetDefault("numbering.purchase_table", "purchases")
	v.SetDefault("numbering.sale_table", "sales")
	v.SetDefault("numbering.idempotency_ttl", 24*time.Hour)

	v.SetDefault("worker.interval", 5*time.Minute)
	v.SetDefault("worker.metrics_port", "9090")
}

// Validate checks invariants that defaults cannot cover.
func (c *Config) Validate() error {
	if c.IsProduction() && (c.JWT.Secret == "" || len(c.JWT.Secret) < 32) {
		return errors.New("jwt.secret must be at least 32 characters in production")
	}
	if c.Numbering.MaxRetries < 1 {
		return errors.New("numbering.max_retries must be positive")
	}
	if c.Numbering.ScanBatchSize < 1 {
		return errors.New("numbering.scan_batch_size must be positive")
	}
	if c.Numbering.LockTTL <= 0 {
		return errors.New("numbering.lock_ttl must be positive")
	}
	if c.Worker.Interval <= 0 {
		return errors.New("worker.interval must be positive")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		return errors.New("database.max_conns must be >= database.min_conns")
	}
	return nil
}

// IsProduction reports whether the app runs in production.
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// IsDevelopment reports whether the app runs in development.
func (c *Config) IsDevelopment() bool {
	return c.App.Env == "development"
}

// DSN returns a postgres connection URL.
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Addr returns host:port.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
