package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DriverPostgres  = "postgres"
	DriverFirestore = "firestore"
	DriverMemory    = "memory"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Store    StoreConfig    `yaml:"store"`
	Cache    CacheConfig    `yaml:"cache"`
	Retry    RetryConfig    `yaml:"retry"`
	Orders   OrdersConfig   `yaml:"orders"`
	HTTP     HTTPConfig     `yaml:"http"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

type RabbitMQConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

type StoreConfig struct {
	// Driver is one of postgres, firestore or memory.
	Driver           string `yaml:"driver"`
	FirestoreProject string `yaml:"firestore_project"`
}

type CacheConfig struct {
	Path string        `yaml:"path"`
	TTL  time.Duration `yaml:"ttl"`
}

type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

type OrdersConfig struct {
	DefaultTaxRate float64 `yaml:"default_tax_rate"`
}

type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Load reads the yaml file, then an optional .env next to the process, then
// POS_* environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes yaml without touching the environment.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse yaml: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Store.Driver == "" {
		c.Store.Driver = DriverPostgres
	}
	if c.Cache.Path == "" {
		c.Cache.Path = "tableorders.db"
	}
	if c.Cache.TTL <= 0 {
		c.Cache.TTL = 30 * time.Minute
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Retry.BaseDelay <= 0 {
		c.Retry.BaseDelay = 200 * time.Millisecond
	}
	if c.Retry.MaxDelay <= 0 {
		c.Retry.MaxDelay = 2 * time.Second
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 3000
	}
}

func (c *Config) applyEnv() error {
	setString(&c.Database.Host, "POS_DB_HOST")
	setString(&c.Database.User, "POS_DB_USER")
	setString(&c.Database.Password, "POS_DB_PASSWORD")
	setString(&c.Database.Database, "POS_DB_NAME")
	setString(&c.RabbitMQ.Host, "POS_RABBITMQ_HOST")
	setString(&c.RabbitMQ.User, "POS_RABBITMQ_USER")
	setString(&c.RabbitMQ.Password, "POS_RABBITMQ_PASSWORD")
	setString(&c.Store.Driver, "POS_STORE_DRIVER")
	setString(&c.Store.FirestoreProject, "POS_FIRESTORE_PROJECT")
	setString(&c.Cache.Path, "POS_CACHE_PATH")

	if err := setInt(&c.Database.Port, "POS_DB_PORT"); err != nil {
		return err
	}
	if err := setInt(&c.RabbitMQ.Port, "POS_RABBITMQ_PORT"); err != nil {
		return err
	}
	return setInt(&c.HTTP.Port, "POS_HTTP_PORT")
}

func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverPostgres, DriverMemory:
	case DriverFirestore:
		if c.Store.FirestoreProject == "" {
			return errors.New("store.firestore_project is required for the firestore driver")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Orders.DefaultTaxRate < 0 {
		return errors.New("orders.default_tax_rate must not be negative")
	}
	if c.Retry.BaseDelay > c.Retry.MaxDelay {
		return errors.New("retry.base_delay must not exceed retry.max_delay")
	}
	return nil
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Password, d.Database)
}

// URL is the form golang-migrate expects.
func (d DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Database)
}

func (r RabbitMQConfig) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/", r.User, r.Password, r.Host, r.Port)
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}
