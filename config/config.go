package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"

	LockLocal = "local"
	LockRedis = "redis"
)

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	GRPC     GRPCConfig     `yaml:"grpc"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Booking  BookingConfig  `yaml:"booking"`
	Pricing  PricingConfig  `yaml:"pricing"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Worker   WorkerConfig   `yaml:"worker"`
	Log      LogConfig      `yaml:"log"`
}

type HTTPConfig struct {
	Address    string `yaml:"address"`
	SwaggerDir string `yaml:"swagger_dir"`
	// Requests per minute allowed per client IP. Zero disables limiting.
	RateLimitPerMinute int `yaml:"rate_limit_per_minute"`
	RateLimitBurst     int `yaml:"rate_limit_burst"`
}

type GRPCConfig struct {
	Address string `yaml:"address"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers            []string `yaml:"brokers"`
	BookingEventsTopic string   `yaml:"booking_events_topic"`
	LedgerEventsTopic  string   `yaml:"ledger_events_topic"`
	NotificationsTopic string   `yaml:"notifications_topic"`
	GroupID            string   `yaml:"group_id"`
	// Attempts per event; events are published after the write commits.
	PublishRetries int `yaml:"publish_retries"`
}

type BookingConfig struct {
	LockDriver           string   `yaml:"lock_driver"`
	LockTTLSeconds       int      `yaml:"lock_ttl_seconds"`
	LockWaitMillis       int      `yaml:"lock_wait_millis"`
	AvailabilityCacheTTL int      `yaml:"availability_cache_ttl_seconds"`
	DefaultSlots         []string `yaml:"default_slots"`
}

func (b BookingConfig) LockTTL() time.Duration {
	return time.Duration(b.LockTTLSeconds) * time.Second
}

func (b BookingConfig) LockWait() time.Duration {
	return time.Duration(b.LockWaitMillis) * time.Millisecond
}

func (b BookingConfig) CacheTTL() time.Duration {
	return time.Duration(b.AvailabilityCacheTTL) * time.Second
}

type PricingConfig struct {
	DiscountRate     string `yaml:"discount_rate"`
	PenaltyRate      string `yaml:"penalty_rate"`
	MembershipMonths int    `yaml:"membership_months"`
}

type LedgerConfig struct {
	PinHashCost int  `yaml:"pin_hash_cost"`
	SeedDemo    bool `yaml:"seed_demo"`
}

type WorkerConfig struct {
	MembershipSweepMinutes int `yaml:"membership_sweep_minutes"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate fills defaults for omitted settings and rejects unknown drivers.
func (c *Config) Validate() error {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if c.GRPC.Address == "" {
		c.GRPC.Address = ":9090"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = StorageMemory
	}
	if c.Database.Driver != StorageMemory && c.Database.Driver != StoragePostgres {
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if c.Booking.LockDriver == "" {
		c.Booking.LockDriver = LockLocal
	}
	if c.Booking.LockDriver != LockLocal && c.Booking.LockDriver != LockRedis {
		return fmt.Errorf("unknown lock driver %q", c.Booking.LockDriver)
	}
	if c.Booking.LockTTLSeconds <= 0 {
		c.Booking.LockTTLSeconds = 10
	}
	if c.Booking.LockWaitMillis <= 0 {
		c.Booking.LockWaitMillis = 5000
	}
	if c.Pricing.DiscountRate == "" {
		c.Pricing.DiscountRate = "0.30"
	}
	if c.Pricing.PenaltyRate == "" {
		c.Pricing.PenaltyRate = "0.10"
	}
	if c.Pricing.MembershipMonths <= 0 {
		c.Pricing.MembershipMonths = 12
	}
	if c.Kafka.PublishRetries <= 0 {
		c.Kafka.PublishRetries = 3
	}
	if c.Worker.MembershipSweepMinutes <= 0 {
		c.Worker.MembershipSweepMinutes = 60
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	return nil
}
