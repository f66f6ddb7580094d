package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/mspfin/billing-engine/internal/types"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Configuration struct {
	Deployment DeploymentConfig `validate:"required"`
	Server     ServerConfig     `validate:"required"`
	Logging    LoggingConfig    `validate:"required"`
	Postgres   PostgresConfig
	Redis      RedisConfig
	Cache      CacheConfig
	Sentry     SentryConfig
	Billing    BillingConfig   `validate:"required"`
	Scheduler  SchedulerConfig `validate:"required"`
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
	Host                   string
	Port                   int
	User                   string
	Password               string
	DBName                 string `mapstructure:"dbname"`
	SSLMode                string `mapstructure:"sslmode"`
	MaxOpenConns           int    `mapstructure:"max_open_conns"`
	MaxIdleConns           int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `mapstructure:"conn_max_lifetime_minutes"`
	AutoMigrate            bool   `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

type SentryConfig struct {
	Enabled     bool
	DSN         string
	Environment string
	SampleRate  float64 `mapstructure:"sample_rate"`
}

// BillingConfig carries the regulatory constants and fee policy used by the
// financial engine. Amounts are decimal strings in the yaml file.
type BillingConfig struct {
	Currency               string          `validate:"required"`
	FederalExciseRate      decimal.Decimal `mapstructure:"federal_excise_rate"`
	FederalExciseThreshold decimal.Decimal `mapstructure:"federal_excise_threshold"`
	USFContributionFactor  decimal.Decimal `mapstructure:"usf_contribution_factor"`
	StatusTolerance        decimal.Decimal `mapstructure:"status_tolerance"`
	LateFee                LateFeeConfig   `mapstructure:"late_fee"`
}

type LateFeeConfig struct {
	Type          types.LateFeeType `validate:"omitempty,oneof=none flat percentage"`
	Amount        decimal.Decimal
	Rate          decimal.Decimal
	AfterAttempts int `mapstructure:"after_attempts"`
}

type SchedulerConfig struct {
	Enabled    bool
	Cron       string        `validate:"required"`
	Workers    int           `validate:"gte=1"`
	LockTTL    time.Duration `mapstructure:"lock_ttl"`
	MaxRetries uint64        `mapstructure:"max_retries"`
}

func NewConfig() (*Configuration, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/billing-engine")

	v.SetEnvPrefix("BILLING")
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
	if err := v.Unmarshal(&config, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		decimalHook(),
	))); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	d := GetDefaultConfig()
	v.SetDefault("deployment.mode", d.Deployment.Mode)
	v.SetDefault("server.address", d.Server.Address)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("billing.currency", d.Billing.Currency)
	v.SetDefault("billing.federal_excise_rate", d.Billing.FederalExciseRate.String())
	v.SetDefault("billing.federal_excise_threshold", d.Billing.FederalExciseThreshold.String())
	v.SetDefault("billing.usf_contribution_factor", d.Billing.USFContributionFactor.String())
	v.SetDefault("billing.status_tolerance", d.Billing.StatusTolerance.String())
	v.SetDefault("billing.late_fee.type", d.Billing.LateFee.Type)
	v.SetDefault("scheduler.cron", d.Scheduler.Cron)
	v.SetDefault("scheduler.workers", d.Scheduler.Workers)
	v.SetDefault("scheduler.lock_ttl", d.Scheduler.LockTTL)
	v.SetDefault("scheduler.max_retries", d.Scheduler.MaxRetries)
	v.SetDefault("cache.ttl", d.Cache.TTL)
}

func (c Configuration) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}

// GetDefaultConfig returns a default configuration for local development
// and tests.
func GetDefaultConfig() *Configuration {
	return &Configuration{
		Deployment: DeploymentConfig{Mode: types.ModeLocal},
		Server:     ServerConfig{Address: ":8080"},
		Logging:    LoggingConfig{Level: types.LogLevelDebug},
		Cache:      CacheConfig{Enabled: true, TTL: 30 * time.Minute},
		Billing: BillingConfig{
			Currency:               "usd",
			FederalExciseRate:      decimal.NewFromInt(3),
			FederalExciseThreshold: decimal.RequireFromString("0.20"),
			USFContributionFactor:  decimal.RequireFromString("33.4"),
			StatusTolerance:        decimal.RequireFromString("0.01"),
			LateFee:                LateFeeConfig{Type: types.LateFeeTypeNone},
		},
		Scheduler: SchedulerConfig{
			Cron:       "0 */15 * * * *",
			Workers:    4,
			LockTTL:    30 * time.Second,
			MaxRetries: 3,
		},
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
