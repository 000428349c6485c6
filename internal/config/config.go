// Package config loads service configuration from an optional rota.yaml file
// and ROTA_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/dukerupert/rota/internal/availability"
)

type Config struct {
	Server       ServerConfig       `mapstructure:"server" validate:"required"`
	Database     DatabaseConfig     `mapstructure:"database" validate:"required"`
	Generation   GenerationConfig   `mapstructure:"generation" validate:"required"`
	Rotation     RotationConfig     `mapstructure:"rotation" validate:"required"`
	Availability AvailabilityConfig `mapstructure:"availability" validate:"required"`
	Capacity     map[string]int     `mapstructure:"capacity" validate:"omitempty,dive,keys,oneof=child teen parent helper,endkeys,gte=0"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Snapshot     SnapshotConfig     `mapstructure:"snapshot"`
	Feed         FeedConfig         `mapstructure:"feed"`
}

type ServerConfig struct {
	Port      int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel  string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	LogFormat string `mapstructure:"log_format" validate:"required,oneof=text json"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

type GenerationConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Interval       time.Duration `mapstructure:"interval" validate:"required,gte=1s"`
	HorizonDays    int           `mapstructure:"horizon_days" validate:"required,gt=0,lte=366"`
	RunTimeout     time.Duration `mapstructure:"run_timeout" validate:"required,gte=1s"`
	MaxOccurrences int           `mapstructure:"max_occurrences" validate:"required,gt=0"`
}

type RotationConfig struct {
	SaturationThreshold float64 `mapstructure:"saturation_threshold" validate:"gt=0,lte=10"`
}

type AvailabilityConfig struct {
	PreferredStart string `mapstructure:"preferred_start" validate:"required,datetime=15:04"`
	PreferredEnd   string `mapstructure:"preferred_end" validate:"required,datetime=15:04"`
}

type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace" validate:"omitempty,alphanum"`
}

// SnapshotConfig controls encrypted database snapshots. Storage settings are
// only required when snapshots are enabled.
type SnapshotConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Interval      time.Duration `mapstructure:"interval" validate:"required,gte=1m"`
	RetentionDays int           `mapstructure:"retention_days" validate:"gte=0"`
	Passphrase    string        `mapstructure:"passphrase" validate:"required_if=Enabled true"`
	Endpoint      string        `mapstructure:"endpoint" validate:"omitempty,url"`
	Bucket        string        `mapstructure:"bucket" validate:"required_if=Enabled true"`
	Region        string        `mapstructure:"region"`
	AccessKey     string        `mapstructure:"access_key" validate:"required_if=Enabled true"`
	SecretKey     string        `mapstructure:"secret_key" validate:"required_if=Enabled true"`
	Prefix        string        `mapstructure:"prefix"`
}

type FeedConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// PreferredHours converts the configured preferred window to offsets from
// midnight.
func (c AvailabilityConfig) PreferredHours() (availability.Hours, error) {
	start, err := clock(c.PreferredStart)
	if err != nil {
		return availability.Hours{}, fmt.Errorf("preferred_start: %w", err)
	}
	end, err := clock(c.PreferredEnd)
	if err != nil {
		return availability.Hours{}, fmt.Errorf("preferred_end: %w", err)
	}
	if end <= start {
		return availability.Hours{}, fmt.Errorf("preferred window %s-%s is empty", c.PreferredStart, c.PreferredEnd)
	}
	return availability.Hours{Start: start, End: end}, nil
}

func clock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "text")
	v.SetDefault("database.path", "rota.db")
	v.SetDefault("generation.enabled", true)
	v.SetDefault("generation.interval", "1h")
	v.SetDefault("generation.horizon_days", 14)
	v.SetDefault("generation.run_timeout", "30s")
	v.SetDefault("generation.max_occurrences", 365)
	v.SetDefault("rotation.saturation_threshold", 0.9)
	v.SetDefault("availability.preferred_start", "08:00")
	v.SetDefault("availability.preferred_end", "20:00")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", "rota")
	v.SetDefault("snapshot.enabled", false)
	v.SetDefault("snapshot.interval", "24h")
	v.SetDefault("snapshot.retention_days", 30)
	v.SetDefault("snapshot.region", "us-east-1")
	v.SetDefault("snapshot.prefix", "snapshots")
	v.SetDefault("feed.enabled", true)
}

// Load reads configuration. Environment variables take precedence over the
// config file, which takes precedence over defaults. configFile may be empty,
// in which case rota.yaml is looked up in the working directory and is
// optional.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("rota")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix("ROTA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only covers keys viper already knows about.
	for _, key := range []string{"passphrase", "endpoint", "bucket", "access_key", "secret_key"} {
		if err := v.BindEnv("snapshot." + key); err != nil {
			return nil, fmt.Errorf("bind snapshot.%s: %w", key, err)
		}
	}
	for _, class := range []string{"child", "teen", "parent", "helper"} {
		if err := v.BindEnv("capacity." + class); err != nil {
			return nil, fmt.Errorf("bind capacity.%s: %w", class, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := cfg.Availability.PreferredHours(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}
