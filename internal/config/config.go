// Package config loads simulator configuration from environment variables
// and an optional config file, layering godotenv's .env loading under
// viper's struct-binding defaults.
package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EngineConfig configures the matching engine at startup: which symbols to
// register and what last-trade price to seed each one with
// (Book.SetLastPrice).
type EngineConfig struct {
	Symbols       []string           `mapstructure:"symbols"`
	StartingPrice map[string]float64 `mapstructure:"starting_prices"`
}

// RiskConfig carries the ordermanager.RiskLimits fields plus the
// per-trader submission rate limit in a form viper can load from
// environment/file; velocity.New copies it into the manager.
type RiskConfig struct {
	MaxOrderSize         uint32  `mapstructure:"max_order_size"`
	MaxPositionValue     float64 `mapstructure:"max_position_value"`
	MaxDailyLoss         float64 `mapstructure:"max_daily_loss"`
	MaxDrawdown          float64 `mapstructure:"max_drawdown"`
	MaxLeverage          float64 `mapstructure:"max_leverage"`
	SubmissionsPerSecond float64 `mapstructure:"submissions_per_second"`
	SubmissionBurst      int     `mapstructure:"submission_burst"`
}

// LoggingConfig controls the sirupsen/logrus root logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Config is the simulator's full startup configuration.
type Config struct {
	Engine  EngineConfig  `mapstructure:"engine"`
	Risk    RiskConfig    `mapstructure:"risk"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// Load reads a .env file if present (ignored if absent), then layers
// defaults, an optional config file, and environment variables
// (prefix VELOCITY_) via viper.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("VELOCITY")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshaling: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("engine.symbols", []string{"AAPL"})
	v.SetDefault("engine.starting_prices", map[string]float64{"AAPL": 150.00})

	v.SetDefault("risk.max_order_size", uint32(1000))
	v.SetDefault("risk.max_position_value", 1_000_000.0)
	v.SetDefault("risk.max_daily_loss", 50_000.0)
	v.SetDefault("risk.max_drawdown", 0.2)
	v.SetDefault("risk.max_leverage", 3.0)
	v.SetDefault("risk.submissions_per_second", 200.0)
	v.SetDefault("risk.submission_burst", 50)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}
