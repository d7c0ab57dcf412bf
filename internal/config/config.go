// Package config loads and validates runtime configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"npsh-guard/internal/curve"
	"npsh-guard/internal/logging"
	"npsh-guard/internal/storage"
)

// Config materialises application configuration.
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Logging     logging.Config    `mapstructure:"logging"`
	PLC         PLCConfig         `mapstructure:"plc"`
	Acquisition AcquisitionConfig `mapstructure:"acquisition"`
	Safety      SafetyConfig      `mapstructure:"safety"`
	Pump        PumpConfig        `mapstructure:"pump"`
	Curves      CurvesConfig      `mapstructure:"curves"`
	History     HistoryConfig     `mapstructure:"history"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Database    storage.Config    `mapstructure:"database"`
	Alerting    AlertingConfig    `mapstructure:"alerting"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// PLCConfig covers the Modbus TCP endpoint.
type PLCConfig struct {
	Endpoint   string        `mapstructure:"endpoint"`
	UnitID     uint8         `mapstructure:"unit_id"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// AcquisitionConfig governs sampling cadence.
type AcquisitionConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// SafetyConfig governs the cavitation countdown.
type SafetyConfig struct {
	GracePeriod time.Duration `mapstructure:"grace_period"`
}

// PumpConfig identifies the protected pump.
type PumpConfig struct {
	Type string `mapstructure:"type"`
}

// CurvesConfig locates the on-disk curve files.
type CurvesConfig struct {
	Dir string `mapstructure:"dir"`
}

// HistoryConfig sizes the in-memory sample rings.
type HistoryConfig struct {
	DisplayCapacity int `mapstructure:"display_capacity"`
	ExportCapacity  int `mapstructure:"export_capacity"`
}

// HTTPConfig sets the daemon's local API listener.
type HTTPConfig struct {
	Listen string `mapstructure:"listen"`
}

// AlertingConfig defines alert routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes Telegram delivery parameters.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("NPSHGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "npsh-guard")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("plc.endpoint", "127.0.0.1:502")
	v.SetDefault("plc.unit_id", 1)
	v.SetDefault("plc.timeout", "2s")
	v.SetDefault("plc.retry_delay", "5s")

	v.SetDefault("acquisition.interval", "1s")
	v.SetDefault("safety.grace_period", "30s")

	v.SetDefault("pump.type", curve.DefaultPumpType)
	v.SetDefault("curves.dir", "curves")

	v.SetDefault("history.display_capacity", 120)
	v.SetDefault("history.export_capacity", 240)

	v.SetDefault("http.listen", "127.0.0.1:8384")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.PLC.Endpoint == "" {
		return fmt.Errorf("plc.endpoint must be set")
	}
	if c.PLC.Timeout <= 0 {
		return fmt.Errorf("plc.timeout must be greater than zero")
	}
	if c.PLC.RetryDelay <= 0 {
		return fmt.Errorf("plc.retry_delay must be greater than zero")
	}
	if c.Acquisition.Interval <= 0 {
		return fmt.Errorf("acquisition.interval must be greater than zero")
	}
	if c.Safety.GracePeriod <= 0 {
		return fmt.Errorf("safety.grace_period must be greater than zero")
	}
	if c.Pump.Type == "" {
		return fmt.Errorf("pump.type must be set")
	}
	if c.History.DisplayCapacity <= 0 {
		return fmt.Errorf("history.display_capacity must be greater than zero")
	}
	if c.History.ExportCapacity <= 0 {
		return fmt.Errorf("history.export_capacity must be greater than zero")
	}
	if c.HTTP.Listen == "" {
		return fmt.Errorf("http.listen must be set")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token must be set")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id must be set")
		}
	}
	return nil
}
