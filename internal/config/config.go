package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/gmsas95/dosetrack/internal/errors"
)

// Config holds all configuration for dosetrack.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Dosing    DosingConfig    `mapstructure:"dosing"`
	Reminders RemindersConfig `mapstructure:"reminders"`
	Insights  InsightsConfig  `mapstructure:"insights"`
	Security  SecurityConfig  `mapstructure:"security"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address      string `mapstructure:"address"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// StorageConfig holds persistence settings. Backend is "sqlite" (SQLite for
// medications plus Badger for the history ledger) or "file" (a single YAML
// file, handy for backups and tests).
type StorageConfig struct {
	Backend    string `mapstructure:"backend"`
	DataDir    string `mapstructure:"data_dir"`
	SQLitePath string `mapstructure:"sqlite_path"`
	BadgerPath string `mapstructure:"badger_path"`
	FilePath   string `mapstructure:"file_path"`
}

// DosingConfig holds dose-commit settings.
type DosingConfig struct {
	SettleDelayMillis int `mapstructure:"settle_delay_ms"`
}

// SettleDelay returns the configured settle delay as a duration.
func (c DosingConfig) SettleDelay() time.Duration {
	return time.Duration(c.SettleDelayMillis) * time.Millisecond
}

// RemindersConfig holds the overdue/low-supply sweep settings. Schedule is a
// cron spec.
type RemindersConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	Schedule           string `mapstructure:"schedule"`
	LowSupplyThreshold int    `mapstructure:"low_supply_threshold"`
}

// InsightsConfig holds the AI provider settings.
type InsightsConfig struct {
	APIKey            string `mapstructure:"api_key"`
	BaseURL           string `mapstructure:"base_url"`
	Model             string `mapstructure:"model"`
	Timeout           int    `mapstructure:"timeout"`
	MaxTokens         int    `mapstructure:"max_tokens"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute"`
	Burst             int    `mapstructure:"burst"`
}

// SecurityConfig holds API auth settings.
type SecurityConfig struct {
	JWTSecret     string   `mapstructure:"jwt_secret"`
	AdminPassword string   `mapstructure:"admin_password"`
	AllowOrigins  []string `mapstructure:"allow_origins"`
}

// Load loads configuration from file, env, and defaults.
func Load(configPath, dataDir string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if dataDir == "" {
		dataDir = getDefaultDataDir()
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	v.Set("storage.data_dir", dataDir)
	v.SetDefault("storage.sqlite_path", filepath.Join(dataDir, "dosetrack.db"))
	v.SetDefault("storage.badger_path", filepath.Join(dataDir, "ledger"))
	v.SetDefault("storage.file_path", filepath.Join(dataDir, "dosetrack.yaml"))

	if configPath == "" {
		configPath = filepath.Join(dataDir, "config.yaml")
	}
	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// Environment variables (DOSETRACK_SERVER_PORT, DOSETRACK_INSIGHTS_API_KEY, ...)
	v.SetEnvPrefix("DOSETRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", "127.0.0.1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)

	v.SetDefault("storage.backend", "sqlite")

	v.SetDefault("dosing.settle_delay_ms", 1000)

	v.SetDefault("reminders.enabled", true)
	v.SetDefault("reminders.schedule", "*/15 * * * *")
	v.SetDefault("reminders.low_supply_threshold", 5)

	v.SetDefault("insights.base_url", "https://api.moonshot.cn/v1")
	v.SetDefault("insights.model", "kimi-k2.5")
	v.SetDefault("insights.timeout", 60)
	v.SetDefault("insights.max_tokens", 1024)
	v.SetDefault("insights.requests_per_minute", 30)
	v.SetDefault("insights.burst", 5)

	v.SetDefault("security.allow_origins", []string{"*"})
}

func getDefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "dosetrack")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".local", "share", "dosetrack")
}

func validate(cfg *Config) error {
	switch cfg.Storage.Backend {
	case "sqlite", "file":
	default:
		return errors.New(errors.ErrConfigInvalid.Code,
			fmt.Sprintf("unknown storage backend %q", cfg.Storage.Backend))
	}
	if cfg.Dosing.SettleDelayMillis < 0 {
		return errors.New(errors.ErrConfigInvalid.Code, "settle delay must not be negative")
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return errors.New(errors.ErrConfigInvalid.Code, "server port out of range")
	}
	return nil
}
