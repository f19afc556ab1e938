// Package config defines all configuration for the Cascadian core.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// CASCADIAN_* environment overrides; secrets stay in the environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file.
type Config struct {
	Debug     bool            `mapstructure:"debug"`
	OLAP      OLAPConfig      `mapstructure:"olap"`
	CopyTrade CopyTradeConfig `mapstructure:"copy_trade"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	API       APIConfig       `mapstructure:"api"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Feed      FeedConfig      `mapstructure:"feed"`
}

// OLAPConfig points at the columnar fact store. DSN wins when set;
// otherwise it is assembled from the host/user/password/database parts.
type OLAPConfig struct {
	DSN      string `mapstructure:"dsn"`
	Host     string `mapstructure:"host"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// ResolveDSN returns the connection string, preferring the explicit DSN and
// the OLAP_DSN environment variable over the assembled parts.
func (c *OLAPConfig) ResolveDSN() string {
	if c.DSN != "" {
		return c.DSN
	}
	if dsn := os.Getenv("OLAP_DSN"); dsn != "" {
		return dsn
	}
	if c.Host == "" {
		return ""
	}
	return fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Database)
}

// CopyTradeConfig mirrors the engine's recognised options.
type CopyTradeConfig struct {
	Wallets              []string `mapstructure:"wallets"`
	ConsensusMode        string   `mapstructure:"consensus_mode"`
	NRequired            int      `mapstructure:"n_required"`
	MinSourceNotionalUsd float64  `mapstructure:"min_source_notional_usd"`
	MaxCopyPerTradeUsd   float64  `mapstructure:"max_copy_per_trade_usd"`
	DryRun               bool     `mapstructure:"dry_run"`
	EnableLogging        bool     `mapstructure:"enable_logging"`
	ConditionAllowList   []string `mapstructure:"condition_allow_list"`
}

// MinNotional returns the per-event notional filter as a decimal.
func (c *CopyTradeConfig) MinNotional() decimal.Decimal {
	return decimal.NewFromFloat(c.MinSourceNotionalUsd)
}

// MaxPerTrade returns the per-execution cap as a decimal.
func (c *CopyTradeConfig) MaxPerTrade() decimal.Decimal {
	return decimal.NewFromFloat(c.MaxCopyPerTradeUsd)
}

// MonitorConfig tunes the price monitor.
type MonitorConfig struct {
	PollIntervalMs        int     `mapstructure:"poll_interval_ms"`
	DefaultPriceTargetPct float64 `mapstructure:"default_price_target_pct"`
	DefaultStopLossPct    float64 `mapstructure:"default_stop_loss_pct"`
	FollowWalletExits     bool    `mapstructure:"follow_wallet_exits"`
	MarketDataURL         string  `mapstructure:"market_data_url"`
}

// PollInterval returns the poll interval as a duration (10s default).
func (c *MonitorConfig) PollInterval() time.Duration {
	if c.PollIntervalMs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// APIConfig controls the HTTP surface.
type APIConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// ArchiveConfig points the durable decision/position archive at a database:
// a postgres DSN, or a file path for the sqlite fallback. Empty disables it.
type ArchiveConfig struct {
	Path string `mapstructure:"path"`
}

// TelegramConfig enables the alert notifier. The TELEGRAM_BOT_TOKEN
// environment variable, when set, overrides Token.
type TelegramConfig struct {
	Token  string `mapstructure:"token"`
	ChatID int64  `mapstructure:"chat_id"`
}

// FeedConfig points the trade-event ingress at its upstream stream.
type FeedConfig struct {
	URL string `mapstructure:"url"`
}

// Load reads config from a YAML file with CASCADIAN_* env overrides.
// A missing file is fine when the environment carries everything.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("CASCADIAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("copy_trade.consensus_mode", "two_agree")
	v.SetDefault("copy_trade.dry_run", true)
	v.SetDefault("copy_trade.enable_logging", true)
	v.SetDefault("monitor.poll_interval_ms", 10000)
	v.SetDefault("monitor.default_price_target_pct", 20)
	v.SetDefault("monitor.default_stop_loss_pct", 10)
	v.SetDefault("api.enabled", true)
	v.SetDefault("api.port", 8090)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Secrets stay in the environment.
	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		cfg.Telegram.Token = token
	}

	return &cfg, nil
}

// Validate checks value ranges. Configuration errors are fatal to the
// engines they configure, not to the process.
func (c *Config) Validate() error {
	switch c.CopyTrade.ConsensusMode {
	case "any", "two_agree", "n_of_m", "all":
	default:
		return fmt.Errorf("copy_trade.consensus_mode must be one of: any, two_agree, n_of_m, all")
	}
	if c.CopyTrade.ConsensusMode == "n_of_m" && c.CopyTrade.NRequired <= 0 {
		return fmt.Errorf("copy_trade.n_required must be > 0 when consensus_mode is n_of_m")
	}
	if c.CopyTrade.MinSourceNotionalUsd < 0 {
		return fmt.Errorf("copy_trade.min_source_notional_usd must be >= 0")
	}
	if c.CopyTrade.MaxCopyPerTradeUsd < 0 {
		return fmt.Errorf("copy_trade.max_copy_per_trade_usd must be >= 0")
	}
	if c.API.Enabled && (c.API.Port <= 0 || c.API.Port > 65535) {
		return fmt.Errorf("api.port must be a valid port")
	}
	return nil
}
