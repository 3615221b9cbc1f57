package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Provider ProviderConfig `mapstructure:"provider"`
	Feed     FeedConfig     `mapstructure:"feed"`
	Log      LogConfig      `mapstructure:"log"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// ProviderConfig describes the streaming market-data endpoint.
type ProviderConfig struct {
	URL                string        `mapstructure:"url"`
	APIKey             string        `mapstructure:"api_key"`
	Frequency          string        `mapstructure:"frequency"`           // subscription type code, "5" = aggregate index
	Aggregate          string        `mapstructure:"aggregate"`           // exchange aggregate, e.g. "CCCAGG"
	SubscriptionSuffix string        `mapstructure:"subscription_suffix"` // appended to every subscription string
	MaxSubsPerFrame    int           `mapstructure:"max_subs_per_frame"`
	FramesPerSecond    float64       `mapstructure:"frames_per_second"`
	FrameBurst         int           `mapstructure:"frame_burst"`
	HandshakeTimeout   time.Duration `mapstructure:"handshake_timeout"`
}

// FeedConfig holds the timers and scoping of the price pipeline.
type FeedConfig struct {
	ReconnectBaseInterval time.Duration     `mapstructure:"reconnect_base_interval"`
	ReconnectMaxInterval  time.Duration     `mapstructure:"reconnect_max_interval"`
	HeartbeatInterval     time.Duration     `mapstructure:"heartbeat_interval"`
	HeartbeatGrace        time.Duration     `mapstructure:"heartbeat_grace"`
	PairRefreshInterval   time.Duration     `mapstructure:"pair_refresh_interval"`
	FlushInterval         time.Duration     `mapstructure:"flush_interval"`
	FlushTimeout          time.Duration     `mapstructure:"flush_timeout"`
	ServerGroup           string            `mapstructure:"server_group"`
	SymbolAliases         map[string]string `mapstructure:"symbol_aliases"` // provider symbol -> canonical symbol
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"` // empty disables the /metrics listener
}

// Options defines the logger configuration options.
type LogConfig struct {
	Level       string `mapstructure:"level"`       // log level: "debug", "info", "warn", "error"
	Format      string `mapstructure:"format"`      // log format: "json" or "console"
	OutputFile  string `mapstructure:"output_file"` // file path to store logs (optional)
	Environment string `mapstructure:"environment"` // environment: "dev" or "prod"
}

// HeartbeatTimeout is how long the watchdog waits for a keepalive frame.
func (f FeedConfig) HeartbeatTimeout() time.Duration {
	return f.HeartbeatInterval + f.HeartbeatGrace
}

// Aliases returns the alias table with upper-cased keys and values.
// Viper lower-cases map keys, so the table is normalized here.
func (f FeedConfig) Aliases() map[string]string {
	out := make(map[string]string, len(f.SymbolAliases))
	for from, to := range f.SymbolAliases {
		out[strings.ToUpper(from)] = strings.ToUpper(to)
	}
	return out
}

// SocketURL returns the endpoint with the api key attached as a query parameter.
func (p ProviderConfig) SocketURL() string {
	if p.APIKey == "" {
		return p.URL
	}
	sep := "?"
	if strings.Contains(p.URL, "?") {
		sep = "&"
	}
	return p.URL + sep + "api_key=" + p.APIKey
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider.url", "wss://streamer.cryptocompare.com/v2")
	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.subscription_suffix", "")
	v.SetDefault("provider.frequency", "5")
	v.SetDefault("provider.aggregate", "CCCAGG")
	v.SetDefault("provider.max_subs_per_frame", 100)
	v.SetDefault("provider.frames_per_second", 10.0)
	v.SetDefault("provider.frame_burst", 5)
	v.SetDefault("provider.handshake_timeout", 10*time.Second)

	v.SetDefault("feed.reconnect_base_interval", 5*time.Second)
	v.SetDefault("feed.reconnect_max_interval", 30*time.Second)
	v.SetDefault("feed.heartbeat_interval", 60*time.Second)
	v.SetDefault("feed.heartbeat_grace", 10*time.Second)
	v.SetDefault("feed.pair_refresh_interval", 10*time.Minute)
	v.SetDefault("feed.flush_interval", 1*time.Second)
	v.SetDefault("feed.flush_timeout", 10*time.Second)
	v.SetDefault("feed.server_group", "")
	v.SetDefault("feed.symbol_aliases", map[string]string{"STARK": "STRK"})

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.dbname", "pricefeed")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.timezone", "UTC")
	v.SetDefault("postgres.max_open_conns", 10)
	v.SetDefault("postgres.max_idle_conns", 5)
	v.SetDefault("postgres.conn_max_lifetime", time.Hour)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 0)
	v.SetDefault("redis.prefix", "pricefeed")

	v.SetDefault("metrics.addr", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.environment", "dev")
	v.SetDefault("log.output_file", "")
}

// Load loads application configuration using Viper.
// It reads from config.yaml and overrides with environment variables.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config") // config.yaml
	v.SetConfigType("yaml")

	if dir := os.Getenv("PRICEFEED_CONFIG_DIR"); dir != "" {
		v.AddConfigPath(dir)
	}
	ex, _ := os.Executable()
	if strings.Contains(ex, "go-build") {
		pwd, _ := os.Getwd()
		v.AddConfigPath(filepath.Join(pwd, "config"))
		v.AddConfigPath(filepath.Join(pwd, "../../config"))
	} else {
		v.AddConfigPath(filepath.Join(filepath.Dir(ex), "../config"))
	}

	setDefaults(v)

	// Support environment variables with dot notation (e.g., FEED_SERVER_GROUP)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Log.Environment == "prod" {
		cfg.resolveSecrets()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the feed cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Provider.URL == "" {
		errs = append(errs, errors.New("provider.url is required"))
	}
	if c.Provider.MaxSubsPerFrame <= 0 {
		errs = append(errs, errors.New("provider.max_subs_per_frame must be positive"))
	}
	if c.Provider.FramesPerSecond <= 0 || c.Provider.FrameBurst <= 0 {
		errs = append(errs, errors.New("provider frame rate and burst must be positive"))
	}

	durations := map[string]time.Duration{
		"feed.reconnect_base_interval": c.Feed.ReconnectBaseInterval,
		"feed.reconnect_max_interval":  c.Feed.ReconnectMaxInterval,
		"feed.heartbeat_interval":      c.Feed.HeartbeatInterval,
		"feed.pair_refresh_interval":   c.Feed.PairRefreshInterval,
		"feed.flush_interval":          c.Feed.FlushInterval,
		"feed.flush_timeout":           c.Feed.FlushTimeout,
	}
	for name, d := range durations {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	if c.Feed.HeartbeatGrace < 0 {
		errs = append(errs, fmt.Errorf("feed.heartbeat_grace must not be negative, got %s", c.Feed.HeartbeatGrace))
	}
	if c.Feed.ReconnectMaxInterval < c.Feed.ReconnectBaseInterval {
		errs = append(errs, errors.New("feed.reconnect_max_interval must be >= feed.reconnect_base_interval"))
	}
	if c.Feed.ServerGroup == "" {
		errs = append(errs, errors.New("feed.server_group is required"))
	}

	return errors.Join(errs...)
}
