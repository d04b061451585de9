package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
)

type Config struct {
	NodeID   string         `mapstructure:"node_id"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Log      LogConfig      `mapstructure:"log"`
	Identity IdentityConfig `mapstructure:"identity"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Checks   ChecksConfig   `mapstructure:"checks"`
}

type HTTPConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	CORSOrigins  []string      `mapstructure:"cors_origins"`
	// RateLimit is requests per second per caller; zero disables limiting.
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

type StorageConfig struct {
	Driver     string `mapstructure:"driver"`
	DataDir    string `mapstructure:"data_dir"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type IdentityConfig struct {
	Header string          `mapstructure:"header"`
	Tokens []TokenIdentity `mapstructure:"tokens"`
}

// TokenIdentity maps a bearer token to the identity it authenticates.
type TokenIdentity struct {
	Token    string `mapstructure:"token"`
	Identity string `mapstructure:"identity"`
}

type LedgerConfig struct {
	// Faucet exposes the funding endpoint; meant for local networks only.
	Faucet bool `mapstructure:"faucet"`
}

type ChecksConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("node_id", "node-default")
	v.SetDefault("http.port", 8000)
	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 15*time.Second)
	v.SetDefault("http.idle_timeout", 60*time.Second)
	v.SetDefault("http.cors_origins", []string{"*"})
	v.SetDefault("http.rate_limit", 20.0)
	v.SetDefault("http.rate_burst", 40)
	v.SetDefault("storage.driver", "badger")
	v.SetDefault("storage.data_dir", "./data")
	v.SetDefault("storage.sqlite_path", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("identity.header", "X-Market-Identity")
	v.SetDefault("ledger.faucet", false)
	v.SetDefault("checks.timeout", 2*time.Second)
}

// Load reads configuration from configPath (or jobmarket.yaml in . or
// ./config when empty), then applies JOBMARKET_* environment overrides.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("jobmarket")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "read config file")
		}
	}

	v.SetEnvPrefix("JOBMARKET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return errors.Newf("invalid http.port %d", c.HTTP.Port)
	}
	switch c.Storage.Driver {
	case "memory", "badger", "sqlite":
	default:
		return errors.Newf("invalid storage.driver %q", c.Storage.Driver)
	}
	if c.HTTP.RateLimit < 0 {
		return errors.New("http.rate_limit must not be negative")
	}
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTP.Port)
}

// Tokens returns the configured bearer tokens keyed by token.
func (c *Config) Tokens() map[string]string {
	tokens := make(map[string]string, len(c.Identity.Tokens))
	for _, t := range c.Identity.Tokens {
		tokens[t.Token] = t.Identity
	}
	return tokens
}
