package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	SourceEtherscan = "etherscan"
	SourceRPC       = "rpc"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL          string
	WSURL           string
	DBDriver        string
	DBDSN           string
	LogSource       string
	EtherscanURL    string
	EtherscanAPIKey string
	PageSize        int
	ResultWindow    int
	HTTPTimeout     time.Duration
	PassTimeout     time.Duration
	MaxRetries      int
	RetryBackoff    time.Duration
	RPCBatchSize    uint64
	Concurrency     int
	Journal         string
	MetricsAddr     string
	Listen          string
	LogLevel        string
	SentryDSN       string
}

// Load merges .env files, config file, environment variables, and flags into Config.
// Real environment variables win over .env.local, which wins over .env.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	loadEnv(".env.local", ".env")

	v := viper.New()
	v.SetEnvPrefix("VAULTSCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("etherscan-api-key", "VAULTSCOPE_ETHERSCAN_API_KEY", "ETHERSCAN_API_KEY"); err != nil {
		return Config{}, fmt.Errorf("bind env: %w", err)
	}

	v.SetDefault("db-driver", DriverSQLite)
	v.SetDefault("db-dsn", "./data/vaultscope.db")
	v.SetDefault("log-source", SourceEtherscan)
	v.SetDefault("etherscan-url", "https://api.etherscan.io/api")
	v.SetDefault("page-size", 1000)
	v.SetDefault("result-window", 10000)
	v.SetDefault("http-timeout", 10*time.Second)
	v.SetDefault("pass-timeout", 5*time.Minute)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("rpc-batch-size", uint64(2000))
	v.SetDefault("concurrency", 4)
	v.SetDefault("metrics-addr", ":9100")
	v.SetDefault("listen", ":8080")
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		RPCURL:          v.GetString("rpc"),
		WSURL:           v.GetString("ws"),
		DBDriver:        strings.ToLower(v.GetString("db-driver")),
		DBDSN:           v.GetString("db-dsn"),
		LogSource:       strings.ToLower(v.GetString("log-source")),
		EtherscanURL:    v.GetString("etherscan-url"),
		EtherscanAPIKey: v.GetString("etherscan-api-key"),
		PageSize:        v.GetInt("page-size"),
		ResultWindow:    v.GetInt("result-window"),
		HTTPTimeout:     v.GetDuration("http-timeout"),
		PassTimeout:     v.GetDuration("pass-timeout"),
		MaxRetries:      v.GetInt("max-retries"),
		RetryBackoff:    v.GetDuration("retry-backoff"),
		RPCBatchSize:    v.GetUint64("rpc-batch-size"),
		Concurrency:     v.GetInt("concurrency"),
		Journal:         v.GetString("journal"),
		MetricsAddr:     v.GetString("metrics-addr"),
		Listen:          v.GetString("listen"),
		LogLevel:        v.GetString("log-level"),
		SentryDSN:       v.GetString("sentry-dsn"),
	}

	return cfg, nil
}

// ValidateStorage checks the repository settings.
func (c Config) ValidateStorage() error {
	switch c.DBDriver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unsupported db driver %q", c.DBDriver)
	}
	if c.DBDSN == "" {
		return fmt.Errorf("db dsn is required")
	}
	return nil
}

// ValidateLogSource checks the settings of the configured log source.
func (c Config) ValidateLogSource() error {
	switch c.LogSource {
	case SourceEtherscan:
		if c.EtherscanAPIKey == "" {
			return fmt.Errorf("ETHERSCAN_API_KEY not set")
		}
	case SourceRPC:
	default:
		return fmt.Errorf("unsupported log source %q", c.LogSource)
	}
	return nil
}

// ValidateRPC checks that a node endpoint is configured.
func (c Config) ValidateRPC() error {
	if c.RPCURL == "" && c.WSURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	return nil
}

// SubscriptionURL returns the endpoint used for push subscriptions.
func (c Config) SubscriptionURL() string {
	if c.WSURL != "" {
		return c.WSURL
	}
	return c.RPCURL
}

// loadEnv loads .env files in priority order. godotenv.Load never overrides a variable
// that is already set, so earlier files win.
func loadEnv(files ...string) {
	for _, file := range files {
		_ = godotenv.Load(file)
	}
}
