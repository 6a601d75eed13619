package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Ethereum   EthereumConfig   `mapstructure:"ethereum"`
	Withdrawal WithdrawalConfig `mapstructure:"withdrawal"`
	Watcher    WatcherConfig    `mapstructure:"watcher"`
	Tokens     TokensConfig     `mapstructure:"tokens"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Shutdown   ShutdownConfig   `mapstructure:"shutdown"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// EthereumConfig contains Ethereum client settings
type EthereumConfig struct {
	RPCURL              string `mapstructure:"rpc_url"`
	ChainID             int64  `mapstructure:"chain_id"`
	HotWalletPrivateKey string `mapstructure:"hot_wallet_private_key"`
	GasLimit            uint64 `mapstructure:"gas_limit"`
	MaxGasPrice         string `mapstructure:"max_gas_price"`
}

// WithdrawalConfig contains withdrawal pipeline settings
type WithdrawalConfig struct {
	MaxRetries      int           `mapstructure:"max_retries"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"`
	Workers         int           `mapstructure:"workers"`
	QueueSize       int           `mapstructure:"queue_size"`
	RateLimitBurst  int64         `mapstructure:"rate_limit_burst"`
	RateLimitRefill int64         `mapstructure:"rate_limit_refill"`
	RateLimitWindow time.Duration `mapstructure:"rate_limit_window"`
	SubmitTimeout   time.Duration `mapstructure:"submit_timeout"`
}

// WatcherConfig contains deposit watcher settings
type WatcherConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	PollingInterval time.Duration `mapstructure:"polling_interval"`
	PollTimeout     time.Duration `mapstructure:"poll_timeout"`
}

// TokensConfig points at the token registry seed file
type TokensConfig struct {
	SeedFile string `mapstructure:"seed_file"`
}

// MonitoringConfig contains monitoring and metrics settings
type MonitoringConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// ShutdownConfig contains graceful shutdown settings
type ShutdownConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "15s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "60s")
	viper.SetDefault("server.shutdown_timeout", "30s")

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.database", "exchange")

	// Ethereum defaults
	viper.SetDefault("ethereum.chain_id", 1)
	viper.SetDefault("ethereum.gas_limit", 21000)

	// Withdrawal defaults
	viper.SetDefault("withdrawal.max_retries", 3)
	viper.SetDefault("withdrawal.retry_delay", "1s")
	viper.SetDefault("withdrawal.workers", 4)
	viper.SetDefault("withdrawal.queue_size", 64)
	viper.SetDefault("withdrawal.rate_limit_burst", 10)
	viper.SetDefault("withdrawal.rate_limit_refill", 10)
	viper.SetDefault("withdrawal.rate_limit_window", "1m")
	viper.SetDefault("withdrawal.submit_timeout", "30s")

	// Watcher defaults
	viper.SetDefault("watcher.enabled", true)
	viper.SetDefault("watcher.polling_interval", "60s")
	viper.SetDefault("watcher.poll_timeout", "10s")

	// Tokens defaults
	viper.SetDefault("tokens.seed_file", "tokens.yaml")

	// Monitoring defaults
	viper.SetDefault("monitoring.enabled", true)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output_path", "stdout")

	// Shutdown defaults
	viper.SetDefault("shutdown.timeout", "30s")
}

func validate(config *Config) error {
	if config.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if config.Ethereum.RPCURL == "" {
		return fmt.Errorf("ethereum.rpc_url is required")
	}
	if config.Ethereum.HotWalletPrivateKey == "" {
		return fmt.Errorf("ethereum.hot_wallet_private_key is required")
	}
	if config.Withdrawal.MaxRetries < 1 {
		return fmt.Errorf("withdrawal.max_retries must be at least 1")
	}
	return nil
}
