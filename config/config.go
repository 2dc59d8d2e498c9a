package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	APIKey         string
	BaseURL        string
	StoragePath    string
	Store          string
	Redis          RedisConfig
	PollInterval   time.Duration
	QuoteDebounce  time.Duration
	RequestTimeout time.Duration
	RateLimit      float64
	LogLevel       string
	LogFile        string
	Networks       map[int]EVMNetwork
}

// RedisConfig configures the optional redis order store
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// EVMNetwork holds wallet settings for one chain id
type EVMNetwork struct {
	RPCUrl     string  `mapstructure:"rpc_url"`
	PrivateKey string  `mapstructure:"private_key"`
	GasLimit   *uint64 `mapstructure:"gas_limit"`
	GasPrice   *int64  `mapstructure:"gas_price"`
}

const (
	StoreFile  = "file"
	StoreRedis = "redis"
)

// Load reads configuration from environment variables and the optional
// ~/.xswap.yaml file
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom is Load with an explicit config file; an empty path searches
// $HOME and the working directory
func LoadFrom(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(".xswap")
		v.SetConfigType("yaml")
		v.AddConfigPath("$HOME")
		v.AddConfigPath(".")
	}

	// Set default values
	v.SetDefault("base_url", "https://api.1inch.dev/fusion-plus")
	v.SetDefault("store", StoreFile)
	v.SetDefault("poll_interval", 5*time.Second)
	v.SetDefault("quote_debounce", 500*time.Millisecond)
	v.SetDefault("request_timeout", 30*time.Second)
	v.SetDefault("rate_limit", 1.0)
	v.SetDefault("log_level", "info")
	v.SetDefault("redis.addr", "localhost:6379")

	// Read from environment variables
	v.SetEnvPrefix("XSWAP")
	v.AutomaticEnv()

	// Config file is optional unless given explicitly
	if err := v.ReadInConfig(); err != nil && path != "" {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{
		APIKey:         v.GetString("api_key"),
		BaseURL:        v.GetString("base_url"),
		StoragePath:    v.GetString("storage_path"),
		Store:          v.GetString("store"),
		PollInterval:   v.GetDuration("poll_interval"),
		QuoteDebounce:  v.GetDuration("quote_debounce"),
		RequestTimeout: v.GetDuration("request_timeout"),
		RateLimit:      v.GetFloat64("rate_limit"),
		LogLevel:       v.GetString("log_level"),
		LogFile:        v.GetString("log_file"),
		Networks:       make(map[int]EVMNetwork),
	}

	if err := v.UnmarshalKey("redis", &cfg.Redis); err != nil {
		return nil, fmt.Errorf("invalid redis config: %w", err)
	}

	var networks map[string]EVMNetwork
	if err := v.UnmarshalKey("networks", &networks); err != nil {
		return nil, fmt.Errorf("invalid networks config: %w", err)
	}
	for key, network := range networks {
		chainID, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("network key %q is not a chain id", key)
		}
		cfg.Networks[chainID] = network
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks required fields and ranges
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("API key not found. Please set XSWAP_API_KEY environment variable or create a .xswap.yaml config file")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("base_url must not be empty")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	if c.QuoteDebounce < 0 {
		return fmt.Errorf("quote_debounce must not be negative")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}
	if c.RateLimit <= 0 {
		return fmt.Errorf("rate_limit must be positive")
	}
	if c.Store != StoreFile && c.Store != StoreRedis {
		return fmt.Errorf("store must be %q or %q", StoreFile, StoreRedis)
	}
	return nil
}

// Network returns the wallet settings for a chain
func (c *Config) Network(chainID int) (EVMNetwork, error) {
	network, ok := c.Networks[chainID]
	if !ok {
		return EVMNetwork{}, fmt.Errorf("network %d not configured", chainID)
	}
	if network.RPCUrl == "" {
		return EVMNetwork{}, fmt.Errorf("RPC URL not configured for network %d", chainID)
	}
	if network.PrivateKey == "" {
		return EVMNetwork{}, fmt.Errorf("private key not configured for network %d", chainID)
	}
	return network, nil
}
