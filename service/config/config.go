package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/brojonat/blockdew/service/stacks"
)

// Config holds all application configuration loaded from environment variables.
// Load collects every problem it finds instead of stopping at the first one.
type Config struct {
	// Deployment configuration
	Mnemonic     string
	Network      stacks.Network
	AccountIndex int
	AccountCount int
	ContractName string
	ContractPath string

	// Stacks API configuration
	StacksAPIURL string // optional override for the selected network
	ExplorerURL  string
	HTTPTimeout  time.Duration

	// Server configuration
	ServerAddr string
	LogLevel   string

	// Fee dashboard configuration
	FeeThreshold    float64
	FeePollInterval time.Duration

	// Optional sinks; empty disables them
	NATSURL     string
	DatabaseURL string

	// Temporal configuration for scheduled fee recording
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string
	MetricsAddr       string
}

// Load reads configuration from environment variables and validates it.
// MNEMONIC is not required here; only the deploy path needs it.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	cfg.Mnemonic = os.Getenv("MNEMONIC")

	network, err := stacks.ParseNetwork(getEnvOrDefault("STACKS_NETWORK", string(stacks.Testnet)))
	if err != nil {
		errs = append(errs, fmt.Errorf("STACKS_NETWORK: %w", err))
	} else {
		cfg.Network = network
	}

	if cfg.AccountIndex, err = parseInt("ACCOUNT_INDEX", 0); err != nil {
		errs = append(errs, err)
	}
	if cfg.AccountCount, err = parseInt("ACCOUNT_COUNT", 1); err != nil {
		errs = append(errs, err)
	}

	cfg.ContractName = getEnvOrDefault("CONTRACT_NAME", "blockdew")
	cfg.ContractPath = getEnvOrDefault("CONTRACT_PATH", "contracts/blockdew.clar")

	cfg.StacksAPIURL = strings.TrimRight(os.Getenv("STACKS_API_URL"), "/")
	cfg.ExplorerURL = getEnvOrDefault("EXPLORER_URL", stacks.DefaultExplorerURL)

	if cfg.HTTPTimeout, err = parseDuration("HTTP_TIMEOUT", "30s"); err != nil {
		errs = append(errs, err)
	}

	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	if cfg.FeeThreshold, err = parseFloat("FEE_THRESHOLD", 300); err != nil {
		errs = append(errs, err)
	}
	if cfg.FeePollInterval, err = parseDuration("FEE_POLL_INTERVAL", "30s"); err != nil {
		errs = append(errs, err)
	}

	cfg.NATSURL = os.Getenv("NATS_URL")
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	cfg.TemporalHost = getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", "blockdew-fees")
	cfg.MetricsAddr = getEnvOrDefault("METRICS_ADDR", ":9091")

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if _, err := stacks.ParseNetwork(string(c.Network)); err != nil {
		errs = append(errs, fmt.Errorf("Network: %w", err))
	}

	if c.AccountIndex < 0 {
		errs = append(errs, fmt.Errorf("AccountIndex must not be negative"))
	}

	if c.AccountCount < 1 {
		errs = append(errs, fmt.Errorf("AccountCount must be at least 1"))
	}

	if err := stacks.ValidateContractName(c.ContractName); err != nil {
		errs = append(errs, fmt.Errorf("ContractName: %w", err))
	}

	if c.HTTPTimeout <= 0 {
		errs = append(errs, fmt.Errorf("HTTPTimeout must be positive"))
	}

	if c.FeeThreshold < 0 {
		errs = append(errs, fmt.Errorf("FeeThreshold must not be negative"))
	}

	if c.FeePollInterval < time.Second {
		errs = append(errs, fmt.Errorf("FeePollInterval must be at least 1 second"))
	}

	if c.TemporalHost == "" {
		errs = append(errs, fmt.Errorf("TemporalHost is required"))
	}

	if c.TemporalTaskQueue == "" {
		errs = append(errs, fmt.Errorf("TemporalTaskQueue is required"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// APIBaseURL returns the API root for network. STACKS_API_URL only
// overrides the configured network; the other one keeps its public default.
func (c *Config) APIBaseURL(network stacks.Network) string {
	if c.StacksAPIURL != "" && network == c.Network {
		return c.StacksAPIURL
	}
	return network.APIBaseURL()
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}

func parseFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q: %w", key, value, err)
	}
	return result, nil
}
