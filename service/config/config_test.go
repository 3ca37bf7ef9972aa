package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/blockdew/service/stacks"
)

func TestLoad_Defaults(t *testing.T) {
	cleanupEnv()
	defer cleanupEnv()

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "", cfg.Mnemonic)
	assert.Equal(t, stacks.Testnet, cfg.Network)
	assert.Equal(t, 0, cfg.AccountIndex)
	assert.Equal(t, 1, cfg.AccountCount)
	assert.Equal(t, "blockdew", cfg.ContractName)
	assert.Equal(t, "contracts/blockdew.clar", cfg.ContractPath)
	assert.Equal(t, "", cfg.StacksAPIURL)
	assert.Equal(t, "https://explorer.hiro.so", cfg.ExplorerURL)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, ":8080", cfg.ServerAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 300.0, cfg.FeeThreshold)
	assert.Equal(t, 30*time.Second, cfg.FeePollInterval)
	assert.Empty(t, cfg.NATSURL)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, "localhost:7233", cfg.TemporalHost)
	assert.Equal(t, "default", cfg.TemporalNamespace)
	assert.Equal(t, "blockdew-fees", cfg.TemporalTaskQueue)
	assert.Equal(t, ":9091", cfg.MetricsAddr)
}

func TestLoad_FromEnvironment(t *testing.T) {
	cleanupEnv()
	os.Setenv("MNEMONIC", stacks.TestMnemonic)
	os.Setenv("STACKS_NETWORK", " MainNet ")
	os.Setenv("ACCOUNT_INDEX", "2")
	os.Setenv("ACCOUNT_COUNT", "3")
	os.Setenv("CONTRACT_NAME", "fee-oracle")
	os.Setenv("STACKS_API_URL", "http://localhost:3999/")
	os.Setenv("FEE_THRESHOLD", "125.5")
	os.Setenv("FEE_POLL_INTERVAL", "1m")
	os.Setenv("DATABASE_URL", "postgres://localhost/blockdew")
	os.Setenv("TEMPORAL_HOST", "temporal:7233")
	os.Setenv("TEMPORAL_TASK_QUEUE", "fees")
	defer cleanupEnv()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, stacks.TestMnemonic, cfg.Mnemonic)
	assert.Equal(t, stacks.Mainnet, cfg.Network)
	assert.Equal(t, 2, cfg.AccountIndex)
	assert.Equal(t, 3, cfg.AccountCount)
	assert.Equal(t, "fee-oracle", cfg.ContractName)
	assert.Equal(t, "http://localhost:3999", cfg.StacksAPIURL)
	assert.Equal(t, 125.5, cfg.FeeThreshold)
	assert.Equal(t, time.Minute, cfg.FeePollInterval)
	assert.Equal(t, "postgres://localhost/blockdew", cfg.DatabaseURL)
	assert.Equal(t, "temporal:7233", cfg.TemporalHost)
	assert.Equal(t, "fees", cfg.TemporalTaskQueue)
}

func TestLoad_CollectsAllErrors(t *testing.T) {
	cleanupEnv()
	os.Setenv("STACKS_NETWORK", "devnet")
	os.Setenv("ACCOUNT_INDEX", "first")
	os.Setenv("HTTP_TIMEOUT", "soon")
	os.Setenv("FEE_THRESHOLD", "high")
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "STACKS_NETWORK")
	assert.Contains(t, err.Error(), "ACCOUNT_INDEX: invalid integer")
	assert.Contains(t, err.Error(), "HTTP_TIMEOUT: invalid duration")
	assert.Contains(t, err.Error(), "FEE_THRESHOLD: invalid number")
}

func TestLoad_InvalidContractName(t *testing.T) {
	cleanupEnv()
	os.Setenv("CONTRACT_NAME", "1-starts-with-digit")
	defer cleanupEnv()

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ContractName")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Network:           stacks.Testnet,
			AccountCount:      1,
			ContractName:      "blockdew",
			HTTPTimeout:       30 * time.Second,
			FeeThreshold:      300,
			FeePollInterval:   30 * time.Second,
			TemporalHost:      "localhost:7233",
			TemporalTaskQueue: "blockdew-fees",
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "unknown network", mutate: func(c *Config) { c.Network = "regtest" }, wantErr: "Network"},
		{name: "negative index", mutate: func(c *Config) { c.AccountIndex = -1 }, wantErr: "AccountIndex"},
		{name: "zero count", mutate: func(c *Config) { c.AccountCount = 0 }, wantErr: "AccountCount"},
		{name: "zero timeout", mutate: func(c *Config) { c.HTTPTimeout = 0 }, wantErr: "HTTPTimeout"},
		{name: "negative threshold", mutate: func(c *Config) { c.FeeThreshold = -1 }, wantErr: "FeeThreshold"},
		{name: "fast polling", mutate: func(c *Config) { c.FeePollInterval = 100 * time.Millisecond }, wantErr: "FeePollInterval"},
		{name: "no temporal host", mutate: func(c *Config) { c.TemporalHost = "" }, wantErr: "TemporalHost"},
		{name: "no task queue", mutate: func(c *Config) { c.TemporalTaskQueue = "" }, wantErr: "TemporalTaskQueue"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAPIBaseURL(t *testing.T) {
	cfg := &Config{Network: stacks.Testnet}
	assert.Equal(t, "https://api.testnet.hiro.so", cfg.APIBaseURL(stacks.Testnet))
	assert.Equal(t, "https://api.hiro.so", cfg.APIBaseURL(stacks.Mainnet))

	cfg.StacksAPIURL = "http://localhost:3999"
	assert.Equal(t, "http://localhost:3999", cfg.APIBaseURL(stacks.Testnet))
	assert.Equal(t, "https://api.hiro.so", cfg.APIBaseURL(stacks.Mainnet), "override only applies to the configured network")
}

func TestMustLoad_Panics(t *testing.T) {
	cleanupEnv()
	os.Setenv("STACKS_NETWORK", "devnet")
	defer cleanupEnv()

	assert.Panics(t, func() {
		MustLoad()
	})
}

func TestMustLoad_Success(t *testing.T) {
	cleanupEnv()
	defer cleanupEnv()

	assert.NotPanics(t, func() {
		cfg := MustLoad()
		assert.NotNil(t, cfg)
	})
}

// cleanupEnv clears all environment variables used in tests
func cleanupEnv() {
	for _, key := range []string{
		"MNEMONIC",
		"STACKS_NETWORK",
		"ACCOUNT_INDEX",
		"ACCOUNT_COUNT",
		"CONTRACT_NAME",
		"CONTRACT_PATH",
		"STACKS_API_URL",
		"EXPLORER_URL",
		"HTTP_TIMEOUT",
		"SERVER_ADDR",
		"LOG_LEVEL",
		"FEE_THRESHOLD",
		"FEE_POLL_INTERVAL",
		"NATS_URL",
		"DATABASE_URL",
		"TEMPORAL_HOST",
		"TEMPORAL_NAMESPACE",
		"TEMPORAL_TASK_QUEUE",
		"METRICS_ADDR",
	} {
		os.Unsetenv(key)
	}
}
