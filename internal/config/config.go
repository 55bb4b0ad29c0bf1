// Package config loads and validates the indexer's process configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/omeid/uconfig"
	"github.com/omeid/uconfig/plugins/file"
)

// Config is the full set of environment-driven settings for the indexer
// process and its companion read API.
type Config struct {
	DatabaseURL                string `env:"DATABASE_URL"`
	RPCURL                     string `env:"RPC_URL"`
	ChainID                    int64  `env:"CHAIN_ID"`
	StartBlock                 int64  `env:"START_BLOCK"`
	RaffleFactoryAddress       string `env:"RAFFLE_FACTORY_ADDRESS"`
	RandomnessProviderAddress  string `env:"RANDOMNESS_PROVIDER_ADDRESS" default:""`
	BindAddr                   string `env:"BIND_ADDR" default:"0.0.0.0:8080"`
	IndexerBatchSize           int64  `env:"INDEXER_BATCH_SIZE" default:"2000"`
	IndexerPollIntervalMS      int64  `env:"INDEXER_POLL_INTERVAL_MS" default:"3000"`
	ExplorerBaseURL            string `env:"EXPLORER_BASE_URL" default:""`
	RPCTimeoutSeconds          int64  `env:"RPC_TIMEOUT_SECONDS" default:"30"`
	MetricsAddr                string `env:"METRICS_ADDR" default:":9090"`
	ArtifactsDir               string `env:"ARTIFACTS_DIR" default:"./artifacts"`
	LogHuman                   bool   `env:"LOG_HUMAN" default:"false"`
	LogDebug                   bool   `env:"LOG_DEBUG" default:"false"`
}

// Load reads configuration from the environment (and, when configFilePath
// is non-empty, the JSON file at that path), and validates it. All values are read
// exactly once; nothing in this package is re-read during the process
// lifetime.
func Load(configFilePath string) (*Config, error) {
	c := &Config{}
	files := []uconfig.Plugin{}
	if configFilePath != "" {
		files = append(files, file.New(configFilePath))
	}
	conf, err := uconfig.Classic(c, files...)
	if err != nil {
		return nil, fmt.Errorf("parsing configuration: %s", err)
	}
	if err := conf.Parse(); err != nil {
		return nil, fmt.Errorf("parsing configuration: %s", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %s", err)
	}
	return c, nil
}

// Validate checks that all required fields are present and well formed.
// Failure here is always fatal: the process must never start with a
// configuration it cannot act on.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.RPCURL == "" {
		return fmt.Errorf("RPC_URL is required")
	}
	if c.ChainID <= 0 {
		return fmt.Errorf("CHAIN_ID must be a positive integer")
	}
	if c.StartBlock < 0 {
		return fmt.Errorf("START_BLOCK cannot be negative")
	}
	if !common.IsHexAddress(c.RaffleFactoryAddress) {
		return fmt.Errorf("RAFFLE_FACTORY_ADDRESS is not a valid address: %q", c.RaffleFactoryAddress)
	}
	if c.RandomnessProviderAddress != "" && !common.IsHexAddress(c.RandomnessProviderAddress) {
		return fmt.Errorf("RANDOMNESS_PROVIDER_ADDRESS is not a valid address: %q", c.RandomnessProviderAddress)
	}
	if c.IndexerBatchSize <= 0 {
		return fmt.Errorf("INDEXER_BATCH_SIZE must be positive")
	}
	if c.IndexerPollIntervalMS <= 0 {
		return fmt.Errorf("INDEXER_POLL_INTERVAL_MS must be positive")
	}
	if c.RPCTimeoutSeconds <= 0 {
		return fmt.Errorf("RPC_TIMEOUT_SECONDS must be positive")
	}
	return nil
}

// HasProvider reports whether a randomness provider address was configured.
// When false, the provider filter and its two event types are simply unused;
// this is not a startup failure.
func (c *Config) HasProvider() bool {
	return c.RandomnessProviderAddress != ""
}

// FactoryAddress returns the parsed factory contract address.
func (c *Config) FactoryAddress() common.Address {
	return common.HexToAddress(c.RaffleFactoryAddress)
}

// ProviderAddress returns the parsed provider contract address, or the zero
// address if none was configured.
func (c *Config) ProviderAddress() common.Address {
	return common.HexToAddress(c.RandomnessProviderAddress)
}

// PollInterval is the configured idle sleep between ticks.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.IndexerPollIntervalMS) * time.Millisecond
}

// RPCTimeout is the per-call timeout applied to every RPC operation.
func (c *Config) RPCTimeout() time.Duration {
	return time.Duration(c.RPCTimeoutSeconds) * time.Second
}

// RedactedDatabaseURL returns the database URL with credentials stripped,
// safe to place in a log line.
func (c *Config) RedactedDatabaseURL() string {
	return redactURL(c.DatabaseURL)
}

func redactURL(raw string) string {
	at := strings.LastIndex(raw, "@")
	scheme := strings.Index(raw, "://")
	if at == -1 || scheme == -1 || at < scheme {
		return raw
	}
	return raw[:scheme+3] + "***:***" + raw[at:]
}
