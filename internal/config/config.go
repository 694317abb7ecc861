// Package config provides the wallet daemon's YAML configuration with
// defaults created on first run.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/quackstro/openclaw-doge/internal/chain"
	"github.com/quackstro/openclaw-doge/internal/policy"
)

// Config holds all configuration for the wallet daemon.
type Config struct {
	// NetworkType is mainnet or testnet.
	NetworkType chain.Network `yaml:"network_type"`

	// Storage settings.
	Storage StorageConfig `yaml:"storage"`

	// Provider is the chain-data provider.
	Provider ProviderConfig `yaml:"provider"`

	// Relay tunes the P2P broadcast engine.
	Relay RelayConfig `yaml:"relay"`

	// Policy is the spend classification table. Empty uses the defaults.
	Policy []policy.Tier `yaml:"policy,omitempty"`

	// Alerts configures balance notifications.
	Alerts AlertsConfig `yaml:"alerts"`

	// Logging settings.
	Logging LoggingConfig `yaml:"logging"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	// DataDir is the directory for all data files.
	DataDir string `yaml:"data_dir"`

	// HTLCStore selects the HTLC record store backend: "file" or "sqlite".
	HTLCStore string `yaml:"htlc_store"`
}

// ProviderConfig holds chain-data provider settings.
type ProviderConfig struct {
	// MainnetURL and TestnetURL are Blockbook API base URLs.
	MainnetURL string `yaml:"mainnet"`
	TestnetURL string `yaml:"testnet"`

	// Timeout for provider HTTP calls, in seconds.
	TimeoutSeconds int `yaml:"timeout,omitempty"`
}

// RelayConfig holds P2P relay settings.
type RelayConfig struct {
	// FanOut is the maximum number of peers per broadcast.
	FanOut int `yaml:"fan_out"`

	// FeePerKB in koinu; 0 uses the 1 DOGE/kB default.
	FeePerKB uint64 `yaml:"fee_per_kb,omitempty"`
}

// AlertsConfig holds balance notification settings.
type AlertsConfig struct {
	// ThresholdKoinu is the low-balance alert threshold.
	ThresholdKoinu uint64 `yaml:"threshold_koinu"`

	// IntervalHours rate-limits repeat notifications.
	IntervalHours int `yaml:"interval_hours"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `yaml:"level"`
}

// IsTestnet returns true if running on testnet.
func (c *Config) IsTestnet() bool {
	return c.NetworkType == chain.Testnet
}

// ProviderURL returns the provider base URL for the configured network.
func (c *Config) ProviderURL() string {
	if c.IsTestnet() {
		return c.Provider.TestnetURL
	}
	return c.Provider.MainnetURL
}

// ProviderTimeout returns the provider timeout as a duration.
func (c *Config) ProviderTimeout() time.Duration {
	if c.Provider.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Provider.TimeoutSeconds) * time.Second
}

// PolicyTiers returns the configured tier table, or the defaults.
func (c *Config) PolicyTiers() []policy.Tier {
	if len(c.Policy) == 0 {
		return policy.DefaultTiers()
	}
	return c.Policy
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		NetworkType: chain.Mainnet,
		Storage: StorageConfig{
			DataDir:   "~/.openclaw",
			HTLCStore: "file",
		},
		Provider: ProviderConfig{
			MainnetURL: "https://doge1.trezor.io/api/v2",
			TestnetURL: "https://doge1.trezor.io/api/v2", // no public testnet instance
		},
		Relay: RelayConfig{
			FanOut: 8,
		},
		Alerts: AlertsConfig{
			ThresholdKoinu: 10 * 100_000_000, // 10 DOGE
			IntervalHours:  6,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// ConfigFileName is the default config file name.
const ConfigFileName = "config.yaml"

// LoadConfig loads configuration from a YAML file under dataDir. If the
// file doesn't exist, it creates one with default values.
func LoadConfig(dataDir string) (*Config, error) {
	expandedDir := ExpandPath(dataDir)
	configPath := filepath.Join(expandedDir, ConfigFileName)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.Storage.DataDir = dataDir

		if err := cfg.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# OpenClaw Doge Wallet Configuration\n# Generated automatically on first run\n\n")
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ConfigPath returns the full path to the config file for a data directory.
func ConfigPath(dataDir string) string {
	return filepath.Join(ExpandPath(dataDir), ConfigFileName)
}

// ExpandPath expands ~ to the home directory.
func ExpandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
