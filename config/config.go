package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the node configuration loaded from TOML.
type Config struct {
	ListenAddress  string `toml:"ListenAddress"`
	DataDir        string `toml:"DataDir"`
	LogDir         string `toml:"LogDir"`
	ChainNamespace string `toml:"ChainNamespace"`
	ChainID        string `toml:"ChainID"`

	// RPCAuthSecret signs the bearer tokens required on privileged RPC
	// methods. An empty secret disables those methods entirely.
	RPCAuthSecret string `toml:"RPCAuthSecret"`
	// RPCRateLimit is the sustained requests-per-second budget per node.
	RPCRateLimit float64 `toml:"RPCRateLimit"`
	// RPCRateBurst is the instantaneous burst allowance.
	RPCRateBurst int `toml:"RPCRateBurst"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		ListenAddress:  "127.0.0.1:8645",
		DataDir:        "./data",
		LogDir:         "./logs",
		ChainNamespace: "cosmos",
		ChainID:        "restakechain-1",
		RPCRateLimit:   50,
		RPCRateBurst:   100,
	}
}

// Load reads the configuration file, creating it with defaults when absent.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to disk.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}

// Validate rejects configurations the node cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		return fmt.Errorf("config: ListenAddress required")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: DataDir required")
	}
	if strings.TrimSpace(c.ChainID) == "" {
		return fmt.Errorf("config: ChainID required")
	}
	if c.RPCRateLimit < 0 {
		return fmt.Errorf("config: RPCRateLimit cannot be negative")
	}
	return nil
}
