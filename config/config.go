package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	DataDir     string `toml:"DataDir"`
	ServiceName string `toml:"ServiceName"`
	Environment string `toml:"Environment"`

	// PayerPaysFees selects the default fee bearer for transfers.
	PayerPaysFees bool `toml:"PayerPaysFees"`
	// AllowanceCoversFees charges delegated transfers amount plus fee
	// against the allowance.
	AllowanceCoversFees bool `toml:"AllowanceCoversFees"`
	// UnlimitedApprove switches approvals to the permissive ERC20 style.
	UnlimitedApprove bool `toml:"UnlimitedApprove"`

	Genesis    GenesisConfig    `toml:"Genesis"`
	Fees       FeeConfig        `toml:"Fees"`
	Currencies []CurrencyConfig `toml:"Currencies"`
}

// GenesisConfig seeds the first firm and authority on an empty ledger.
type GenesisConfig struct {
	Firm      string `toml:"Firm"`
	Authority string `toml:"Authority"`
}

// FeeConfig is the global fee schedule installed at bootstrap.
type FeeConfig struct {
	Bps     int64  `toml:"Bps"`
	Min     int64  `toml:"Min"`
	Max     int64  `toml:"Max"`
	Flat    int64  `toml:"Flat"`
	Account string `toml:"Account"`
}

// CurrencyConfig describes a currency registered at bootstrap.
type CurrencyConfig struct {
	Name       string `toml:"Name"`
	Symbol     string `toml:"Symbol"`
	TLA        string `toml:"TLA"`
	Version    string `toml:"Version"`
	Decimals   int    `toml:"Decimals"`
	FeeAccount string `toml:"FeeAccount"`
}

// Load reads the configuration from the given path, creating a default
// file when none exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./ledger-data"
	}
	if strings.TrimSpace(cfg.ServiceName) == "" {
		cfg.ServiceName = "ledgerd"
	}
	if cfg.Currencies == nil {
		cfg.Currencies = []CurrencyConfig{}
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		DataDir:             "./ledger-data",
		ServiceName:         "ledgerd",
		Environment:         "local",
		PayerPaysFees:       true,
		AllowanceCoversFees: true,
		Fees: FeeConfig{
			Bps:  2,
			Min:  0,
			Max:  100,
			Flat: 2,
		},
		Currencies: []CurrencyConfig{},
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
