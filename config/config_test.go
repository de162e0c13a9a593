package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default file not written: %v", err)
	}
	if !cfg.PayerPaysFees || !cfg.AllowanceCoversFees {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Fees.Bps != 2 || cfg.Fees.Flat != 2 || cfg.Fees.Max != 100 {
		t.Fatalf("unexpected fee defaults: %+v", cfg.Fees)
	}
}

func TestLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.toml")
	src := `
DataDir = "/tmp/ledger"
PayerPaysFees = true

[Genesis]
Firm = "Token, Inc."
Authority = "0x8cb2cebb0070b231d4ba4d3b747acaebdfbbd142"

[Fees]
Bps = 2
Max = 100
Flat = 2
Account = "0x00000000000000000000000000000000000000fe"

[[Currencies]]
Name = "USD by token.io"
Symbol = "USDx"
TLA = "USD"
Version = "v0.1.3"
Decimals = 2
`
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Genesis.Firm != "Token, Inc." {
		t.Fatalf("firm %q", cfg.Genesis.Firm)
	}
	if len(cfg.Currencies) != 1 || cfg.Currencies[0].Symbol != "USDx" {
		t.Fatalf("currencies %+v", cfg.Currencies)
	}
}

func TestValidateRejectsBadAuthority(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.toml")
	src := `
[Genesis]
Firm = "Token, Inc."
Authority = "not-an-address"
`
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation failure")
	}
}

func TestValidateRejectsDuplicateSymbols(t *testing.T) {
	cfg := &Config{Currencies: []CurrencyConfig{
		{Symbol: "USDx"},
		{Symbol: "usdX"},
	}}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected duplicate rejection")
	}
}
