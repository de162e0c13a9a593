package config

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Validate rejects configurations that cannot bootstrap a working ledger.
func (c *Config) Validate() error {
	if c.Genesis.Firm != "" || c.Genesis.Authority != "" {
		if strings.TrimSpace(c.Genesis.Firm) == "" {
			return fmt.Errorf("config: Genesis.Firm required when an authority is configured")
		}
		if !common.IsHexAddress(c.Genesis.Authority) {
			return fmt.Errorf("config: Genesis.Authority %q is not a valid address", c.Genesis.Authority)
		}
	}
	for _, v := range []int64{c.Fees.Bps, c.Fees.Min, c.Fees.Max, c.Fees.Flat} {
		if v < 0 {
			return fmt.Errorf("config: fee parameters must not be negative")
		}
	}
	if c.Fees.Account != "" && !common.IsHexAddress(c.Fees.Account) {
		return fmt.Errorf("config: Fees.Account %q is not a valid address", c.Fees.Account)
	}
	seen := map[string]struct{}{}
	for _, cur := range c.Currencies {
		symbol := strings.ToUpper(strings.TrimSpace(cur.Symbol))
		if symbol == "" {
			return fmt.Errorf("config: currency %q has no symbol", cur.Name)
		}
		if _, dup := seen[symbol]; dup {
			return fmt.Errorf("config: duplicate currency symbol %s", symbol)
		}
		seen[symbol] = struct{}{}
		if cur.Decimals < 0 || cur.Decimals > 77 {
			return fmt.Errorf("config: currency %s has invalid decimals %d", symbol, cur.Decimals)
		}
		if cur.FeeAccount != "" && !common.IsHexAddress(cur.FeeAccount) {
			return fmt.Errorf("config: currency %s fee account %q is not a valid address", symbol, cur.FeeAccount)
		}
	}
	return nil
}
