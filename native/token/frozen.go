package token

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	ledgererr "tokenledger/core/errors"
	"tokenledger/core/state"
)

// Freeze moves the account's entire available balance of every registered
// currency into its frozen ledger. This is a forced transfer, not a flag:
// frozen funds stay attributed to the account and keep counting toward each
// currency's total supply.
func (l *Ledger) Freeze(addr common.Address) (*big.Int, error) {
	symbols, err := l.Symbols()
	if err != nil {
		return nil, err
	}
	moved := big.NewInt(0)
	for _, symbol := range symbols {
		balance, err := l.BalanceOf(symbol, addr)
		if err != nil {
			return nil, err
		}
		if balance.Sign() == 0 {
			continue
		}
		if err := l.Debit(symbol, addr, balance); err != nil {
			return nil, err
		}
		frozen, err := l.FrozenOf(symbol, addr)
		if err != nil {
			return nil, err
		}
		next, err := checkedAdd(frozen, balance)
		if err != nil {
			return nil, err
		}
		if err := l.st.SetUint(state.FrozenKey(symbol, addr), next); err != nil {
			return nil, err
		}
		moved.Add(moved, balance)
	}
	return moved, nil
}

// Unfreeze restores all frozen balances to the account's available ledger.
// It fails with NoFrozenFunds when nothing is frozen.
func (l *Ledger) Unfreeze(addr common.Address) (*big.Int, error) {
	symbols, err := l.Symbols()
	if err != nil {
		return nil, err
	}
	moved := big.NewInt(0)
	for _, symbol := range symbols {
		frozen, err := l.FrozenOf(symbol, addr)
		if err != nil {
			return nil, err
		}
		if frozen.Sign() == 0 {
			continue
		}
		if err := l.st.Delete(state.FrozenKey(symbol, addr)); err != nil {
			return nil, err
		}
		if err := l.Credit(symbol, addr, frozen); err != nil {
			return nil, err
		}
		moved.Add(moved, frozen)
	}
	if moved.Sign() == 0 {
		return nil, fmt.Errorf("token: unfreeze %s: %w", addr.Hex(), ledgererr.ErrNoFrozenFunds)
	}
	return moved, nil
}
