package stableswap

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	ledgererr "tokenledger/core/errors"
	"tokenledger/core/state"
	"tokenledger/native/fees"
	"tokenledger/native/registry"
	"tokenledger/native/token"
)

// PoolAccount holds the non-reference side of every conversion plus the
// accrued fees. The address is derived, not key-controlled; funds only move
// through Convert.
var PoolAccount = common.BytesToAddress(ethcrypto.Keccak256([]byte("stableswap/pool"))[12:])

// Result reports a completed conversion.
type Result struct {
	Output *big.Int
	Fee    *big.Int
}

// Engine converts between a reference currency and allowed currencies of
// the same denomination at par, rescaled for decimals. The reference leg is
// minted or burned; the allowed leg is held by or released from the pool.
type Engine struct {
	st       *state.Manager
	ledger   *token.Ledger
	accounts *registry.Accounts
	fees     *fees.Engine
	auth     authorizer
}

type authorizer interface {
	RequireAuthority(caller common.Address, firm string) error
}

// NewEngine wires the conversion engine.
func NewEngine(st *state.Manager, ledger *token.Ledger, accounts *registry.Accounts, fee *fees.Engine, auth authorizer) *Engine {
	return &Engine{st: st, ledger: ledger, accounts: accounts, fees: fee, auth: auth}
}

// SetReferenceAsset designates the currency every conversion for its
// denomination routes through. Authority-gated; the currency must exist.
func (e *Engine) SetReferenceAsset(caller common.Address, firm, symbol string) error {
	if err := e.auth.RequireAuthority(caller, firm); err != nil {
		return err
	}
	if err := e.ledger.RequireAsset(symbol); err != nil {
		return err
	}
	tla, err := e.ledger.TLA(symbol)
	if err != nil {
		return err
	}
	if tla == "" {
		return fmt.Errorf("stableswap: %s has no denomination", symbol)
	}
	return e.st.SetString(state.SwapReferenceKey(tla), state.NormalizeSymbol(symbol))
}

// AllowAsset admits a currency to conversion against the reference of its
// denomination. Authority-gated; the currency must exist.
func (e *Engine) AllowAsset(caller common.Address, firm, symbol string) error {
	if err := e.auth.RequireAuthority(caller, firm); err != nil {
		return err
	}
	if err := e.ledger.RequireAsset(symbol); err != nil {
		return err
	}
	tla, err := e.ledger.TLA(symbol)
	if err != nil {
		return err
	}
	if tla == "" {
		return fmt.Errorf("stableswap: %s has no denomination", symbol)
	}
	if err := e.st.SetString(state.SwapTLAKey(symbol), tla); err != nil {
		return err
	}
	return e.st.SetBool(state.SwapAllowedKey(symbol), true)
}

// IsAllowed reports whether the currency may be converted.
func (e *Engine) IsAllowed(symbol string) (bool, error) {
	return e.st.GetBool(state.SwapAllowedKey(symbol))
}

// ReferenceFor returns the reference currency for the denomination.
func (e *Engine) ReferenceFor(tla string) (string, error) {
	return e.st.GetString(state.SwapReferenceKey(tla))
}

// Convert exchanges amount of the from currency into the to currency at
// par. Exactly one side must be the denomination's reference currency. The
// fee is charged in the from currency and accrues to the pool.
func (e *Engine) Convert(caller common.Address, from, to string, amount *big.Int) (Result, error) {
	from = state.NormalizeSymbol(from)
	to = state.NormalizeSymbol(to)
	if from == to {
		return Result{}, fmt.Errorf("stableswap: conversion legs must differ")
	}
	if amount == nil || amount.Sign() <= 0 {
		return Result{}, fmt.Errorf("stableswap: amount must be positive")
	}
	if err := e.ledger.RequireAsset(from); err != nil {
		return Result{}, err
	}
	if err := e.ledger.RequireAsset(to); err != nil {
		return Result{}, err
	}
	if err := e.accounts.RequireApproved(caller); err != nil {
		return Result{}, err
	}
	if err := e.accounts.RequireNotForbidden(caller); err != nil {
		return Result{}, err
	}

	reference, err := e.legsReference(from, to)
	if err != nil {
		return Result{}, err
	}

	fee, err := e.fees.Calculate(from, amount)
	if err != nil {
		return Result{}, err
	}
	if fee.Cmp(amount) >= 0 {
		return Result{}, fmt.Errorf("stableswap: fee %s consumes amount %s", fee, amount)
	}
	net := new(big.Int).Sub(amount, fee)

	output, err := e.rescale(net, from, to)
	if err != nil {
		return Result{}, err
	}

	if to == reference {
		// allowed leg parked in the pool, reference leg minted
		if err := e.ledger.Debit(from, caller, amount); err != nil {
			return Result{}, err
		}
		if err := e.ledger.Credit(from, PoolAccount, amount); err != nil {
			return Result{}, err
		}
		if err := e.ledger.Mint(to, caller, output); err != nil {
			return Result{}, err
		}
	} else {
		// reference leg burned, allowed leg released from the pool
		if err := e.ledger.Debit(from, caller, fee); err != nil {
			return Result{}, err
		}
		if err := e.ledger.Credit(from, PoolAccount, fee); err != nil {
			return Result{}, err
		}
		if err := e.ledger.Burn(from, caller, net); err != nil {
			return Result{}, err
		}
		if err := e.ledger.Debit(to, PoolAccount, output); err != nil {
			return Result{}, err
		}
		if err := e.ledger.Credit(to, caller, output); err != nil {
			return Result{}, err
		}
	}
	return Result{Output: output, Fee: fee}, nil
}

// legsReference validates both currencies are admitted under the same
// denomination and returns the reference symbol, which must be one leg.
func (e *Engine) legsReference(from, to string) (string, error) {
	fromTLA, err := e.ledger.TLA(from)
	if err != nil {
		return "", err
	}
	toTLA, err := e.ledger.TLA(to)
	if err != nil {
		return "", err
	}
	if fromTLA != toTLA {
		return "", fmt.Errorf("stableswap: denominations differ (%s vs %s)", fromTLA, toTLA)
	}
	reference, err := e.ReferenceFor(fromTLA)
	if err != nil {
		return "", err
	}
	if reference == "" {
		return "", fmt.Errorf("stableswap: no reference currency for %s", fromTLA)
	}
	if from != reference && to != reference {
		return "", fmt.Errorf("stableswap: one leg must be the reference currency %s", reference)
	}
	for _, symbol := range []string{from, to} {
		if symbol == reference {
			continue
		}
		allowed, err := e.IsAllowed(symbol)
		if err != nil {
			return "", err
		}
		if !allowed {
			return "", fmt.Errorf("stableswap: %s is not admitted for conversion: %w", symbol, ledgererr.ErrAssetNotFound)
		}
	}
	return reference, nil
}

// rescale converts a value between decimal scales, truncating toward zero
// when precision shrinks.
func (e *Engine) rescale(value *big.Int, from, to string) (*big.Int, error) {
	fromDec, err := e.ledger.Decimals(from)
	if err != nil {
		return nil, err
	}
	toDec, err := e.ledger.Decimals(to)
	if err != nil {
		return nil, err
	}
	out := new(big.Int).Set(value)
	switch {
	case toDec > fromDec:
		scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(toDec-fromDec)), nil)
		out.Mul(out, scale)
		if out.BitLen() > 256 {
			return nil, fmt.Errorf("stableswap: rescaled value out of range: %w", ledgererr.ErrArithmeticOverflow)
		}
	case fromDec > toDec:
		scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(fromDec-toDec)), nil)
		out.Quo(out, scale)
	}
	return out, nil
}
