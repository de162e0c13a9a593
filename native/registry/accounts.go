package registry

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	ledgererr "tokenledger/core/errors"
	"tokenledger/core/state"
	"tokenledger/native/authority"
)

// Accounts maintains per-account authorization policy: KYC approval, the
// forbidden flag, and spending limits. Frozen balances live in the asset
// ledger; this registry only carries the policy flags consulted by it.
type Accounts struct {
	st   *state.Manager
	auth *authority.Registry
}

// NewAccounts binds the registry to state and the authority registry used
// for privileged-caller checks.
func NewAccounts(st *state.Manager, auth *authority.Registry) *Accounts {
	return &Accounts{st: st, auth: auth}
}

// spendingRecord tracks the remaining spend for one (account, currency)
// pair. Era ties the counter to the approval that created it: a fresh
// ApproveKYC bumps the account's era, which invalidates every stale counter
// without having to enumerate currencies.
type spendingRecord struct {
	Era   uint64
	Value *big.Int
}

// ApproveKYC sets the account's approval flag and spending limit and resets
// the remaining spend to the full limit. The caller must be an authority of
// the firm. Re-approval with identical arguments is idempotent in effect:
// the final flags, limit and remaining spend are the same either way.
func (a *Accounts) ApproveKYC(caller, addr common.Address, approved bool, limit *big.Int, firm string, now time.Time) error {
	if err := a.auth.RequireAuthority(caller, firm); err != nil {
		return err
	}
	if limit == nil {
		limit = big.NewInt(0)
	}
	if limit.Sign() < 0 {
		return fmt.Errorf("registry: spending limit must not be negative")
	}
	if err := a.st.SetBool(state.KYCKey(addr), approved); err != nil {
		return err
	}
	if err := a.st.SetUint(state.SpendingLimitKey(addr), limit); err != nil {
		return err
	}
	era, err := a.st.GetUint(state.SpendingEraKey(addr))
	if err != nil {
		return err
	}
	if err := a.st.SetUint(state.SpendingEraKey(addr), new(big.Int).Add(era, big.NewInt(1))); err != nil {
		return err
	}
	// The reset timestamp is bookkeeping for external limit-window policy;
	// nothing in the core ticks it autonomously.
	return a.st.SetUint(state.LimitResetTimeKey(addr), big.NewInt(now.Unix()))
}

// Forbid toggles the forbidden flag. Forbidden accounts cannot act as the
// source or spender of transfer operations.
func (a *Accounts) Forbid(caller, addr common.Address, forbidden bool, firm string) error {
	if err := a.auth.RequireAuthority(caller, firm); err != nil {
		return err
	}
	return a.st.SetBool(state.ForbiddenKey(addr), forbidden)
}

// IsApproved reports the account's KYC approval flag.
func (a *Accounts) IsApproved(addr common.Address) (bool, error) {
	return a.st.GetBool(state.KYCKey(addr))
}

// IsForbidden reports the account's forbidden flag.
func (a *Accounts) IsForbidden(addr common.Address) (bool, error) {
	return a.st.GetBool(state.ForbiddenKey(addr))
}

// RequireApproved fails with NotApproved unless the account holds KYC
// approval.
func (a *Accounts) RequireApproved(addr common.Address) error {
	approved, err := a.IsApproved(addr)
	if err != nil {
		return err
	}
	if !approved {
		return fmt.Errorf("registry: account %s: %w", addr.Hex(), ledgererr.ErrNotApproved)
	}
	return nil
}

// RequireNotForbidden fails with AccountForbidden when the account carries
// the forbidden flag.
func (a *Accounts) RequireNotForbidden(addr common.Address) error {
	forbidden, err := a.IsForbidden(addr)
	if err != nil {
		return err
	}
	if forbidden {
		return fmt.Errorf("registry: account %s: %w", addr.Hex(), ledgererr.ErrAccountForbidden)
	}
	return nil
}

// SpendingLimit returns the account's configured limit.
func (a *Accounts) SpendingLimit(addr common.Address) (*big.Int, error) {
	return a.st.GetUint(state.SpendingLimitKey(addr))
}

func (a *Accounts) currentEra(addr common.Address) (uint64, error) {
	era, err := a.st.GetUint(state.SpendingEraKey(addr))
	if err != nil {
		return 0, err
	}
	return era.Uint64(), nil
}

// SpendingRemaining returns the remaining spend for the account and
// currency. A counter from a superseded approval era reads as the full
// limit.
func (a *Accounts) SpendingRemaining(addr common.Address, asset string) (*big.Int, error) {
	era, err := a.currentEra(addr)
	if err != nil {
		return nil, err
	}
	var record spendingRecord
	key := state.SpendingRemainingKey(addr, asset)
	ok, err := a.st.GetStruct(key, &record)
	if err != nil {
		return nil, err
	}
	if !ok || record.Era != era || record.Value == nil {
		return a.SpendingLimit(addr)
	}
	return new(big.Int).Set(record.Value), nil
}

// Spend decrements the account's remaining spend for the currency, failing
// with SpendingLimitExceeded when the amount does not fit. Remaining spend
// is restored only by a fresh ApproveKYC; there is no autonomous window
// timer in the core.
func (a *Accounts) Spend(addr common.Address, asset string, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("registry: spend amount must not be negative")
	}
	remaining, err := a.SpendingRemaining(addr, asset)
	if err != nil {
		return err
	}
	if amount.Cmp(remaining) > 0 {
		return fmt.Errorf("registry: spend %s of %s exceeds remaining %s: %w",
			amount, asset, remaining, ledgererr.ErrSpendingLimitExceeded)
	}
	era, err := a.currentEra(addr)
	if err != nil {
		return err
	}
	record := spendingRecord{Era: era, Value: new(big.Int).Sub(remaining, amount)}
	return a.st.SetStruct(state.SpendingRemainingKey(addr, asset), record)
}

// LastLimitReset returns the timestamp recorded by the latest approval.
func (a *Accounts) LastLimitReset(addr common.Address) (time.Time, error) {
	ts, err := a.st.GetUint(state.LimitResetTimeKey(addr))
	if err != nil {
		return time.Time{}, err
	}
	if ts.Sign() == 0 {
		return time.Time{}, nil
	}
	return time.Unix(ts.Int64(), 0).UTC(), nil
}
