package token

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	ledgererr "tokenledger/core/errors"
	"tokenledger/core/state"
	"tokenledger/native/authority"
	"tokenledger/native/registry"
)

// Params captures the registration parameters of a currency.
type Params struct {
	Name       string
	Symbol     string
	TLA        string
	Version    string
	Decimals   uint8
	FeeAccount common.Address
}

// Ledger maintains per-currency supply and per-account balances, exposing
// guarded credit/debit primitives. All amounts are fixed-point integers
// scaled by the currency's decimals; arithmetic is overflow-checked in the
// 256-bit domain and never wraps.
type Ledger struct {
	st       *state.Manager
	accounts *registry.Accounts
	auth     *authority.Registry
}

// NewLedger binds the ledger to state and the policy registries.
func NewLedger(st *state.Manager, accounts *registry.Accounts, auth *authority.Registry) *Ledger {
	return &Ledger{st: st, accounts: accounts, auth: auth}
}

// Register installs a currency's parameters and records it in the symbol
// index. The caller must be an authority of the firm. Re-registration
// overwrites the descriptive parameters but never touches balances.
func (l *Ledger) Register(caller common.Address, firm string, params Params) error {
	if err := l.auth.RequireAuthority(caller, firm); err != nil {
		return err
	}
	symbol := state.NormalizeSymbol(params.Symbol)
	if symbol == "" {
		return fmt.Errorf("token: symbol required")
	}
	if err := l.st.SetString(state.TokenSymbolKey(symbol), params.Symbol); err != nil {
		return err
	}
	if err := l.st.SetString(state.TokenNameKey(symbol), params.Name); err != nil {
		return err
	}
	if err := l.st.SetString(state.TokenTLAKey(symbol), params.TLA); err != nil {
		return err
	}
	if err := l.st.SetString(state.TokenVersionKey(symbol), params.Version); err != nil {
		return err
	}
	if err := l.st.SetUint(state.TokenDecimalsKey(symbol), big.NewInt(int64(params.Decimals))); err != nil {
		return err
	}
	if err := l.st.SetAddress(state.FeeAccountKey(symbol), params.FeeAccount); err != nil {
		return err
	}
	return l.st.Append(state.TokenIndexKey(), []byte(symbol))
}

// Exists reports whether the symbol names a registered currency.
func (l *Ledger) Exists(symbol string) (bool, error) {
	name, err := l.st.GetString(state.TokenSymbolKey(symbol))
	if err != nil {
		return false, err
	}
	return name != "", nil
}

// RequireAsset fails with AssetNotFound for unregistered symbols.
func (l *Ledger) RequireAsset(symbol string) error {
	ok, err := l.Exists(symbol)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("token: %q: %w", symbol, ledgererr.ErrAssetNotFound)
	}
	return nil
}

// Symbols returns the registered currency symbols in registration order.
func (l *Ledger) Symbols() ([]string, error) {
	raw, err := l.st.GetList(state.TokenIndexKey())
	if err != nil {
		return nil, err
	}
	symbols := make([]string, 0, len(raw))
	for _, entry := range raw {
		symbols = append(symbols, string(entry))
	}
	return symbols, nil
}

// Name returns the currency's display name.
func (l *Ledger) Name(symbol string) (string, error) {
	return l.st.GetString(state.TokenNameKey(symbol))
}

// TLA returns the currency's three-letter acronym.
func (l *Ledger) TLA(symbol string) (string, error) {
	return l.st.GetString(state.TokenTLAKey(symbol))
}

// Version returns the currency's registered version string.
func (l *Ledger) Version(symbol string) (string, error) {
	return l.st.GetString(state.TokenVersionKey(symbol))
}

// Decimals returns the currency's fixed-point scale.
func (l *Ledger) Decimals(symbol string) (uint8, error) {
	stored, err := l.st.GetUint(state.TokenDecimalsKey(symbol))
	if err != nil {
		return 0, err
	}
	if !stored.IsUint64() || stored.Uint64() > 255 {
		return 0, fmt.Errorf("token: stored decimals out of range for %q", symbol)
	}
	return uint8(stored.Uint64()), nil
}

// FeeAccount returns the currency's fee sink account.
func (l *Ledger) FeeAccount(symbol string) (common.Address, error) {
	return l.st.GetAddress(state.FeeAccountKey(symbol))
}

// TotalSupply returns the currency's total supply.
func (l *Ledger) TotalSupply(symbol string) (*big.Int, error) {
	return l.st.GetUint(state.TokenSupplyKey(symbol))
}

// BalanceOf returns the account's available balance.
func (l *Ledger) BalanceOf(symbol string, addr common.Address) (*big.Int, error) {
	return l.st.GetUint(state.BalanceKey(symbol, addr))
}

// FrozenOf returns the account's frozen balance.
func (l *Ledger) FrozenOf(symbol string, addr common.Address) (*big.Int, error) {
	return l.st.GetUint(state.FrozenKey(symbol, addr))
}

func validAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("token: amount must not be negative")
	}
	return nil
}

// checkedAdd returns a+b, failing with ArithmeticOverflow when the sum
// leaves the 256-bit domain.
func checkedAdd(a, b *big.Int) (*big.Int, error) {
	ua, overflow := uint256.FromBig(a)
	if overflow {
		return nil, fmt.Errorf("token: addend out of range: %w", ledgererr.ErrArithmeticOverflow)
	}
	ub, overflow := uint256.FromBig(b)
	if overflow {
		return nil, fmt.Errorf("token: addend out of range: %w", ledgererr.ErrArithmeticOverflow)
	}
	sum, carry := new(uint256.Int).AddOverflow(ua, ub)
	if carry {
		return nil, fmt.Errorf("token: sum out of range: %w", ledgererr.ErrArithmeticOverflow)
	}
	return sum.ToBig(), nil
}

// Credit adds the amount to the account's available balance.
func (l *Ledger) Credit(symbol string, addr common.Address, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	balance, err := l.BalanceOf(symbol, addr)
	if err != nil {
		return err
	}
	next, err := checkedAdd(balance, amount)
	if err != nil {
		return err
	}
	return l.st.SetUint(state.BalanceKey(symbol, addr), next)
}

// Debit removes the amount from the account's available balance, failing
// with InsufficientBalance when the balance does not cover it.
func (l *Ledger) Debit(symbol string, addr common.Address, amount *big.Int) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	balance, err := l.BalanceOf(symbol, addr)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("token: debit %s %s from %s (balance %s): %w",
			amount, symbol, addr.Hex(), balance, ledgererr.ErrInsufficientBalance)
	}
	return l.st.SetUint(state.BalanceKey(symbol, addr), new(big.Int).Sub(balance, amount))
}

func (l *Ledger) adjustSupply(symbol string, delta *big.Int, grow bool) error {
	supply, err := l.TotalSupply(symbol)
	if err != nil {
		return err
	}
	if grow {
		next, err := checkedAdd(supply, delta)
		if err != nil {
			return err
		}
		return l.st.SetUint(state.TokenSupplyKey(symbol), next)
	}
	if supply.Cmp(delta) < 0 {
		return fmt.Errorf("token: supply underflow for %q: %w", symbol, ledgererr.ErrInsufficientBalance)
	}
	return l.st.SetUint(state.TokenSupplyKey(symbol), new(big.Int).Sub(supply, delta))
}

// Mint credits the account and grows total supply by the same amount. The
// policy checks of Deposit do not apply; callers gate access themselves.
func (l *Ledger) Mint(symbol string, to common.Address, amount *big.Int) error {
	if err := l.Credit(symbol, to, amount); err != nil {
		return err
	}
	return l.adjustSupply(symbol, amount, true)
}

// Burn debits the account and shrinks total supply by the same amount.
func (l *Ledger) Burn(symbol string, from common.Address, amount *big.Int) error {
	if err := l.Debit(symbol, from, amount); err != nil {
		return err
	}
	return l.adjustSupply(symbol, amount, false)
}

// Deposit issues funds to a KYC-approved, non-forbidden account on behalf of
// a firm, growing total supply. The caller must be an authority of the firm.
func (l *Ledger) Deposit(caller common.Address, symbol string, to common.Address, amount *big.Int, firm string) error {
	if err := l.auth.RequireAuthority(caller, firm); err != nil {
		return err
	}
	if err := l.RequireAsset(symbol); err != nil {
		return err
	}
	if err := l.accounts.RequireApproved(to); err != nil {
		return err
	}
	if err := l.accounts.RequireNotForbidden(to); err != nil {
		return err
	}
	if err := validAmount(amount); err != nil {
		return err
	}
	return l.Mint(symbol, to, amount)
}

// Withdraw redeems funds from an account on behalf of a firm, shrinking
// total supply. The caller must be an authority of the firm.
func (l *Ledger) Withdraw(caller common.Address, symbol string, from common.Address, amount *big.Int, firm string) error {
	if err := l.auth.RequireAuthority(caller, firm); err != nil {
		return err
	}
	if err := l.RequireAsset(symbol); err != nil {
		return err
	}
	if err := validAmount(amount); err != nil {
		return err
	}
	return l.Burn(symbol, from, amount)
}
