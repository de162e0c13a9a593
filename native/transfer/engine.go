package transfer

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	ledgererr "tokenledger/core/errors"
	"tokenledger/core/state"
	"tokenledger/native/fees"
	"tokenledger/native/registry"
	"tokenledger/native/token"
)

// unlimited allowance sentinel, left untouched on spends when
// Config.UnlimitedApprove is enabled.
var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Config tunes transfer behaviour per deployment.
type Config struct {
	// AllowanceCoversFees charges delegated transfers amount plus fee
	// against the allowance when the payer carries the fee.
	AllowanceCoversFees bool
	// UnlimitedApprove switches Approve to the permissive ERC20 style:
	// any amount, overwrites allowed, and the max sentinel never drains.
	UnlimitedApprove bool
}

// DefaultConfig matches the production deployment: allowances cover fees
// and approvals follow the restricted style.
func DefaultConfig() Config {
	return Config{AllowanceCoversFees: true}
}

// Result reports the outcome of a completed transfer.
type Result struct {
	Amount *big.Int
	Fee    *big.Int
	Sink   common.Address
}

// Engine moves funds between approved accounts, applying fees and
// per-account spending limits. All mutating paths validate before writing;
// callers run each operation against a write buffer for atomicity.
type Engine struct {
	st       *state.Manager
	ledger   *token.Ledger
	accounts *registry.Accounts
	fees     *fees.Engine
	cfg      Config
}

// NewEngine wires the transfer engine to its collaborators.
func NewEngine(st *state.Manager, ledger *token.Ledger, accounts *registry.Accounts, fee *fees.Engine, cfg Config) *Engine {
	return &Engine{st: st, ledger: ledger, accounts: accounts, fees: fee, cfg: cfg}
}

func (e *Engine) checkParties(payer, receiver common.Address) error {
	if err := e.accounts.RequireApproved(payer); err != nil {
		return err
	}
	if err := e.accounts.RequireNotForbidden(payer); err != nil {
		return err
	}
	return e.accounts.RequireNotForbidden(receiver)
}

func (e *Engine) feeFor(symbol string, amount *big.Int) (*big.Int, common.Address, error) {
	fee, err := e.fees.Calculate(symbol, amount)
	if err != nil {
		return nil, common.Address{}, err
	}
	if fee.Sign() == 0 {
		return fee, common.Address{}, nil
	}
	sink, err := e.fees.SinkFor(symbol)
	if err != nil {
		return nil, common.Address{}, err
	}
	if sink == (common.Address{}) {
		sink, err = e.ledger.FeeAccount(symbol)
		if err != nil {
			return nil, common.Address{}, err
		}
	}
	if sink == (common.Address{}) {
		return nil, common.Address{}, fmt.Errorf("transfer: no fee account configured for %s", symbol)
	}
	return fee, sink, nil
}

// move executes the funded legs: payer debited, receiver credited, fee
// credited to the sink. payerPaysFees selects who carries the fee.
func (e *Engine) move(symbol string, payer, receiver common.Address, amount, fee *big.Int, sink common.Address, payerPaysFees bool) error {
	if payerPaysFees {
		total, err := checkedAdd(amount, fee)
		if err != nil {
			return err
		}
		if err := e.ledger.Debit(symbol, payer, total); err != nil {
			return err
		}
		if err := e.ledger.Credit(symbol, receiver, amount); err != nil {
			return err
		}
	} else {
		if fee.Cmp(amount) > 0 {
			return fmt.Errorf("transfer: fee %s exceeds amount %s: %w", fee, amount, ledgererr.ErrInsufficientBalance)
		}
		if err := e.ledger.Debit(symbol, payer, amount); err != nil {
			return err
		}
		net := new(big.Int).Sub(amount, fee)
		if err := e.ledger.Credit(symbol, receiver, net); err != nil {
			return err
		}
	}
	if fee.Sign() > 0 {
		if err := e.ledger.Credit(symbol, sink, fee); err != nil {
			return err
		}
	}
	return nil
}

// Transfer moves amount of the currency from the caller to the receiver.
// The caller must hold a KYC approval, neither party may be forbidden, and
// the caller's spending limit is charged the principal amount.
func (e *Engine) Transfer(from, to common.Address, symbol string, amount *big.Int, payerPaysFees bool) (Result, error) {
	if err := e.ledger.RequireAsset(symbol); err != nil {
		return Result{}, err
	}
	if amount == nil || amount.Sign() < 0 {
		return Result{}, fmt.Errorf("transfer: amount must not be negative")
	}
	if err := e.checkParties(from, to); err != nil {
		return Result{}, err
	}
	fee, sink, err := e.feeFor(symbol, amount)
	if err != nil {
		return Result{}, err
	}
	if err := e.accounts.Spend(from, symbol, amount); err != nil {
		return Result{}, err
	}
	if err := e.move(symbol, from, to, amount, fee, sink, payerPaysFees); err != nil {
		return Result{}, err
	}
	return Result{Amount: new(big.Int).Set(amount), Fee: fee, Sink: sink}, nil
}

// TransferFrom moves amount of the currency from the owner to the receiver
// on the spender's authority, drawing down the owner's allowance. When the
// owner carries the fee and AllowanceCoversFees is set, the allowance is
// charged amount plus fee.
func (e *Engine) TransferFrom(spender, owner, to common.Address, symbol string, amount *big.Int, payerPaysFees bool) (Result, error) {
	if err := e.ledger.RequireAsset(symbol); err != nil {
		return Result{}, err
	}
	if amount == nil || amount.Sign() < 0 {
		return Result{}, fmt.Errorf("transfer: amount must not be negative")
	}
	if err := e.accounts.RequireNotForbidden(spender); err != nil {
		return Result{}, err
	}
	if err := e.checkParties(owner, to); err != nil {
		return Result{}, err
	}
	fee, sink, err := e.feeFor(symbol, amount)
	if err != nil {
		return Result{}, err
	}
	required := new(big.Int).Set(amount)
	if payerPaysFees && e.cfg.AllowanceCoversFees {
		if required, err = checkedAdd(amount, fee); err != nil {
			return Result{}, err
		}
	}
	if err := e.drawAllowance(symbol, owner, spender, required); err != nil {
		return Result{}, err
	}
	if err := e.accounts.Spend(owner, symbol, amount); err != nil {
		return Result{}, err
	}
	if err := e.move(symbol, owner, to, amount, fee, sink, payerPaysFees); err != nil {
		return Result{}, err
	}
	return Result{Amount: new(big.Int).Set(amount), Fee: fee, Sink: sink}, nil
}

func (e *Engine) drawAllowance(symbol string, owner, spender common.Address, required *big.Int) error {
	allowance, err := e.Allowance(symbol, owner, spender)
	if err != nil {
		return err
	}
	if allowance.Cmp(required) < 0 {
		return fmt.Errorf("transfer: allowance %s below required %s: %w", allowance, required, ledgererr.ErrInsufficientAllowance)
	}
	if e.cfg.UnlimitedApprove && allowance.Cmp(maxUint256) == 0 {
		return nil
	}
	remaining := new(big.Int).Sub(allowance, required)
	return e.st.SetUint(state.AllowanceKey(symbol, owner, spender), remaining)
}

// Approve grants the spender an allowance over the owner's funds. In the
// restricted style the amount must not exceed the owner's balance and a
// live allowance must be reset to zero before it can change.
func (e *Engine) Approve(owner, spender common.Address, symbol string, amount *big.Int) error {
	if err := e.ledger.RequireAsset(symbol); err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("transfer: amount must not be negative")
	}
	if err := e.accounts.RequireApproved(owner); err != nil {
		return err
	}
	if err := e.accounts.RequireNotForbidden(owner); err != nil {
		return err
	}
	if err := e.accounts.RequireNotForbidden(spender); err != nil {
		return err
	}
	if !e.cfg.UnlimitedApprove {
		balance, err := e.ledger.BalanceOf(symbol, owner)
		if err != nil {
			return err
		}
		if amount.Cmp(balance) > 0 {
			return fmt.Errorf("transfer: approval %s exceeds balance %s: %w", amount, balance, ledgererr.ErrInsufficientBalance)
		}
		current, err := e.Allowance(symbol, owner, spender)
		if err != nil {
			return err
		}
		if current.Sign() != 0 && amount.Sign() != 0 {
			return fmt.Errorf("transfer: allowance for %s must be reset to zero before changing", spender)
		}
	}
	return e.st.SetUint(state.AllowanceKey(symbol, owner, spender), amount)
}

// Allowance reports the remaining delegated budget for the spender.
func (e *Engine) Allowance(symbol string, owner, spender common.Address) (*big.Int, error) {
	return e.st.GetUint(state.AllowanceKey(symbol, owner, spender))
}

func checkedAdd(a, b *big.Int) (*big.Int, error) {
	sum := new(big.Int).Add(a, b)
	if sum.BitLen() > 256 {
		return nil, fmt.Errorf("transfer: amount out of range: %w", ledgererr.ErrArithmeticOverflow)
	}
	return sum, nil
}
