package core

import (
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"tokenledger/core/events"
	"tokenledger/core/state"
	"tokenledger/core/types"
	"tokenledger/native/authority"
	"tokenledger/native/fees"
	"tokenledger/native/fx"
	"tokenledger/native/registry"
	"tokenledger/native/stableswap"
	"tokenledger/native/token"
	"tokenledger/native/transfer"
	"tokenledger/observability/metrics"
	"tokenledger/storage"
)

// writerName is the capability under which the engine mutates state.
const writerName = "ledger"

// Config tunes engine-wide behaviour.
type Config struct {
	// Transfer carries the allowance and approval policy.
	Transfer transfer.Config
	// PayerPaysFees selects the default fee bearer for transfers.
	PayerPaysFees bool
}

// DefaultConfig matches the production deployment.
func DefaultConfig() Config {
	return Config{Transfer: transfer.DefaultConfig(), PayerPaysFees: true}
}

// Engine is the serialized front door to the ledger. Every mutating
// operation runs against a write buffer under a single lock and commits
// only on success, so a failed operation leaves no partial state. Each
// call returns a receipt carrying the events the operation produced.
type Engine struct {
	mu      sync.Mutex
	db      storage.Database
	store   *state.Store
	cfg     Config
	log     *slog.Logger
	metrics *metrics.LedgerMetrics
	now     func() time.Time
}

// NewEngine opens the ledger over the database. The logger may be nil, in
// which case the process default is used.
func NewEngine(db storage.Database, cfg Config, log *slog.Logger) (*Engine, error) {
	if log == nil {
		log = slog.Default()
	}
	store := state.NewStore(db)
	store.AllowWriter(writerName)
	engine := &Engine{
		db:      db,
		store:   store,
		cfg:     cfg,
		log:     log,
		metrics: metrics.Ledger(),
		now:     time.Now,
	}
	if err := engine.initSchema(); err != nil {
		return nil, err
	}
	return engine, nil
}

func (e *Engine) initSchema() error {
	st := e.store.Access(writerName)
	version, err := st.GetSchemaVersion()
	if err != nil {
		return err
	}
	if version == 0 {
		return st.SetSchemaVersion(state.SchemaVersion)
	}
	if version != state.SchemaVersion {
		return st.MigrateState(version, state.SchemaVersion)
	}
	return nil
}

// WithClock overrides the engine clock. Tests use this to pin expiration
// and limit-reset timestamps.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	if now != nil {
		e.now = now
	}
	return e
}

// modules binds every native engine to one state view for a single
// operation.
type modules struct {
	st       *state.Manager
	auth     *authority.Registry
	accounts *registry.Accounts
	ledger   *token.Ledger
	fees     *fees.Engine
	transfer *transfer.Engine
	fx       *fx.Engine
	stable   *stableswap.Engine
}

func (e *Engine) bind(db storage.Database) *modules {
	st := e.store.Access(writerName).WithDB(db)
	auth := authority.NewRegistry(st)
	accounts := registry.NewAccounts(st, auth)
	ledger := token.NewLedger(st, accounts, auth)
	feeEngine := fees.NewEngine(st, auth)
	return &modules{
		st:       st,
		auth:     auth,
		accounts: accounts,
		ledger:   ledger,
		fees:     feeEngine,
		transfer: transfer.NewEngine(st, ledger, accounts, feeEngine, e.cfg.Transfer),
		fx:       fx.NewEngine(st, ledger, accounts, e.now),
		stable:   stableswap.NewEngine(st, ledger, accounts, feeEngine, auth),
	}
}

// run executes fn against a write buffer and commits only on success.
func (e *Engine) run(op string, fn func(m *modules, emit events.Emitter) error) (*types.Receipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	receipt := types.NewReceipt(op)
	overlay := storage.NewOverlay(e.db)
	collector := &events.Collector{}

	err := fn(e.bind(overlay), collector)
	if err == nil {
		err = overlay.Commit()
	}
	e.metrics.ObserveOperation(op, err)
	if err != nil {
		overlay.Discard()
		receipt.Error = err.Error()
		e.log.Warn("operation rejected", "op", op, "ref", receipt.Ref, "error", err)
		return receipt, err
	}
	receipt.Success = true
	receipt.Events = collector.Drain()
	e.log.Info("operation committed", "op", op, "ref", receipt.Ref)
	return receipt, nil
}

// view runs a read-only function against committed state.
func (e *Engine) view(fn func(m *modules) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.bind(e.db))
}

// Bootstrap seeds the first firm and authority on an empty ledger.
func (e *Engine) Bootstrap(firm string, addr common.Address) (*types.Receipt, error) {
	return e.run("bootstrap", func(m *modules, emit events.Emitter) error {
		if err := m.auth.Bootstrap(firm, addr); err != nil {
			return err
		}
		emit.Emit(events.FirmRegistered{Firm: firm, Active: true})
		emit.Emit(events.AuthorityRegistered{Firm: firm, Authority: addr, Active: true})
		return nil
	})
}

// RegisterFirm admits or retires a firm. Caller must be a registered
// authority.
func (e *Engine) RegisterFirm(caller common.Address, firm string, active bool) (*types.Receipt, error) {
	return e.run("registerFirm", func(m *modules, emit events.Emitter) error {
		if err := m.auth.RegisterFirm(caller, firm, active); err != nil {
			return err
		}
		emit.Emit(events.FirmRegistered{Firm: firm, Active: active})
		return nil
	})
}

// RegisterAuthority grants or revokes firm membership for an address.
func (e *Engine) RegisterAuthority(caller common.Address, firm string, addr common.Address, active bool) (*types.Receipt, error) {
	return e.run("registerAuthority", func(m *modules, emit events.Emitter) error {
		if err := m.auth.RegisterAuthority(caller, firm, addr, active); err != nil {
			return err
		}
		emit.Emit(events.AuthorityRegistered{Firm: firm, Authority: addr, Active: active})
		return nil
	})
}

// RegisterAsset installs a new currency. Authority-gated.
func (e *Engine) RegisterAsset(caller common.Address, firm string, params token.Params) (*types.Receipt, error) {
	return e.run("registerAsset", func(m *modules, emit events.Emitter) error {
		return m.ledger.Register(caller, firm, params)
	})
}

// SetFeeParams installs the global fee schedule. Authority-gated.
func (e *Engine) SetFeeParams(caller common.Address, firm string, params fees.Params) (*types.Receipt, error) {
	return e.run("setFeeParams", func(m *modules, emit events.Emitter) error {
		return m.fees.SetDefaultParams(caller, firm, params)
	})
}

// SetAssetFeeParams installs a currency-specific fee schedule.
func (e *Engine) SetAssetFeeParams(caller common.Address, firm, symbol string, params fees.Params) (*types.Receipt, error) {
	return e.run("setAssetFeeParams", func(m *modules, emit events.Emitter) error {
		return m.fees.SetAssetParams(caller, firm, symbol, params)
	})
}

// SetReferenceAsset designates the conversion hub for a denomination.
func (e *Engine) SetReferenceAsset(caller common.Address, firm, symbol string) (*types.Receipt, error) {
	return e.run("setReferenceAsset", func(m *modules, emit events.Emitter) error {
		return m.stable.SetReferenceAsset(caller, firm, symbol)
	})
}

// AllowSwapAsset admits a currency to stable conversion.
func (e *Engine) AllowSwapAsset(caller common.Address, firm, symbol string) (*types.Receipt, error) {
	return e.run("allowSwapAsset", func(m *modules, emit events.Emitter) error {
		return m.stable.AllowAsset(caller, firm, symbol)
	})
}

// ApproveKYC sets the account's authorization flag and spending limit.
func (e *Engine) ApproveKYC(caller, addr common.Address, approved bool, limit *big.Int, firm string) (*types.Receipt, error) {
	return e.run("approveKYC", func(m *modules, emit events.Emitter) error {
		if err := m.accounts.ApproveKYC(caller, addr, approved, limit, firm, e.now()); err != nil {
			return err
		}
		emit.Emit(events.KYCApproved{Account: addr, Approved: approved, Limit: limit, Firm: firm})
		return nil
	})
}

// Forbid toggles the account's forbidden flag.
func (e *Engine) Forbid(caller, addr common.Address, forbidden bool, firm string) (*types.Receipt, error) {
	return e.run("forbid", func(m *modules, emit events.Emitter) error {
		if err := m.accounts.Forbid(caller, addr, forbidden, firm); err != nil {
			return err
		}
		emit.Emit(events.Forbidden{Account: addr, Forbidden: forbidden, Firm: firm})
		return nil
	})
}

// Deposit issues amount of the currency to the account.
func (e *Engine) Deposit(caller common.Address, symbol string, to common.Address, amount *big.Int, firm string) (*types.Receipt, error) {
	return e.run("deposit", func(m *modules, emit events.Emitter) error {
		if err := m.ledger.Deposit(caller, symbol, to, amount, firm); err != nil {
			return err
		}
		emit.Emit(events.Deposit{Asset: state.NormalizeSymbol(symbol), To: to, Amount: amount, Firm: firm})
		return nil
	})
}

// Withdraw redeems amount of the currency from the account.
func (e *Engine) Withdraw(caller common.Address, symbol string, from common.Address, amount *big.Int, firm string) (*types.Receipt, error) {
	return e.run("withdraw", func(m *modules, emit events.Emitter) error {
		if err := m.ledger.Withdraw(caller, symbol, from, amount, firm); err != nil {
			return err
		}
		emit.Emit(events.Withdraw{Asset: state.NormalizeSymbol(symbol), From: from, Amount: amount, Firm: firm})
		return nil
	})
}

// ApproveKYCAndDeposit performs approval and the first issuance in one
// atomic operation, the usual onboarding flow.
func (e *Engine) ApproveKYCAndDeposit(caller common.Address, symbol string, to common.Address, amount, limit *big.Int, firm string) (*types.Receipt, error) {
	return e.run("approveKYCAndDeposit", func(m *modules, emit events.Emitter) error {
		if err := m.accounts.ApproveKYC(caller, to, true, limit, firm, e.now()); err != nil {
			return err
		}
		if err := m.ledger.Deposit(caller, symbol, to, amount, firm); err != nil {
			return err
		}
		emit.Emit(events.KYCApproved{Account: to, Approved: true, Limit: limit, Firm: firm})
		emit.Emit(events.Deposit{Asset: state.NormalizeSymbol(symbol), To: to, Amount: amount, Firm: firm})
		return nil
	})
}

// FreezeAccount moves the account's full available balance in every
// currency into frozen storage. Authority-gated.
func (e *Engine) FreezeAccount(caller, addr common.Address, firm string) (*types.Receipt, error) {
	return e.run("freeze", func(m *modules, emit events.Emitter) error {
		if err := m.auth.RequireAuthority(caller, firm); err != nil {
			return err
		}
		if _, err := m.ledger.Freeze(addr); err != nil {
			return err
		}
		emit.Emit(events.Frozen{Account: addr, Frozen: true, Firm: firm})
		return nil
	})
}

// UnfreezeAccount restores the account's frozen funds. Authority-gated.
func (e *Engine) UnfreezeAccount(caller, addr common.Address, firm string) (*types.Receipt, error) {
	return e.run("unfreeze", func(m *modules, emit events.Emitter) error {
		if err := m.auth.RequireAuthority(caller, firm); err != nil {
			return err
		}
		if _, err := m.ledger.Unfreeze(addr); err != nil {
			return err
		}
		emit.Emit(events.Frozen{Account: addr, Frozen: false, Firm: firm})
		return nil
	})
}

// Transfer moves funds from the caller to the receiver, applying fees and
// the caller's spending limit.
func (e *Engine) Transfer(from, to common.Address, symbol string, amount *big.Int) (*types.Receipt, error) {
	return e.run("transfer", func(m *modules, emit events.Emitter) error {
		res, err := m.transfer.Transfer(from, to, symbol, amount, e.cfg.PayerPaysFees)
		if err != nil {
			return err
		}
		e.emitTransfer(emit, state.NormalizeSymbol(symbol), from, to, res)
		return nil
	})
}

// TransferFrom moves funds from the owner to the receiver on the spender's
// authority, drawing down the owner's allowance.
func (e *Engine) TransferFrom(spender, owner, to common.Address, symbol string, amount *big.Int) (*types.Receipt, error) {
	return e.run("transferFrom", func(m *modules, emit events.Emitter) error {
		res, err := m.transfer.TransferFrom(spender, owner, to, symbol, amount, e.cfg.PayerPaysFees)
		if err != nil {
			return err
		}
		e.emitTransfer(emit, state.NormalizeSymbol(symbol), owner, to, res)
		return nil
	})
}

func (e *Engine) emitTransfer(emit events.Emitter, asset string, from, to common.Address, res transfer.Result) {
	emit.Emit(events.Transfer{Asset: asset, From: from, To: to, Amount: res.Amount, Fee: res.Fee})
	if res.Fee != nil && res.Fee.Sign() > 0 {
		emit.Emit(events.FeeApplied{Asset: asset, Payer: from, Sink: res.Sink, Fee: res.Fee})
		e.metrics.ObserveFee(asset)
	}
}

// Approve grants the spender an allowance over the caller's funds.
func (e *Engine) Approve(owner, spender common.Address, symbol string, amount *big.Int) (*types.Receipt, error) {
	return e.run("approve", func(m *modules, emit events.Emitter) error {
		if err := m.transfer.Approve(owner, spender, symbol, amount); err != nil {
			return err
		}
		emit.Emit(events.Approval{Asset: state.NormalizeSymbol(symbol), Owner: owner, Spender: spender, Amount: amount})
		return nil
	})
}

// Swap settles a signed bilateral exchange between two currencies.
func (e *Engine) Swap(fulfiller common.Address, req fx.SwapRequest) (*types.Receipt, error) {
	return e.run("swap", func(m *modules, emit events.Emitter) error {
		if err := m.fx.Swap(fulfiller, req); err != nil {
			return err
		}
		assetA := state.NormalizeSymbol(req.AssetA)
		assetB := state.NormalizeSymbol(req.AssetB)
		emit.Emit(events.Swap{
			Requester: req.Requester, Fulfiller: fulfiller,
			AssetA: assetA, AssetB: assetB,
			AmountA: req.AmountA, AmountB: req.AmountB,
		})
		e.metrics.ObserveSwap(assetA, assetB)
		return nil
	})
}

// Convert exchanges funds between a reference currency and an allowed
// currency of the same denomination.
func (e *Engine) Convert(caller common.Address, from, to string, amount *big.Int) (*types.Receipt, error) {
	return e.run("convert", func(m *modules, emit events.Emitter) error {
		res, err := m.stable.Convert(caller, from, to, amount)
		if err != nil {
			return err
		}
		fromSym := state.NormalizeSymbol(from)
		toSym := state.NormalizeSymbol(to)
		emit.Emit(events.Conversion{
			Account: caller, FromAsset: fromSym, ToAsset: toSym,
			Amount: amount, Output: res.Output, Fee: res.Fee,
		})
		e.metrics.ObserveConversion(fromSym, toSym)
		return nil
	})
}

// BalanceOf reports the available balance for the account.
func (e *Engine) BalanceOf(symbol string, addr common.Address) (*big.Int, error) {
	var out *big.Int
	err := e.view(func(m *modules) error {
		bal, err := m.ledger.BalanceOf(symbol, addr)
		if err != nil {
			return err
		}
		out = bal
		return nil
	})
	return out, err
}

// FrozenOf reports the frozen balance for the account.
func (e *Engine) FrozenOf(symbol string, addr common.Address) (*big.Int, error) {
	var out *big.Int
	err := e.view(func(m *modules) error {
		bal, err := m.ledger.FrozenOf(symbol, addr)
		if err != nil {
			return err
		}
		out = bal
		return nil
	})
	return out, err
}

// TotalSupply reports the outstanding supply for the currency.
func (e *Engine) TotalSupply(symbol string) (*big.Int, error) {
	var out *big.Int
	err := e.view(func(m *modules) error {
		supply, err := m.ledger.TotalSupply(symbol)
		if err != nil {
			return err
		}
		out = supply
		return nil
	})
	return out, err
}

// Allowance reports the spender's remaining delegated budget.
func (e *Engine) Allowance(symbol string, owner, spender common.Address) (*big.Int, error) {
	var out *big.Int
	err := e.view(func(m *modules) error {
		allowance, err := m.transfer.Allowance(symbol, owner, spender)
		if err != nil {
			return err
		}
		out = allowance
		return nil
	})
	return out, err
}

// SpendingRemaining reports the account's remaining spending budget for the
// currency.
func (e *Engine) SpendingRemaining(addr common.Address, symbol string) (*big.Int, error) {
	var out *big.Int
	err := e.view(func(m *modules) error {
		remaining, err := m.accounts.SpendingRemaining(addr, state.NormalizeSymbol(symbol))
		if err != nil {
			return err
		}
		out = remaining
		return nil
	})
	return out, err
}

// IsAuthority reports whether the address is a registered authority.
func (e *Engine) IsAuthority(addr common.Address) (bool, error) {
	var out bool
	err := e.view(func(m *modules) error {
		registered, err := m.auth.IsRegisteredAuthority(addr)
		if err != nil {
			return err
		}
		out = registered
		return nil
	})
	return out, err
}

// HasAsset reports whether the currency is registered.
func (e *Engine) HasAsset(symbol string) (bool, error) {
	var out bool
	err := e.view(func(m *modules) error {
		exists, err := m.ledger.Exists(symbol)
		if err != nil {
			return err
		}
		out = exists
		return nil
	})
	return out, err
}

// Symbols lists the registered currencies.
func (e *Engine) Symbols() ([]string, error) {
	var out []string
	err := e.view(func(m *modules) error {
		symbols, err := m.ledger.Symbols()
		if err != nil {
			return err
		}
		out = symbols
		return nil
	})
	return out, err
}

// AssetInfo describes a registered currency.
type AssetInfo struct {
	Name     string
	Symbol   string
	TLA      string
	Version  string
	Decimals uint8
	Supply   *big.Int
}

// Asset reports the registered parameters and supply for the currency.
func (e *Engine) Asset(symbol string) (AssetInfo, error) {
	var out AssetInfo
	err := e.view(func(m *modules) error {
		if err := m.ledger.RequireAsset(symbol); err != nil {
			return err
		}
		sym := state.NormalizeSymbol(symbol)
		var err error
		if out.Name, err = m.ledger.Name(sym); err != nil {
			return err
		}
		if out.TLA, err = m.ledger.TLA(sym); err != nil {
			return err
		}
		if out.Version, err = m.ledger.Version(sym); err != nil {
			return err
		}
		if out.Decimals, err = m.ledger.Decimals(sym); err != nil {
			return err
		}
		if out.Supply, err = m.ledger.TotalSupply(sym); err != nil {
			return err
		}
		out.Symbol = sym
		return nil
	})
	return out, err
}

// Close releases the underlying database.
func (e *Engine) Close() {
	e.db.Close()
}
