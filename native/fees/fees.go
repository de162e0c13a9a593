package fees

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	ledgererr "tokenledger/core/errors"
	"tokenledger/core/state"
	"tokenledger/native/authority"
)

// basis points denominator
var bpsDenominator = big.NewInt(10_000)

// Params holds the fee schedule for a currency: a basis-point rate plus a
// flat component, clamped into [Min, Max]. Account is the fee sink credited
// with collected fees.
type Params struct {
	Bps     *big.Int
	Min     *big.Int
	Max     *big.Int
	Flat    *big.Int
	Account common.Address
}

func (p Params) normalized() Params {
	out := p
	if out.Bps == nil {
		out.Bps = big.NewInt(0)
	}
	if out.Min == nil {
		out.Min = big.NewInt(0)
	}
	if out.Max == nil {
		out.Max = big.NewInt(0)
	}
	if out.Flat == nil {
		out.Flat = big.NewInt(0)
	}
	return out
}

func (p Params) validate() error {
	n := p.normalized()
	for _, v := range []*big.Int{n.Bps, n.Min, n.Max, n.Flat} {
		if v.Sign() < 0 {
			return fmt.Errorf("fees: parameters must not be negative")
		}
	}
	if n.Max.Sign() > 0 && n.Min.Cmp(n.Max) > 0 {
		return fmt.Errorf("fees: min %s exceeds max %s", n.Min, n.Max)
	}
	return nil
}

// Engine computes deterministic transaction fees from per-currency
// parameters, falling back to global defaults when a currency carries none.
type Engine struct {
	st   *state.Manager
	auth *authority.Registry
}

// NewEngine binds the fee engine to state and the authority registry.
func NewEngine(st *state.Manager, auth *authority.Registry) *Engine {
	return &Engine{st: st, auth: auth}
}

// SetDefaultParams installs the global fee schedule. Authority-gated.
func (e *Engine) SetDefaultParams(caller common.Address, firm string, params Params) error {
	if err := e.auth.RequireAuthority(caller, firm); err != nil {
		return err
	}
	return e.write("", params)
}

// SetAssetParams installs a currency-specific fee schedule. Authority-gated.
func (e *Engine) SetAssetParams(caller common.Address, firm, symbol string, params Params) error {
	if err := e.auth.RequireAuthority(caller, firm); err != nil {
		return err
	}
	if state.NormalizeSymbol(symbol) == "" {
		return fmt.Errorf("fees: symbol required")
	}
	return e.write(symbol, params)
}

func (e *Engine) write(symbol string, params Params) error {
	if err := params.validate(); err != nil {
		return err
	}
	params = params.normalized()
	if err := e.st.SetUint(state.FeeBpsKey(symbol), params.Bps); err != nil {
		return err
	}
	if err := e.st.SetUint(state.FeeMinKey(symbol), params.Min); err != nil {
		return err
	}
	if err := e.st.SetUint(state.FeeMaxKey(symbol), params.Max); err != nil {
		return err
	}
	if err := e.st.SetUint(state.FeeFlatKey(symbol), params.Flat); err != nil {
		return err
	}
	if params.Account != (common.Address{}) {
		if err := e.st.SetAddress(state.FeeAccountKey(symbol), params.Account); err != nil {
			return err
		}
	}
	return e.st.SetBool(state.FeeSetKey(symbol), true)
}

func (e *Engine) read(symbol string) (Params, bool, error) {
	set, err := e.st.GetBool(state.FeeSetKey(symbol))
	if err != nil {
		return Params{}, false, err
	}
	if !set {
		return Params{}, false, nil
	}
	params := Params{}
	if params.Bps, err = e.st.GetUint(state.FeeBpsKey(symbol)); err != nil {
		return Params{}, false, err
	}
	if params.Min, err = e.st.GetUint(state.FeeMinKey(symbol)); err != nil {
		return Params{}, false, err
	}
	if params.Max, err = e.st.GetUint(state.FeeMaxKey(symbol)); err != nil {
		return Params{}, false, err
	}
	if params.Flat, err = e.st.GetUint(state.FeeFlatKey(symbol)); err != nil {
		return Params{}, false, err
	}
	if params.Account, err = e.st.GetAddress(state.FeeAccountKey(symbol)); err != nil {
		return Params{}, false, err
	}
	return params, true, nil
}

// ParamsFor resolves the fee schedule for the currency: the per-currency
// record when present, otherwise the global defaults, otherwise zeros.
func (e *Engine) ParamsFor(symbol string) (Params, error) {
	params, ok, err := e.read(symbol)
	if err != nil {
		return Params{}, err
	}
	if ok {
		return params, nil
	}
	params, ok, err = e.read("")
	if err != nil {
		return Params{}, err
	}
	if ok {
		return params, nil
	}
	return Params{}.normalized(), nil
}

// SinkFor returns the fee sink account for the currency. Falls back to the
// currency's registered fee account, then the default schedule's.
func (e *Engine) SinkFor(symbol string) (common.Address, error) {
	sink, err := e.st.GetAddress(state.FeeAccountKey(symbol))
	if err != nil {
		return common.Address{}, err
	}
	if sink != (common.Address{}) {
		return sink, nil
	}
	return e.st.GetAddress(state.FeeAccountKey(""))
}

// Calculate computes the fee for moving the amount of the currency:
// clamp(amount*bps/10000 + flat, min, max). Pure integer arithmetic,
// multiply-then-divide, truncating; a pure function of (params, amount).
func (e *Engine) Calculate(symbol string, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, fmt.Errorf("fees: amount must not be negative")
	}
	params, err := e.ParamsFor(symbol)
	if err != nil {
		return nil, err
	}
	return Compute(params, amount)
}

// Compute applies the fee formula to explicit parameters.
func Compute(params Params, amount *big.Int) (*big.Int, error) {
	params = params.normalized()
	ua, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, fmt.Errorf("fees: amount out of range: %w", ledgererr.ErrArithmeticOverflow)
	}
	ub, overflow := uint256.FromBig(params.Bps)
	if overflow {
		return nil, fmt.Errorf("fees: bps out of range: %w", ledgererr.ErrArithmeticOverflow)
	}
	product, carry := new(uint256.Int).MulOverflow(ua, ub)
	if carry {
		return nil, fmt.Errorf("fees: rate product out of range: %w", ledgererr.ErrArithmeticOverflow)
	}
	fee := new(big.Int).Div(product.ToBig(), bpsDenominator)
	fee.Add(fee, params.Flat)
	if fee.Cmp(params.Min) < 0 {
		fee.Set(params.Min)
	}
	if params.Max.Sign() > 0 && fee.Cmp(params.Max) > 0 {
		fee.Set(params.Max)
	}
	return fee, nil
}
