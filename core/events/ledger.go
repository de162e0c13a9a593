package events

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"tokenledger/core/types"
)

const (
	// TypeTransfer is emitted for balance movements between accounts.
	TypeTransfer = "token.transfer"
	// TypeDeposit is emitted when an authority issues funds to an account.
	TypeDeposit = "token.deposit"
	// TypeWithdraw is emitted when an authority redeems funds from an account.
	TypeWithdraw = "token.withdraw"
	// TypeApproval is emitted when an allowance is set.
	TypeApproval = "token.approval"
	// TypeFeeApplied is emitted whenever a fee is credited to a sink.
	TypeFeeApplied = "fees.applied"
	// TypeKYCApproved is emitted when an account's KYC status changes.
	TypeKYCApproved = "registry.kyc"
	// TypeFrozen is emitted on freeze/unfreeze round trips.
	TypeFrozen = "registry.frozen"
	// TypeForbidden is emitted when an account's forbidden flag changes.
	TypeForbidden = "registry.forbidden"
	// TypeFirmRegistered is emitted when a firm registration toggles.
	TypeFirmRegistered = "authority.firm"
	// TypeAuthorityRegistered is emitted when firm membership changes.
	TypeAuthorityRegistered = "authority.member"
	// TypeSwap is emitted for completed signed bilateral swaps.
	TypeSwap = "fx.swap"
	// TypeConversion is emitted for pooled stable conversions.
	TypeConversion = "swap.convert"
)

func formatAmount(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	return amount.String()
}

func hexAddr(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

type Transfer struct {
	Asset  string
	From   common.Address
	To     common.Address
	Amount *big.Int
	Fee    *big.Int
}

func (Transfer) EventType() string { return TypeTransfer }

func (e Transfer) Event() *types.Event {
	return &types.Event{Type: TypeTransfer, Attributes: map[string]string{
		"asset":  e.Asset,
		"from":   hexAddr(e.From),
		"to":     hexAddr(e.To),
		"amount": formatAmount(e.Amount),
		"fee":    formatAmount(e.Fee),
	}}
}

type Deposit struct {
	Asset  string
	To     common.Address
	Amount *big.Int
	Firm   string
}

func (Deposit) EventType() string { return TypeDeposit }

func (e Deposit) Event() *types.Event {
	return &types.Event{Type: TypeDeposit, Attributes: map[string]string{
		"asset":  e.Asset,
		"to":     hexAddr(e.To),
		"amount": formatAmount(e.Amount),
		"firm":   e.Firm,
	}}
}

type Withdraw struct {
	Asset  string
	From   common.Address
	Amount *big.Int
	Firm   string
}

func (Withdraw) EventType() string { return TypeWithdraw }

func (e Withdraw) Event() *types.Event {
	return &types.Event{Type: TypeWithdraw, Attributes: map[string]string{
		"asset":  e.Asset,
		"from":   hexAddr(e.From),
		"amount": formatAmount(e.Amount),
		"firm":   e.Firm,
	}}
}

type Approval struct {
	Asset   string
	Owner   common.Address
	Spender common.Address
	Amount  *big.Int
}

func (Approval) EventType() string { return TypeApproval }

func (e Approval) Event() *types.Event {
	return &types.Event{Type: TypeApproval, Attributes: map[string]string{
		"asset":   e.Asset,
		"owner":   hexAddr(e.Owner),
		"spender": hexAddr(e.Spender),
		"amount":  formatAmount(e.Amount),
	}}
}

type FeeApplied struct {
	Asset string
	Payer common.Address
	Sink  common.Address
	Fee   *big.Int
}

func (FeeApplied) EventType() string { return TypeFeeApplied }

func (e FeeApplied) Event() *types.Event {
	return &types.Event{Type: TypeFeeApplied, Attributes: map[string]string{
		"asset": e.Asset,
		"payer": hexAddr(e.Payer),
		"sink":  hexAddr(e.Sink),
		"fee":   formatAmount(e.Fee),
	}}
}

type KYCApproved struct {
	Account  common.Address
	Approved bool
	Limit    *big.Int
	Firm     string
}

func (KYCApproved) EventType() string { return TypeKYCApproved }

func (e KYCApproved) Event() *types.Event {
	approved := "false"
	if e.Approved {
		approved = "true"
	}
	return &types.Event{Type: TypeKYCApproved, Attributes: map[string]string{
		"account":  hexAddr(e.Account),
		"approved": approved,
		"limit":    formatAmount(e.Limit),
		"firm":     e.Firm,
	}}
}

type Frozen struct {
	Account common.Address
	Frozen  bool
	Firm    string
}

func (Frozen) EventType() string { return TypeFrozen }

func (e Frozen) Event() *types.Event {
	frozen := "false"
	if e.Frozen {
		frozen = "true"
	}
	return &types.Event{Type: TypeFrozen, Attributes: map[string]string{
		"account": hexAddr(e.Account),
		"frozen":  frozen,
		"firm":    e.Firm,
	}}
}

type Forbidden struct {
	Account   common.Address
	Forbidden bool
	Firm      string
}

func (Forbidden) EventType() string { return TypeForbidden }

func (e Forbidden) Event() *types.Event {
	forbidden := "false"
	if e.Forbidden {
		forbidden = "true"
	}
	return &types.Event{Type: TypeForbidden, Attributes: map[string]string{
		"account":   hexAddr(e.Account),
		"forbidden": forbidden,
		"firm":      e.Firm,
	}}
}

type FirmRegistered struct {
	Firm   string
	Active bool
}

func (FirmRegistered) EventType() string { return TypeFirmRegistered }

func (e FirmRegistered) Event() *types.Event {
	active := "false"
	if e.Active {
		active = "true"
	}
	return &types.Event{Type: TypeFirmRegistered, Attributes: map[string]string{
		"firm":   e.Firm,
		"active": active,
	}}
}

type AuthorityRegistered struct {
	Firm      string
	Authority common.Address
	Active    bool
}

func (AuthorityRegistered) EventType() string { return TypeAuthorityRegistered }

func (e AuthorityRegistered) Event() *types.Event {
	active := "false"
	if e.Active {
		active = "true"
	}
	return &types.Event{Type: TypeAuthorityRegistered, Attributes: map[string]string{
		"firm":      e.Firm,
		"authority": hexAddr(e.Authority),
		"active":    active,
	}}
}

type Swap struct {
	Requester common.Address
	Fulfiller common.Address
	AssetA    string
	AssetB    string
	AmountA   *big.Int
	AmountB   *big.Int
}

func (Swap) EventType() string { return TypeSwap }

func (e Swap) Event() *types.Event {
	return &types.Event{Type: TypeSwap, Attributes: map[string]string{
		"requester": hexAddr(e.Requester),
		"fulfiller": hexAddr(e.Fulfiller),
		"assetA":    e.AssetA,
		"assetB":    e.AssetB,
		"amountA":   formatAmount(e.AmountA),
		"amountB":   formatAmount(e.AmountB),
	}}
}

type Conversion struct {
	Account   common.Address
	FromAsset string
	ToAsset   string
	Amount    *big.Int
	Output    *big.Int
	Fee       *big.Int
}

func (Conversion) EventType() string { return TypeConversion }

func (e Conversion) Event() *types.Event {
	return &types.Event{Type: TypeConversion, Attributes: map[string]string{
		"account": hexAddr(e.Account),
		"from":    e.FromAsset,
		"to":      e.ToAsset,
		"amount":  formatAmount(e.Amount),
		"output":  formatAmount(e.Output),
		"fee":     formatAmount(e.Fee),
	}}
}
