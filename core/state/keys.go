package state

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Identifiers into the key-value store are derived from a namespace string
// plus the key components, joined with ':' and hashed with keccak256 before
// hitting the database. Identical inputs always yield the identical
// identifier; there is no randomness anywhere in the scheme.

const (
	nsTokenName      = "token.name"
	nsTokenSymbol    = "token.symbol"
	nsTokenTLA       = "token.tla"
	nsTokenVersion   = "token.version"
	nsTokenDecimals  = "token.decimals"
	nsTokenSupply    = "token.supply"
	nsTokenBalance   = "token.balance"
	nsTokenFrozen    = "token.frozen"
	nsTokenAllowance = "token.allowance"
	nsTokenIndex     = "token.index"

	nsFeeBps     = "fee.bps"
	nsFeeMin     = "fee.min"
	nsFeeMax     = "fee.max"
	nsFeeFlat    = "fee.flat"
	nsFeeAccount = "fee.account"
	nsFeeSet     = "fee.set"

	nsFirmRegistered      = "authority.firm"
	nsFirmCount           = "authority.count"
	nsAuthorityFirm       = "authority.firm.of"
	nsAuthorityRegistered = "authority.registered"
	nsFirmMember          = "authority.member"

	nsAccountKYC       = "registry.kyc"
	nsAccountForbidden = "registry.forbidden"
	nsAccountLimit     = "registry.limit"
	nsAccountLimitEra  = "registry.limit.era"
	nsAccountRemaining = "registry.remaining"
	nsAccountLimitTime = "registry.limit.reset"

	nsFxUsed = "fx.used"

	nsSwapAllowed   = "swap.allowed"
	nsSwapTLA       = "swap.tla"
	nsSwapReference = "swap.reference"
)

// NormalizeSymbol canonicalises currency symbols for state addressing.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// NormalizeFirm canonicalises firm names. Case is preserved; surrounding
// whitespace is not significant.
func NormalizeFirm(firm string) string {
	return strings.TrimSpace(firm)
}

func joinKey(namespace string, parts ...string) []byte {
	size := len(namespace)
	for _, p := range parts {
		size += 1 + len(p)
	}
	buf := make([]byte, 0, size)
	buf = append(buf, namespace...)
	for _, p := range parts {
		buf = append(buf, ':')
		buf = append(buf, p...)
	}
	return buf
}

func addrHex(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

// TokenNameKey addresses a currency's display name.
func TokenNameKey(symbol string) []byte {
	return joinKey(nsTokenName, NormalizeSymbol(symbol))
}

// TokenSymbolKey addresses the registration marker for a currency symbol.
func TokenSymbolKey(symbol string) []byte {
	return joinKey(nsTokenSymbol, NormalizeSymbol(symbol))
}

// TokenTLAKey addresses a currency's three-letter acronym.
func TokenTLAKey(symbol string) []byte {
	return joinKey(nsTokenTLA, NormalizeSymbol(symbol))
}

// TokenVersionKey addresses a currency's registered version string.
func TokenVersionKey(symbol string) []byte {
	return joinKey(nsTokenVersion, NormalizeSymbol(symbol))
}

// TokenDecimalsKey addresses a currency's fixed-point scale.
func TokenDecimalsKey(symbol string) []byte {
	return joinKey(nsTokenDecimals, NormalizeSymbol(symbol))
}

// TokenSupplyKey addresses a currency's total supply.
func TokenSupplyKey(symbol string) []byte {
	return joinKey(nsTokenSupply, NormalizeSymbol(symbol))
}

// TokenIndexKey addresses the index of registered currency symbols.
func TokenIndexKey() []byte {
	return []byte(nsTokenIndex)
}

// BalanceKey addresses an account's available balance for a currency.
func BalanceKey(symbol string, addr common.Address) []byte {
	return joinKey(nsTokenBalance, NormalizeSymbol(symbol), addrHex(addr))
}

// FrozenKey addresses an account's frozen balance for a currency.
func FrozenKey(symbol string, addr common.Address) []byte {
	return joinKey(nsTokenFrozen, NormalizeSymbol(symbol), addrHex(addr))
}

// AllowanceKey addresses the (owner, spender) allowance for a currency.
func AllowanceKey(symbol string, owner, spender common.Address) []byte {
	return joinKey(nsTokenAllowance, NormalizeSymbol(symbol), addrHex(owner), addrHex(spender))
}

// FeeBpsKey addresses a currency's basis-point fee rate. An empty symbol
// addresses the global default.
func FeeBpsKey(symbol string) []byte { return feeKey(nsFeeBps, symbol) }

// FeeMinKey addresses a currency's minimum fee.
func FeeMinKey(symbol string) []byte { return feeKey(nsFeeMin, symbol) }

// FeeMaxKey addresses a currency's maximum fee.
func FeeMaxKey(symbol string) []byte { return feeKey(nsFeeMax, symbol) }

// FeeFlatKey addresses a currency's flat fee component.
func FeeFlatKey(symbol string) []byte { return feeKey(nsFeeFlat, symbol) }

// FeeAccountKey addresses the fee sink account for a currency.
func FeeAccountKey(symbol string) []byte { return feeKey(nsFeeAccount, symbol) }

func feeKey(namespace, symbol string) []byte {
	normalized := NormalizeSymbol(symbol)
	if normalized == "" {
		return []byte(namespace)
	}
	return joinKey(namespace, normalized)
}

// FeeSetKey marks that explicit fee params exist for a currency (or, with an
// empty symbol, that global defaults exist).
func FeeSetKey(symbol string) []byte { return feeKey(nsFeeSet, symbol) }

// FirmAuthorityCountKey addresses the number of active authorities in a firm.
func FirmAuthorityCountKey(firm string) []byte {
	return joinKey(nsFirmCount, NormalizeFirm(firm))
}

// FirmKey addresses a firm's registration flag.
func FirmKey(firm string) []byte {
	return joinKey(nsFirmRegistered, NormalizeFirm(firm))
}

// AuthorityFirmKey addresses the firm an authority address belongs to.
func AuthorityFirmKey(addr common.Address) []byte {
	return joinKey(nsAuthorityFirm, addrHex(addr))
}

// AuthorityRegisteredKey addresses an address's authority flag.
func AuthorityRegisteredKey(addr common.Address) []byte {
	return joinKey(nsAuthorityRegistered, addrHex(addr))
}

// FirmMemberKey addresses an address's membership in a firm.
func FirmMemberKey(firm string, addr common.Address) []byte {
	return joinKey(nsFirmMember, NormalizeFirm(firm), addrHex(addr))
}

// KYCKey addresses an account's KYC approval flag.
func KYCKey(addr common.Address) []byte {
	return joinKey(nsAccountKYC, addrHex(addr))
}

// ForbiddenKey addresses an account's forbidden flag.
func ForbiddenKey(addr common.Address) []byte {
	return joinKey(nsAccountForbidden, addrHex(addr))
}

// SpendingLimitKey addresses an account's configured spending limit.
func SpendingLimitKey(addr common.Address) []byte {
	return joinKey(nsAccountLimit, addrHex(addr))
}

// SpendingEraKey addresses the approval era counter for an account's limit.
// Re-approval bumps the era, invalidating every per-currency remaining
// counter without enumerating them.
func SpendingEraKey(addr common.Address) []byte {
	return joinKey(nsAccountLimitEra, addrHex(addr))
}

// SpendingRemainingKey addresses the remaining spend for (account, currency).
func SpendingRemainingKey(addr common.Address, symbol string) []byte {
	return joinKey(nsAccountRemaining, addrHex(addr), NormalizeSymbol(symbol))
}

// LimitResetTimeKey addresses the timestamp of the last limit reset.
func LimitResetTimeKey(addr common.Address) []byte {
	return joinKey(nsAccountLimitTime, addrHex(addr))
}

// FxUsedKey addresses the consumed-digest marker for swap replay protection.
func FxUsedKey(digest [32]byte) []byte {
	return joinKey(nsFxUsed, common.Hash(digest).Hex())
}

// SwapAllowedKey addresses the conversion eligibility flag for a currency.
func SwapAllowedKey(symbol string) []byte {
	return joinKey(nsSwapAllowed, NormalizeSymbol(symbol))
}

// SwapTLAKey addresses the reference currency a convertible asset is
// registered against.
func SwapTLAKey(symbol string) []byte {
	return joinKey(nsSwapTLA, NormalizeSymbol(symbol))
}

// SwapReferenceKey addresses the reference ("token X") asset for a TLA.
func SwapReferenceKey(tla string) []byte {
	return joinKey(nsSwapReference, strings.ToUpper(strings.TrimSpace(tla)))
}
