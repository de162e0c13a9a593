package errors

import stderrors "errors"

// Canonical failure kinds surfaced by guarded ledger operations. Modules wrap
// these with operation context via fmt.Errorf("...: %w", err) so callers can
// match with errors.Is.
var (
	ErrUnauthorized          = stderrors.New("ledger: caller not authorized")
	ErrNotApproved           = stderrors.New("ledger: account not KYC approved")
	ErrAccountForbidden      = stderrors.New("ledger: account forbidden")
	ErrInsufficientBalance   = stderrors.New("ledger: insufficient balance")
	ErrInsufficientAllowance = stderrors.New("ledger: insufficient allowance")
	ErrSpendingLimitExceeded = stderrors.New("ledger: spending limit exceeded")
	ErrNoFrozenFunds         = stderrors.New("ledger: no frozen funds")
	ErrInvalidSignature      = stderrors.New("ledger: invalid signature")
	ErrSignatureExpired      = stderrors.New("ledger: signature expired")
	ErrSignatureReplayed     = stderrors.New("ledger: signature replayed")
	ErrArithmeticOverflow    = stderrors.New("ledger: arithmetic overflow")
	ErrAssetNotFound         = stderrors.New("ledger: asset not found")
)
