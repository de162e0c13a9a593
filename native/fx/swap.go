package fx

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	ledgererr "tokenledger/core/errors"
	"tokenledger/core/state"
	"tokenledger/crypto"
	"tokenledger/native/registry"
	"tokenledger/native/token"
)

// SwapRequest is a signed off-chain offer: the requester commits to pay
// AmountB of AssetB in exchange for AmountA of AssetA, valid until
// Expiration (unix seconds).
type SwapRequest struct {
	Requester  common.Address
	AssetA     string
	AssetB     string
	AmountA    *big.Int
	AmountB    *big.Int
	Expiration *big.Int
	Signature  []byte
}

// Digest is the 32-byte commitment the requester signs:
// keccak256(requester || assetA || assetB || amountA || amountB || expiration)
// with the amounts and expiration encoded as 32-byte big-endian words.
func (r SwapRequest) Digest() [32]byte {
	var buf []byte
	buf = append(buf, r.Requester.Bytes()...)
	buf = append(buf, []byte(state.NormalizeSymbol(r.AssetA))...)
	buf = append(buf, []byte(state.NormalizeSymbol(r.AssetB))...)
	buf = append(buf, word(r.AmountA)...)
	buf = append(buf, word(r.AmountB)...)
	buf = append(buf, word(r.Expiration)...)
	var digest [32]byte
	copy(digest[:], ethcrypto.Keccak256(buf))
	return digest
}

func word(v *big.Int) []byte {
	var out [32]byte
	if v != nil {
		v.FillBytes(out[:])
	}
	return out[:]
}

// Engine settles signed atomic swaps between two currencies. Both legs move
// in one operation; callers run it against a write buffer so a failed leg
// leaves no trace.
type Engine struct {
	st       *state.Manager
	ledger   *token.Ledger
	accounts *registry.Accounts
	now      func() time.Time
}

// NewEngine wires the swap engine. now is the settlement clock used for
// expiration checks; pass time.Now in production.
func NewEngine(st *state.Manager, ledger *token.Ledger, accounts *registry.Accounts, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{st: st, ledger: ledger, accounts: accounts, now: now}
}

func (r SwapRequest) validate() error {
	if r.Requester == (common.Address{}) {
		return fmt.Errorf("fx: requester required")
	}
	for _, v := range []*big.Int{r.AmountA, r.AmountB, r.Expiration} {
		if v == nil || v.Sign() < 0 {
			return fmt.Errorf("fx: amounts and expiration must not be negative")
		}
		if v.BitLen() > 256 {
			return fmt.Errorf("fx: value out of range: %w", ledgererr.ErrArithmeticOverflow)
		}
	}
	return nil
}

// Swap settles the request: the fulfiller pays AmountA of AssetA to the
// requester and receives AmountB of AssetB. The signature must recover to
// the requester, must not have expired, and each signature settles at most
// once. Swap legs carry no fees.
func (e *Engine) Swap(fulfiller common.Address, req SwapRequest) error {
	if err := req.validate(); err != nil {
		return err
	}
	assetA := state.NormalizeSymbol(req.AssetA)
	assetB := state.NormalizeSymbol(req.AssetB)
	if assetA == assetB {
		return fmt.Errorf("fx: swap legs must differ")
	}
	if err := e.ledger.RequireAsset(assetA); err != nil {
		return err
	}
	if err := e.ledger.RequireAsset(assetB); err != nil {
		return err
	}

	now := big.NewInt(e.now().Unix())
	if req.Expiration.Cmp(now) <= 0 {
		return fmt.Errorf("fx: request expired at %s: %w", req.Expiration, ledgererr.ErrSignatureExpired)
	}

	digest := req.Digest()
	signer, err := crypto.RecoverSigner(digest, req.Signature)
	if err != nil {
		return fmt.Errorf("%s: %w", err, ledgererr.ErrInvalidSignature)
	}
	if signer != req.Requester {
		return fmt.Errorf("fx: signed by %s, not requester %s: %w", signer, req.Requester, ledgererr.ErrInvalidSignature)
	}
	used, err := e.st.GetBool(state.FxUsedKey(digest))
	if err != nil {
		return err
	}
	if used {
		return fmt.Errorf("fx: request already settled: %w", ledgererr.ErrSignatureReplayed)
	}

	for _, addr := range []common.Address{req.Requester, fulfiller} {
		if err := e.accounts.RequireApproved(addr); err != nil {
			return err
		}
		if err := e.accounts.RequireNotForbidden(addr); err != nil {
			return err
		}
	}

	if err := e.st.SetBool(state.FxUsedKey(digest), true); err != nil {
		return err
	}
	// fulfiller leg: amountA of assetA flows to the requester
	if err := e.ledger.Debit(assetA, fulfiller, req.AmountA); err != nil {
		return err
	}
	if err := e.ledger.Credit(assetA, req.Requester, req.AmountA); err != nil {
		return err
	}
	// requester leg: amountB of assetB flows to the fulfiller
	if err := e.ledger.Debit(assetB, req.Requester, req.AmountB); err != nil {
		return err
	}
	return e.ledger.Credit(assetB, fulfiller, req.AmountB)
}
