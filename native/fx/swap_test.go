package fx

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	ledgererr "tokenledger/core/errors"
	"tokenledger/core/state"
	"tokenledger/crypto"
	"tokenledger/native/authority"
	"tokenledger/native/registry"
	"tokenledger/native/token"
	"tokenledger/storage"
)

const testFirm = "Token, Inc."

var authorityAddr = common.HexToAddress("0x8cb2cebb0070b231d4ba4d3b747acaebdfbbd142")

type fixture struct {
	engine       *Engine
	ledger       *token.Ledger
	requester    *crypto.PrivateKey
	requesterAdr common.Address
	fulfiller    common.Address
	now          time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	store := state.NewStore(db)
	store.AllowWriter("test")
	mgr := store.Access("test")
	auth := authority.NewRegistry(mgr)
	if err := auth.Bootstrap(testFirm, authorityAddr); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	accounts := registry.NewAccounts(mgr, auth)
	ledger := token.NewLedger(mgr, accounts, auth)

	for _, p := range []token.Params{
		{Name: "USD by token.io", Symbol: "USDx", TLA: "USD", Version: "v0.1.3", Decimals: 2},
		{Name: "EUR by token.io", Symbol: "EURx", TLA: "EUR", Version: "v0.1.3", Decimals: 2},
	} {
		if err := ledger.Register(authorityAddr, testFirm, p); err != nil {
			t.Fatalf("register %s: %v", p.Symbol, err)
		}
	}

	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	requester := key.PubKey().Address()
	fulfiller := common.HexToAddress("0x00000000000000000000000000000000000000bb")

	now := time.Unix(1_700_000_000, 0)
	limit := big.NewInt(10_000_000)
	for _, addr := range []common.Address{requester, fulfiller} {
		if err := accounts.ApproveKYC(authorityAddr, addr, true, limit, testFirm, now); err != nil {
			t.Fatalf("approve: %v", err)
		}
	}
	if err := ledger.Deposit(authorityAddr, "EURX", requester, big.NewInt(10000), testFirm); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := ledger.Deposit(authorityAddr, "USDX", fulfiller, big.NewInt(10000), testFirm); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	f := &fixture{
		ledger:       ledger,
		requester:    key,
		requesterAdr: requester,
		fulfiller:    fulfiller,
		now:          now,
	}
	f.engine = NewEngine(mgr, ledger, accounts, func() time.Time { return f.now })
	return f
}

func (f *fixture) signedRequest(t *testing.T, amountA, amountB, expiration int64) SwapRequest {
	t.Helper()
	req := SwapRequest{
		Requester:  f.requesterAdr,
		AssetA:     "USDx",
		AssetB:     "EURx",
		AmountA:    big.NewInt(amountA),
		AmountB:    big.NewInt(amountB),
		Expiration: big.NewInt(expiration),
	}
	sig, err := f.requester.SignDigest(req.Digest())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	req.Signature = sig
	return req
}

func (f *fixture) balance(t *testing.T, symbol string, addr common.Address) int64 {
	t.Helper()
	bal, err := f.ledger.BalanceOf(symbol, addr)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return bal.Int64()
}

func TestSwapSettlesBothLegs(t *testing.T) {
	f := newFixture(t)
	req := f.signedRequest(t, 1000, 900, f.now.Unix()+3600)

	if err := f.engine.Swap(f.fulfiller, req); err != nil {
		t.Fatalf("swap: %v", err)
	}
	if got := f.balance(t, "USDX", f.requesterAdr); got != 1000 {
		t.Fatalf("requester USDX %d", got)
	}
	if got := f.balance(t, "USDX", f.fulfiller); got != 9000 {
		t.Fatalf("fulfiller USDX %d", got)
	}
	if got := f.balance(t, "EURX", f.requesterAdr); got != 9100 {
		t.Fatalf("requester EURX %d", got)
	}
	if got := f.balance(t, "EURX", f.fulfiller); got != 900 {
		t.Fatalf("fulfiller EURX %d", got)
	}
}

func TestSwapPaysRequesterInAssetA(t *testing.T) {
	f := newFixture(t)
	req := f.signedRequest(t, 1000, 900, f.now.Unix()+3600)

	before := f.balance(t, "USDX", f.requesterAdr)
	if err := f.engine.Swap(f.fulfiller, req); err != nil {
		t.Fatalf("swap: %v", err)
	}
	if got := f.balance(t, "USDX", f.requesterAdr); got != before+1000 {
		t.Fatalf("requester USDX went %d -> %d, want +1000", before, got)
	}
}

func TestSwapRejectsReplay(t *testing.T) {
	f := newFixture(t)
	req := f.signedRequest(t, 1000, 900, f.now.Unix()+3600)
	if err := f.engine.Swap(f.fulfiller, req); err != nil {
		t.Fatalf("swap: %v", err)
	}
	err := f.engine.Swap(f.fulfiller, req)
	if !errors.Is(err, ledgererr.ErrSignatureReplayed) {
		t.Fatalf("expected ErrSignatureReplayed, got %v", err)
	}
}

func TestSwapRejectsExpired(t *testing.T) {
	f := newFixture(t)
	req := f.signedRequest(t, 1000, 900, f.now.Unix()+60)
	f.now = f.now.Add(2 * time.Minute)
	err := f.engine.Swap(f.fulfiller, req)
	if !errors.Is(err, ledgererr.ErrSignatureExpired) {
		t.Fatalf("expected ErrSignatureExpired, got %v", err)
	}
}

func TestSwapRejectsTamperedAmount(t *testing.T) {
	f := newFixture(t)
	req := f.signedRequest(t, 1000, 900, f.now.Unix()+3600)
	req.AmountB = big.NewInt(1) // fulfiller tries to pay less than signed
	err := f.engine.Swap(f.fulfiller, req)
	if !errors.Is(err, ledgererr.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestSwapRejectsWrongSigner(t *testing.T) {
	f := newFixture(t)
	other, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	req := SwapRequest{
		Requester:  f.requesterAdr,
		AssetA:     "USDx",
		AssetB:     "EURx",
		AmountA:    big.NewInt(1000),
		AmountB:    big.NewInt(900),
		Expiration: big.NewInt(f.now.Unix() + 3600),
	}
	sig, err := other.SignDigest(req.Digest())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	req.Signature = sig
	if err := f.engine.Swap(f.fulfiller, req); !errors.Is(err, ledgererr.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestSwapRequiresFunds(t *testing.T) {
	f := newFixture(t)
	req := f.signedRequest(t, 1000, 20000, f.now.Unix()+3600)
	err := f.engine.Swap(f.fulfiller, req)
	if !errors.Is(err, ledgererr.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}
