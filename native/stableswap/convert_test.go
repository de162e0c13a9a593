package stableswap

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"tokenledger/core/state"
	"tokenledger/native/authority"
	"tokenledger/native/fees"
	"tokenledger/native/registry"
	"tokenledger/native/token"
	"tokenledger/storage"
)

const testFirm = "Token, Inc."

var (
	authorityAddr = common.HexToAddress("0x8cb2cebb0070b231d4ba4d3b747acaebdfbbd142")
	alice         = common.HexToAddress("0x00000000000000000000000000000000000000aa")
)

type fixture struct {
	engine *Engine
	ledger *token.Ledger
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
	feeEngine := fees.NewEngine(mgr, auth)

	// TUSD is the reference currency, USDX a bank issue at another scale.
	for _, p := range []token.Params{
		{Name: "Token USD", Symbol: "TUSD", TLA: "USD", Version: "v0.1.3", Decimals: 18},
		{Name: "USD by token.io", Symbol: "USDx", TLA: "USD", Version: "v0.1.3", Decimals: 2},
	} {
		if err := ledger.Register(authorityAddr, testFirm, p); err != nil {
			t.Fatalf("register %s: %v", p.Symbol, err)
		}
	}
	if err := feeEngine.SetDefaultParams(authorityAddr, testFirm, fees.Params{
		Bps: big.NewInt(2), Min: big.NewInt(0), Max: big.NewInt(100), Flat: big.NewInt(2),
		Account: authorityAddr,
	}); err != nil {
		t.Fatalf("set fees: %v", err)
	}

	now := time.Unix(1_700_000_000, 0)
	for _, addr := range []common.Address{alice} {
		if err := accounts.ApproveKYC(authorityAddr, addr, true, big.NewInt(0), testFirm, now); err != nil {
			t.Fatalf("approve: %v", err)
		}
	}

	engine := NewEngine(mgr, ledger, accounts, feeEngine, auth)
	if err := engine.SetReferenceAsset(authorityAddr, testFirm, "TUSD"); err != nil {
		t.Fatalf("set reference: %v", err)
	}
	if err := engine.AllowAsset(authorityAddr, testFirm, "USDx"); err != nil {
		t.Fatalf("allow: %v", err)
	}
	return &fixture{engine: engine, ledger: ledger}
}

func (f *fixture) balance(t *testing.T, symbol string, addr common.Address) *big.Int {
	t.Helper()
	bal, err := f.ledger.BalanceOf(symbol, addr)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return bal
}

func TestConvertToReferenceMints(t *testing.T) {
	f := newFixture(t)
	if err := f.ledger.Deposit(authorityAddr, "USDX", alice, big.NewInt(10000), testFirm); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	res, err := f.engine.Convert(alice, "USDx", "TUSD", big.NewInt(10000))
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	// fee = 10000*2/10000 + 2 = 4, net = 9996, scaled to 18 decimals
	if res.Fee.Int64() != 4 {
		t.Fatalf("fee %s", res.Fee)
	}
	want := new(big.Int).Mul(big.NewInt(9996), new(big.Int).Exp(big.NewInt(10), big.NewInt(16), nil))
	if res.Output.Cmp(want) != 0 {
		t.Fatalf("output %s, want %s", res.Output, want)
	}
	if got := f.balance(t, "USDX", alice); got.Sign() != 0 {
		t.Fatalf("caller USDX %s", got)
	}
	if got := f.balance(t, "USDX", PoolAccount); got.Int64() != 10000 {
		t.Fatalf("pool USDX %s", got)
	}
	if got := f.balance(t, "TUSD", alice); got.Cmp(want) != 0 {
		t.Fatalf("caller TUSD %s", got)
	}
	supply, err := f.ledger.TotalSupply("TUSD")
	if err != nil {
		t.Fatalf("supply: %v", err)
	}
	if supply.Cmp(want) != 0 {
		t.Fatalf("TUSD supply %s", supply)
	}
}

func TestConvertRoundTripNeverGains(t *testing.T) {
	f := newFixture(t)
	if err := f.ledger.Deposit(authorityAddr, "USDX", alice, big.NewInt(10000), testFirm); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	out, err := f.engine.Convert(alice, "USDx", "TUSD", big.NewInt(10000))
	if err != nil {
		t.Fatalf("convert out: %v", err)
	}
	back, err := f.engine.Convert(alice, "TUSD", "USDx", out.Output)
	if err != nil {
		t.Fatalf("convert back: %v", err)
	}
	if back.Output.Int64() >= 10000 {
		t.Fatalf("round trip gained funds: %s", back.Output)
	}
	// per-asset conservation: pool holds what the caller gave up
	pool := f.balance(t, "USDX", PoolAccount)
	caller := f.balance(t, "USDX", alice)
	supply, err := f.ledger.TotalSupply("USDX")
	if err != nil {
		t.Fatalf("supply: %v", err)
	}
	total := new(big.Int).Add(pool, caller)
	if total.Cmp(supply) != 0 {
		t.Fatalf("USDX supply %s, balances %s", supply, total)
	}
}

func TestConvertRequiresReferenceLeg(t *testing.T) {
	f := newFixture(t)
	if err := f.ledger.Register(authorityAddr, testFirm, token.Params{
		Name: "USD by other bank", Symbol: "USDy", TLA: "USD", Version: "v0.1.3", Decimals: 2,
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := f.engine.AllowAsset(authorityAddr, testFirm, "USDy"); err != nil {
		t.Fatalf("allow: %v", err)
	}
	if err := f.ledger.Deposit(authorityAddr, "USDX", alice, big.NewInt(10000), testFirm); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := f.engine.Convert(alice, "USDx", "USDy", big.NewInt(10000)); err == nil {
		t.Fatalf("expected rejection without reference leg")
	}
}

func TestConvertRejectsMixedDenominations(t *testing.T) {
	f := newFixture(t)
	if err := f.ledger.Register(authorityAddr, testFirm, token.Params{
		Name: "EUR by token.io", Symbol: "EURx", TLA: "EUR", Version: "v0.1.3", Decimals: 2,
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := f.engine.AllowAsset(authorityAddr, testFirm, "EURx"); err != nil {
		t.Fatalf("allow: %v", err)
	}
	if _, err := f.engine.Convert(alice, "EURx", "TUSD", big.NewInt(10000)); err == nil {
		t.Fatalf("expected rejection across denominations")
	}
}

func TestConvertRejectsUnadmittedAsset(t *testing.T) {
	f := newFixture(t)
	if err := f.ledger.Register(authorityAddr, testFirm, token.Params{
		Name: "USD by other bank", Symbol: "USDy", TLA: "USD", Version: "v0.1.3", Decimals: 2,
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := f.engine.Convert(alice, "USDy", "TUSD", big.NewInt(10000)); err == nil {
		t.Fatalf("expected rejection of unadmitted currency")
	}
}

func TestConvertFromReferenceNeedsPoolFunds(t *testing.T) {
	f := newFixture(t)
	amount := new(big.Int).Exp(big.NewInt(10), big.NewInt(20), nil)
	if err := f.ledger.Deposit(authorityAddr, "TUSD", alice, amount, testFirm); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	// pool never received USDX, so releasing it must fail
	if _, err := f.engine.Convert(alice, "TUSD", "USDx", amount); err == nil {
		t.Fatalf("expected failure when pool lacks the target currency")
	}
}
