package fees

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	ledgererr "tokenledger/core/errors"
	"tokenledger/core/state"
	"tokenledger/native/authority"
	"tokenledger/storage"
)

const testFirm = "Token, Inc."

var (
	authorityAddr = common.HexToAddress("0x8cb2cebb0070b231d4ba4d3b747acaebdfbbd142")
	feeSink       = common.HexToAddress("0x00000000000000000000000000000000000000fe")
)

func newEngine(t *testing.T) *Engine {
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
	return NewEngine(mgr, auth)
}

func defaultParams() Params {
	return Params{
		Bps:     big.NewInt(2),
		Min:     big.NewInt(0),
		Max:     big.NewInt(100),
		Flat:    big.NewInt(2),
		Account: feeSink,
	}
}

func TestSetDefaultParamsRequiresAuthority(t *testing.T) {
	engine := newEngine(t)
	stranger := common.HexToAddress("0x0000000000000000000000000000000000000099")
	err := engine.SetDefaultParams(stranger, testFirm, defaultParams())
	if !errors.Is(err, ledgererr.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestCalculateDefaultSchedule(t *testing.T) {
	engine := newEngine(t)
	if err := engine.SetDefaultParams(authorityAddr, testFirm, defaultParams()); err != nil {
		t.Fatalf("set defaults: %v", err)
	}
	cases := []struct {
		amount int64
		fee    int64
	}{
		{0, 2},
		{100, 2},
		{10000, 4},
		{25000, 7},
		{1000000, 100}, // capped at max
	}
	for _, tc := range cases {
		fee, err := engine.Calculate("USDX", big.NewInt(tc.amount))
		if err != nil {
			t.Fatalf("calculate %d: %v", tc.amount, err)
		}
		if fee.Int64() != tc.fee {
			t.Fatalf("amount %d: expected fee %d, got %s", tc.amount, tc.fee, fee)
		}
	}
}

func TestPerAssetOverridesDefault(t *testing.T) {
	engine := newEngine(t)
	if err := engine.SetDefaultParams(authorityAddr, testFirm, defaultParams()); err != nil {
		t.Fatalf("set defaults: %v", err)
	}
	override := Params{
		Bps:  big.NewInt(50),
		Min:  big.NewInt(10),
		Max:  big.NewInt(0),
		Flat: big.NewInt(0),
	}
	if err := engine.SetAssetParams(authorityAddr, testFirm, "EURX", override); err != nil {
		t.Fatalf("set asset params: %v", err)
	}

	fee, err := engine.Calculate("EURX", big.NewInt(10000))
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if fee.Int64() != 50 {
		t.Fatalf("expected override fee 50, got %s", fee)
	}
	// min floor kicks in below 2000
	fee, err = engine.Calculate("EURX", big.NewInt(100))
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if fee.Int64() != 10 {
		t.Fatalf("expected floored fee 10, got %s", fee)
	}
	// max of zero means unbounded
	fee, err = engine.Calculate("EURX", big.NewInt(10_000_000))
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if fee.Int64() != 50000 {
		t.Fatalf("expected uncapped fee 50000, got %s", fee)
	}
	// other currencies still follow the default schedule
	fee, err = engine.Calculate("USDX", big.NewInt(10000))
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if fee.Int64() != 4 {
		t.Fatalf("expected default fee 4, got %s", fee)
	}
}

func TestNoScheduleMeansZeroFee(t *testing.T) {
	engine := newEngine(t)
	fee, err := engine.Calculate("USDX", big.NewInt(123456))
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if fee.Sign() != 0 {
		t.Fatalf("expected zero fee, got %s", fee)
	}
}

func TestSinkResolution(t *testing.T) {
	engine := newEngine(t)
	if err := engine.SetDefaultParams(authorityAddr, testFirm, defaultParams()); err != nil {
		t.Fatalf("set defaults: %v", err)
	}
	sink, err := engine.SinkFor("USDX")
	if err != nil {
		t.Fatalf("sink: %v", err)
	}
	if sink != feeSink {
		t.Fatalf("expected default sink %s, got %s", feeSink, sink)
	}

	assetSink := common.HexToAddress("0x00000000000000000000000000000000000000ff")
	params := defaultParams()
	params.Account = assetSink
	if err := engine.SetAssetParams(authorityAddr, testFirm, "EURX", params); err != nil {
		t.Fatalf("set asset params: %v", err)
	}
	sink, err = engine.SinkFor("EURX")
	if err != nil {
		t.Fatalf("sink: %v", err)
	}
	if sink != assetSink {
		t.Fatalf("expected asset sink %s, got %s", assetSink, sink)
	}
}

func TestRejectsNegativeParams(t *testing.T) {
	engine := newEngine(t)
	params := defaultParams()
	params.Flat = big.NewInt(-1)
	if err := engine.SetDefaultParams(authorityAddr, testFirm, params); err == nil {
		t.Fatalf("expected error for negative flat fee")
	}
}
