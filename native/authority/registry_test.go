package authority

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	ledgererr "tokenledger/core/errors"
	"tokenledger/core/state"
	"tokenledger/storage"
)

var (
	rootAuthority = common.HexToAddress("0x8cb2cebb0070b231d4ba4d3b747acaebdfbbd142")
	secondAddr    = common.HexToAddress("0x0000000000000000000000000000000000000002")
	thirdAddr     = common.HexToAddress("0x0000000000000000000000000000000000000003")
)

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	store := state.NewStore(db)
	store.AllowWriter("test")
	reg := NewRegistry(store.Access("test"))
	if err := reg.Bootstrap("Token, Inc.", rootAuthority); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return reg
}

func TestBootstrapAuthority(t *testing.T) {
	reg := newRegistry(t)

	ok, err := reg.IsRegisteredToFirm("Token, Inc.", rootAuthority)
	if err != nil {
		t.Fatalf("isRegisteredToFirm: %v", err)
	}
	if !ok {
		t.Fatalf("bootstrap authority should be registered to its firm")
	}
	firm, err := reg.FirmFromAuthority(rootAuthority)
	if err != nil {
		t.Fatalf("firmFromAuthority: %v", err)
	}
	if firm != "Token, Inc." {
		t.Fatalf("unexpected firm %q", firm)
	}
	ok, err = reg.IsRegisteredAuthority(secondAddr)
	if err != nil {
		t.Fatalf("isRegisteredAuthority: %v", err)
	}
	if ok {
		t.Fatalf("unregistered address should not be an authority")
	}
}

func TestRegisterFirmRequiresAuthority(t *testing.T) {
	reg := newRegistry(t)

	if err := reg.RegisterFirm(secondAddr, "Test Firm, L.L.C.", true); !errors.Is(err, ledgererr.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := reg.RegisterFirm(rootAuthority, "Test Firm, L.L.C.", true); err != nil {
		t.Fatalf("register firm: %v", err)
	}
	ok, err := reg.IsRegisteredFirm("Test Firm, L.L.C.")
	if err != nil {
		t.Fatalf("isRegisteredFirm: %v", err)
	}
	if !ok {
		t.Fatalf("firm should be registered")
	}
}

func TestRegisterAuthorityAcrossFirms(t *testing.T) {
	reg := newRegistry(t)

	if err := reg.RegisterFirm(rootAuthority, "Test Firm, L.L.C.", true); err != nil {
		t.Fatalf("register firm: %v", err)
	}
	// An existing authority seeds the empty firm.
	if err := reg.RegisterAuthority(rootAuthority, "Test Firm, L.L.C.", secondAddr, true); err != nil {
		t.Fatalf("seed authority: %v", err)
	}
	// The seeded member can then grow its own firm.
	if err := reg.RegisterAuthority(secondAddr, "Test Firm, L.L.C.", thirdAddr, true); err != nil {
		t.Fatalf("member registration: %v", err)
	}
	ok, err := reg.IsRegisteredToFirm("Test Firm, L.L.C.", thirdAddr)
	if err != nil {
		t.Fatalf("isRegisteredToFirm: %v", err)
	}
	if !ok {
		t.Fatalf("third address should be registered to the firm")
	}
	// A non-member of a populated firm cannot add members to it.
	if err := reg.RegisterAuthority(rootAuthority, "Test Firm, L.L.C.", rootAuthority, true); !errors.Is(err, ledgererr.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for non-member of populated firm, got %v", err)
	}
}

func TestRegisterAuthorityUnknownFirm(t *testing.T) {
	reg := newRegistry(t)
	if err := reg.RegisterAuthority(rootAuthority, "Ghost Firm", secondAddr, true); err == nil {
		t.Fatalf("expected error for unregistered firm")
	}
}

func TestRevokeLastAuthorityPermitted(t *testing.T) {
	reg := newRegistry(t)

	if err := reg.RegisterAuthority(rootAuthority, "Token, Inc.", rootAuthority, false); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	ok, err := reg.IsRegisteredAuthority(rootAuthority)
	if err != nil {
		t.Fatalf("isRegisteredAuthority: %v", err)
	}
	if ok {
		t.Fatalf("revoked authority should no longer be registered")
	}
}

func TestRequireAuthority(t *testing.T) {
	reg := newRegistry(t)

	if err := reg.RequireAuthority(rootAuthority, "Token, Inc."); err != nil {
		t.Fatalf("requireAuthority: %v", err)
	}
	if err := reg.RequireAuthority(secondAddr, "Token, Inc."); !errors.Is(err, ledgererr.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}
