package authority

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	ledgererr "tokenledger/core/errors"
	"tokenledger/core/state"
)

// Registry tracks registered firms and the authority addresses acting on
// their behalf. An address belongs to at most one firm at a time.
//
// Known policy gap carried over from the source system: revoking the last
// remaining authority of a firm is permitted, leaving the firm orphaned.
type Registry struct {
	st *state.Manager
}

// NewRegistry binds the registry to the supplied state manager.
func NewRegistry(st *state.Manager) *Registry {
	return &Registry{st: st}
}

// Bootstrap installs the very first firm and authority at initialization,
// bypassing the caller checks that every later registration goes through.
func (r *Registry) Bootstrap(firm string, addr common.Address) error {
	firm = state.NormalizeFirm(firm)
	if firm == "" {
		return fmt.Errorf("authority: bootstrap firm name required")
	}
	if err := r.st.SetBool(state.FirmKey(firm), true); err != nil {
		return err
	}
	return r.grant(firm, addr)
}

// RegisterFirm toggles a firm's registration. The caller must itself be a
// registered authority. The operation is idempotent.
func (r *Registry) RegisterFirm(caller common.Address, firm string, active bool) error {
	registered, err := r.IsRegisteredAuthority(caller)
	if err != nil {
		return err
	}
	if !registered {
		return fmt.Errorf("authority: register firm %q: %w", firm, ledgererr.ErrUnauthorized)
	}
	firm = state.NormalizeFirm(firm)
	if firm == "" {
		return fmt.Errorf("authority: firm name required")
	}
	return r.st.SetBool(state.FirmKey(firm), active)
}

// RegisterAuthority grants or revokes an address's membership in a firm. The
// caller must be an authority of that firm; a firm with no authorities yet
// accepts any registered authority as the caller, otherwise no firm could
// ever receive its first member.
func (r *Registry) RegisterAuthority(caller common.Address, firm string, addr common.Address, active bool) error {
	firm = state.NormalizeFirm(firm)
	firmActive, err := r.IsRegisteredFirm(firm)
	if err != nil {
		return err
	}
	if !firmActive {
		return fmt.Errorf("authority: firm %q not registered", firm)
	}
	allowed, err := r.IsRegisteredToFirm(firm, caller)
	if err != nil {
		return err
	}
	if !allowed {
		count, err := r.authorityCount(firm)
		if err != nil {
			return err
		}
		callerRegistered, err := r.IsRegisteredAuthority(caller)
		if err != nil {
			return err
		}
		allowed = count == 0 && callerRegistered
	}
	if !allowed {
		return fmt.Errorf("authority: register authority for %q: %w", firm, ledgererr.ErrUnauthorized)
	}
	if active {
		return r.grant(firm, addr)
	}
	return r.revoke(firm, addr)
}

func (r *Registry) grant(firm string, addr common.Address) error {
	current, err := r.FirmFromAuthority(addr)
	if err != nil {
		return err
	}
	if current != "" && current != firm {
		// Re-assignment clears the old membership first.
		if err := r.revoke(current, addr); err != nil {
			return err
		}
	}
	member, err := r.st.GetBool(state.FirmMemberKey(firm, addr))
	if err != nil {
		return err
	}
	if member {
		return nil
	}
	if err := r.st.SetBool(state.FirmMemberKey(firm, addr), true); err != nil {
		return err
	}
	if err := r.st.SetBool(state.AuthorityRegisteredKey(addr), true); err != nil {
		return err
	}
	if err := r.st.SetString(state.AuthorityFirmKey(addr), firm); err != nil {
		return err
	}
	return r.adjustCount(firm, 1)
}

func (r *Registry) revoke(firm string, addr common.Address) error {
	member, err := r.st.GetBool(state.FirmMemberKey(firm, addr))
	if err != nil {
		return err
	}
	if !member {
		return nil
	}
	if err := r.st.Delete(state.FirmMemberKey(firm, addr)); err != nil {
		return err
	}
	if err := r.st.Delete(state.AuthorityRegisteredKey(addr)); err != nil {
		return err
	}
	if err := r.st.Delete(state.AuthorityFirmKey(addr)); err != nil {
		return err
	}
	return r.adjustCount(firm, -1)
}

func (r *Registry) authorityCount(firm string) (uint64, error) {
	count, err := r.st.GetUint(state.FirmAuthorityCountKey(firm))
	if err != nil {
		return 0, err
	}
	return count.Uint64(), nil
}

func (r *Registry) adjustCount(firm string, delta int64) error {
	count, err := r.authorityCount(firm)
	if err != nil {
		return err
	}
	next := int64(count) + delta
	if next < 0 {
		next = 0
	}
	return r.st.SetUint(state.FirmAuthorityCountKey(firm), big.NewInt(next))
}

// IsRegisteredFirm reports whether the firm is registered and active.
func (r *Registry) IsRegisteredFirm(firm string) (bool, error) {
	return r.st.GetBool(state.FirmKey(firm))
}

// IsRegisteredAuthority reports whether the address belongs to any firm.
func (r *Registry) IsRegisteredAuthority(addr common.Address) (bool, error) {
	return r.st.GetBool(state.AuthorityRegisteredKey(addr))
}

// IsRegisteredToFirm reports whether the address is an authority of the firm.
func (r *Registry) IsRegisteredToFirm(firm string, addr common.Address) (bool, error) {
	member, err := r.st.GetBool(state.FirmMemberKey(firm, addr))
	if err != nil {
		return false, err
	}
	if !member {
		return false, nil
	}
	return r.IsRegisteredFirm(firm)
}

// FirmFromAuthority returns the firm the address belongs to, or "".
func (r *Registry) FirmFromAuthority(addr common.Address) (string, error) {
	return r.st.GetString(state.AuthorityFirmKey(addr))
}

// RequireAuthority is the capability guard applied before every privileged
// mutation: the caller must be an active authority of the named firm.
func (r *Registry) RequireAuthority(caller common.Address, firm string) error {
	ok, err := r.IsRegisteredToFirm(firm, caller)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("authority: caller %s not an authority of %q: %w", caller.Hex(), firm, ledgererr.ErrUnauthorized)
	}
	return nil
}
