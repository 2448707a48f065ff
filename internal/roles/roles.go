// Package roles implements role-based authorization for the engine.
//
// Roles are additive: a principal may hold any subset of {Admin, Settler}.
// The set of Admin holders is never allowed to become empty once the engine
// is initialized.
package roles

import (
	"context"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/swiftremit/swiftremit/internal/errs"
	"github.com/swiftremit/swiftremit/internal/store"
)

// Role names a grantable capability.
type Role string

const (
	Admin   Role = "admin"
	Settler Role = "settler"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == Admin || r == Settler
}

// Authorizer is the host's principal-authentication hook. RequireAuth
// aborts the entry point unless the host verified that the principal
// authorized this invocation.
type Authorizer interface {
	RequireAuth(ctx context.Context, principal common.Address) error
}

// AddrKey normalizes an address for use in storage keys.
func AddrKey(a common.Address) string {
	return strings.ToLower(a.Hex())
}

func membersKey(r Role) store.Key {
	return store.K(store.KindRole, string(r))
}

// Members returns the addresses holding a role, in key order.
func Members(ctx context.Context, s store.Store, r Role) ([]common.Address, error) {
	var keys []string
	if _, err := s.Get(ctx, membersKey(r), &keys); err != nil {
		return nil, err
	}
	out := make([]common.Address, 0, len(keys))
	for _, k := range keys {
		out = append(out, common.HexToAddress(k))
	}
	return out, nil
}

// Has reports whether addr holds the role.
func Has(ctx context.Context, s store.Store, addr common.Address, r Role) (bool, error) {
	var keys []string
	if _, err := s.Get(ctx, membersKey(r), &keys); err != nil {
		return false, err
	}
	k := AddrKey(addr)
	for _, m := range keys {
		if m == k {
			return true, nil
		}
	}
	return false, nil
}

// Require returns Unauthorized unless addr holds the role.
func Require(ctx context.Context, s store.Store, addr common.Address, r Role) error {
	ok, err := Has(ctx, s, addr, r)
	if err != nil {
		return err
	}
	if !ok {
		return errs.Unauthorized
	}
	return nil
}

// Grant assigns the role to addr. Granting an already-held role is a no-op.
func Grant(ctx context.Context, tx store.Tx, addr common.Address, r Role) error {
	if !r.Valid() {
		return errs.InvalidSymbol
	}
	var keys []string
	if _, err := tx.Get(ctx, membersKey(r), &keys); err != nil {
		return err
	}
	k := AddrKey(addr)
	for _, m := range keys {
		if m == k {
			return nil
		}
	}
	keys = append(keys, k)
	sort.Strings(keys)
	return tx.Set(ctx, membersKey(r), keys)
}

// Revoke removes the role from addr. Revoking the last Admin is rejected
// so the engine can never be locked out of administration.
func Revoke(ctx context.Context, tx store.Tx, addr common.Address, r Role) error {
	if !r.Valid() {
		return errs.InvalidSymbol
	}
	var keys []string
	if _, err := tx.Get(ctx, membersKey(r), &keys); err != nil {
		return err
	}
	k := AddrKey(addr)
	idx := -1
	for i, m := range keys {
		if m == k {
			idx = i
			break
		}
	}
	if idx < 0 {
		if r == Admin {
			return errs.AdminNotFound
		}
		return errs.KeyNotFound
	}
	if r == Admin && len(keys) == 1 {
		return errs.CannotRemoveLastAdmin
	}
	keys = append(keys[:idx], keys[idx+1:]...)
	return tx.Set(ctx, membersKey(r), keys)
}

// StaticAuthorizer authorizes a fixed set of principals. Used in tests and
// demo mode where every caller in the set is considered authenticated.
type StaticAuthorizer map[common.Address]bool

func (a StaticAuthorizer) RequireAuth(ctx context.Context, principal common.Address) error {
	if !a[principal] {
		return errs.Unauthorized
	}
	return nil
}

// AllowAll authorizes every principal. Demo mode only.
type AllowAll struct{}

func (AllowAll) RequireAuth(ctx context.Context, principal common.Address) error { return nil }
