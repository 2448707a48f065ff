package roles

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/swiftremit/swiftremit/internal/errs"
	"github.com/swiftremit/swiftremit/internal/ledgertime"
	"github.com/swiftremit/swiftremit/internal/store"
)

var (
	alice = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	bob   = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
)

func testStore() *store.MemoryStore {
	return store.NewMemoryStore(&ledgertime.Manual{Now: 1})
}

func grant(t *testing.T, s *store.MemoryStore, addr common.Address, r Role) {
	t.Helper()
	err := s.RunInTransaction(context.Background(), func(tx store.Tx) error {
		return Grant(context.Background(), tx, addr, r)
	})
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
}

func TestGrantAndRequire(t *testing.T) {
	s := testStore()
	ctx := context.Background()

	grant(t, s, alice, Admin)

	if err := Require(ctx, s, alice, Admin); err != nil {
		t.Errorf("admin check failed: %v", err)
	}
	if err := Require(ctx, s, bob, Admin); !errors.Is(err, errs.Unauthorized) {
		t.Errorf("expected Unauthorized for bob, got %v", err)
	}

	// Roles are additive and independent.
	if err := Require(ctx, s, alice, Settler); !errors.Is(err, errs.Unauthorized) {
		t.Errorf("admin must not imply settler, got %v", err)
	}

	// Double grant is a no-op.
	grant(t, s, alice, Admin)
	members, err := Members(ctx, s, Admin)
	if err != nil {
		t.Fatal(err)
	}
	if len(members) != 1 {
		t.Errorf("members = %d, want 1", len(members))
	}
}

func TestRevokeLastAdminRejected(t *testing.T) {
	s := testStore()
	ctx := context.Background()
	grant(t, s, alice, Admin)

	err := s.RunInTransaction(ctx, func(tx store.Tx) error {
		return Revoke(ctx, tx, alice, Admin)
	})
	if !errors.Is(err, errs.CannotRemoveLastAdmin) {
		t.Fatalf("expected CannotRemoveLastAdmin, got %v", err)
	}

	// With a second admin the revoke goes through.
	grant(t, s, bob, Admin)
	err = s.RunInTransaction(ctx, func(tx store.Tx) error {
		return Revoke(ctx, tx, alice, Admin)
	})
	if err != nil {
		t.Fatalf("revoke with two admins: %v", err)
	}
	if err := Require(ctx, s, alice, Admin); !errors.Is(err, errs.Unauthorized) {
		t.Error("alice still admin after revoke")
	}
	if err := Require(ctx, s, bob, Admin); err != nil {
		t.Error("bob lost admin unexpectedly")
	}
}

func TestRevokeUnheldRole(t *testing.T) {
	s := testStore()
	ctx := context.Background()
	grant(t, s, alice, Admin)

	err := s.RunInTransaction(ctx, func(tx store.Tx) error {
		return Revoke(ctx, tx, bob, Admin)
	})
	if !errors.Is(err, errs.AdminNotFound) {
		t.Errorf("expected AdminNotFound, got %v", err)
	}

	err = s.RunInTransaction(ctx, func(tx store.Tx) error {
		return Revoke(ctx, tx, bob, Settler)
	})
	if !errors.Is(err, errs.KeyNotFound) {
		t.Errorf("expected KeyNotFound, got %v", err)
	}
}

func TestStaticAuthorizer(t *testing.T) {
	auth := StaticAuthorizer{alice: true}
	ctx := context.Background()
	if err := auth.RequireAuth(ctx, alice); err != nil {
		t.Error(err)
	}
	if err := auth.RequireAuth(ctx, bob); !errors.Is(err, errs.Unauthorized) {
		t.Errorf("expected Unauthorized, got %v", err)
	}
}
