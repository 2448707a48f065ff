package store

import (
	"context"
	"errors"
	"testing"

	"github.com/swiftremit/swiftremit/internal/errs"
	"github.com/swiftremit/swiftremit/internal/ledgertime"
)

func TestMemoryStore_RoundTrip(t *testing.T) {
	clock := &ledgertime.Manual{Now: 1000}
	m := NewMemoryStore(clock)
	ctx := context.Background()

	key := K(KindRemittance, "1")
	if err := m.Set(ctx, key, map[string]int{"amount": 42}); err != nil {
		t.Fatal(err)
	}

	var got map[string]int
	ok, err := m.Get(ctx, key, &got)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if got["amount"] != 42 {
		t.Errorf("got %v", got)
	}

	has, _ := m.Has(ctx, key)
	if !has {
		t.Error("Has = false after Set")
	}

	if err := m.Remove(ctx, key); err != nil {
		t.Fatal(err)
	}
	has, _ = m.Has(ctx, key)
	if has {
		t.Error("Has = true after Remove")
	}
}

func TestMemoryStore_MissingKey(t *testing.T) {
	m := NewMemoryStore(&ledgertime.Manual{})
	var dest int
	ok, err := m.Get(context.Background(), K(KindPaused), &dest)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected miss for absent key")
	}
}

func TestMemoryStore_DecodeMismatchIsDataCorruption(t *testing.T) {
	m := NewMemoryStore(&ledgertime.Manual{})
	ctx := context.Background()

	key := K(KindFeeStrategy)
	if err := m.Set(ctx, key, "not a number"); err != nil {
		t.Fatal(err)
	}
	var dest uint64
	_, err := m.Get(ctx, key, &dest)
	if !errors.Is(err, errs.DataCorruption) {
		t.Fatalf("expected DataCorruption, got %v", err)
	}
}

func TestMemoryStore_TemporaryTTL(t *testing.T) {
	clock := &ledgertime.Manual{Now: 1000}
	m := NewMemoryStore(clock)
	ctx := context.Background()

	key := K(KindRateLimitWindow, "0xabc")
	if err := m.SetTTL(ctx, key, 3, 1060); err != nil {
		t.Fatal(err)
	}

	has, _ := m.Has(ctx, key)
	if !has {
		t.Fatal("expected record before expiry")
	}

	clock.Advance(60)
	has, _ = m.Has(ctx, key)
	if has {
		t.Fatal("expected record to lapse at expiry")
	}

	if n := m.Sweep(); n != 1 {
		t.Errorf("Sweep = %d, want 1", n)
	}
}

func TestMemoryStore_TransactionCommit(t *testing.T) {
	m := NewMemoryStore(&ledgertime.Manual{Now: 1})
	ctx := context.Background()

	err := m.RunInTransaction(ctx, func(tx Tx) error {
		if err := tx.Set(ctx, K(KindRemittanceCounter), uint64(7)); err != nil {
			return err
		}
		// Reads inside the transaction observe earlier writes.
		var n uint64
		ok, err := tx.Get(ctx, K(KindRemittanceCounter), &n)
		if err != nil || !ok || n != 7 {
			t.Errorf("in-tx read: ok=%v n=%d err=%v", ok, n, err)
		}
		return tx.Set(ctx, K(KindRemittance, "7"), "payload")
	})
	if err != nil {
		t.Fatal(err)
	}

	var n uint64
	ok, _ := m.Get(ctx, K(KindRemittanceCounter), &n)
	if !ok || n != 7 {
		t.Errorf("after commit: ok=%v n=%d", ok, n)
	}
}

func TestMemoryStore_TransactionRollback(t *testing.T) {
	m := NewMemoryStore(&ledgertime.Manual{Now: 1})
	ctx := context.Background()

	if err := m.Set(ctx, K(KindPaused), false); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("boom")
	err := m.RunInTransaction(ctx, func(tx Tx) error {
		_ = tx.Set(ctx, K(KindPaused), true)
		_ = tx.Set(ctx, K(KindRemittance, "1"), "half-written")
		_ = tx.Remove(ctx, K(KindPaused))
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error back, got %v", err)
	}

	var paused bool
	ok, _ := m.Get(ctx, K(KindPaused), &paused)
	if !ok || paused {
		t.Errorf("rollback leaked: ok=%v paused=%v", ok, paused)
	}
	has, _ := m.Has(ctx, K(KindRemittance, "1"))
	if has {
		t.Error("rollback leaked remittance write")
	}
}

func TestMemoryStore_TransactionRemoveThenSet(t *testing.T) {
	m := NewMemoryStore(&ledgertime.Manual{Now: 1})
	ctx := context.Background()
	key := K(KindAgent, "0xdef")

	_ = m.Set(ctx, key, true)
	err := m.RunInTransaction(ctx, func(tx Tx) error {
		_ = tx.Remove(ctx, key)
		has, _ := tx.Has(ctx, key)
		if has {
			t.Error("Has = true after in-tx Remove")
		}
		return tx.Set(ctx, key, false)
	})
	if err != nil {
		t.Fatal(err)
	}

	var v bool
	ok, _ := m.Get(ctx, key, &v)
	if !ok || v {
		t.Errorf("want committed false, got ok=%v v=%v", ok, v)
	}
}

func TestKeyTiers(t *testing.T) {
	if K(KindPaused).Tier() != Instance {
		t.Error("paused flag must be instance tier")
	}
	if K(KindRemittance, "1").Tier() != Persistent {
		t.Error("remittances must be persistent tier")
	}
	if K(KindRateLimitWindow, "a").Tier() != Temporary {
		t.Error("rate-limit windows must be temporary tier")
	}
	if got := K(KindCorridor, "US", "MX").String(); got != "corridor/US/MX" {
		t.Errorf("composite key = %q", got)
	}
}
