package remit

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/swiftremit/swiftremit/internal/admin"
	"github.com/swiftremit/swiftremit/internal/errs"
	"github.com/swiftremit/swiftremit/internal/event"
	"github.com/swiftremit/swiftremit/internal/ledgertime"
	"github.com/swiftremit/swiftremit/internal/lifecycle"
	"github.com/swiftremit/swiftremit/internal/roles"
	"github.com/swiftremit/swiftremit/internal/store"
	"github.com/swiftremit/swiftremit/internal/token"
)

var (
	partyA = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	partyB = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

// newNettingEngine initializes an engine with zero fees so netting sums are
// easy to follow, and registers both parties as agents.
func newNettingEngine(t *testing.T) *engine {
	t.Helper()
	clock := &ledgertime.Manual{Now: 1_700_000_000}
	st := store.NewMemoryStore(clock)
	tok := token.NewMemory()
	log := event.NewMemoryLog()
	auth := roles.AllowAll{}
	ctx := context.Background()

	adm := admin.NewService(st, tok, clock, auth, log, custody)
	if err := adm.Initialize(ctx, admin.InitializeRequest{
		Admin:          adminAddr,
		TokenAddress:   "0x036cbd53842c5426634e7929541ec2318f3dcf7e",
		FeeBps:         0,
		ProtocolFeeBps: 0,
	}); err != nil {
		t.Fatal(err)
	}
	for _, agent := range []common.Address{partyA, partyB} {
		if err := adm.RegisterAgent(ctx, adminAddr, agent); err != nil {
			t.Fatal(err)
		}
	}

	tok.Mint(partyA, big.NewInt(1_000_000_000))
	tok.Mint(partyB, big.NewInt(1_000_000_000))

	return &engine{
		remits: NewService(st, tok, clock, auth, log, custody),
		admin:  adm,
		store:  st,
		token:  tok,
		log:    log,
		clock:  clock,
	}
}

func (e *engine) createBetween(t *testing.T, sender, agent common.Address, amount int64) uint64 {
	t.Helper()
	id, err := e.remits.Create(context.Background(), CreateRequest{
		Sender: sender,
		Agent:  agent,
		Amount: big.NewInt(amount),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := e.remits.StartProcessing(context.Background(), agent, id); err != nil {
		t.Fatalf("start: %v", err)
	}
	return id
}

func TestBatchSettle_PerfectlyNettedPairMovesNothing(t *testing.T) {
	e := newNettingEngine(t)
	ctx := context.Background()

	ids := []uint64{
		e.createBetween(t, partyA, partyB, 100_000_000),
		e.createBetween(t, partyA, partyB, 100_000_000),
		e.createBetween(t, partyB, partyA, 100_000_000),
		e.createBetween(t, partyB, partyA, 100_000_000),
	}

	balA := e.balance(t, partyA)
	balB := e.balance(t, partyB)

	settled, err := e.remits.BatchSettle(ctx, partyA, ids)
	if err != nil {
		t.Fatalf("batch settle: %v", err)
	}
	if len(settled) != 4 {
		t.Fatalf("settled %d legs", len(settled))
	}

	// Flows cancel exactly: zero settlement-time transfers.
	if got := e.balance(t, partyA); got != balA {
		t.Errorf("partyA moved: %d -> %d", balA, got)
	}
	if got := e.balance(t, partyB); got != balB {
		t.Errorf("partyB moved: %d -> %d", balB, got)
	}

	// All four legs terminal, counted, and evented exactly once.
	for _, id := range ids {
		r, _ := e.remits.Get(ctx, id)
		if r.Status != lifecycle.Completed {
			t.Errorf("leg %d status = %s", id, r.Status)
		}
		settledMark, _ := e.remits.SettlementHash(ctx, id)
		if !settledMark {
			t.Errorf("leg %d missing settlement hash", id)
		}
	}
	counter, _ := e.remits.SettlementCounter(ctx)
	if counter != 4 {
		t.Errorf("settlement counter = %d, want 4", counter)
	}
	if n := len(e.log.ByTopic(event.TopicSettleComplete)); n != 4 {
		t.Errorf("settle.complete events = %d, want 4", n)
	}
}

func TestBatchSettle_AsymmetricFlowsNetToOneTransfer(t *testing.T) {
	e := newNettingEngine(t)
	ctx := context.Background()

	// A→B 50, B→A 20: net A→B 30, exactly one transfer.
	ids := []uint64{
		e.createBetween(t, partyA, partyB, 50_000_000),
		e.createBetween(t, partyB, partyA, 20_000_000),
	}

	balA := e.balance(t, partyA)
	balB := e.balance(t, partyB)

	if _, err := e.remits.BatchSettle(ctx, partyB, ids); err != nil {
		t.Fatal(err)
	}

	if got := e.balance(t, partyA); got != balA-30_000_000 {
		t.Errorf("partyA = %d, want %d", got, balA-30_000_000)
	}
	if got := e.balance(t, partyB); got != balB+30_000_000 {
		t.Errorf("partyB = %d, want %d", got, balB+30_000_000)
	}
}

func TestBatchSettle_SizeBounds(t *testing.T) {
	e := newNettingEngine(t)
	ctx := context.Background()

	if _, err := e.remits.BatchSettle(ctx, partyA, nil); !errors.Is(err, errs.InvalidBatchSize) {
		t.Errorf("empty batch: %v", err)
	}

	oversize := make([]uint64, MaxBatchSize+1)
	for i := range oversize {
		oversize[i] = uint64(i + 1)
	}
	if _, err := e.remits.BatchSettle(ctx, partyA, oversize); !errors.Is(err, errs.InvalidBatchSize) {
		t.Errorf("oversized batch: %v", err)
	}
}

func TestBatchSettle_DuplicateIDsRejectedAtomically(t *testing.T) {
	e := newNettingEngine(t)
	ctx := context.Background()

	id := e.createBetween(t, partyA, partyB, 10_000_000)
	_, err := e.remits.BatchSettle(ctx, partyA, []uint64{id, id})
	if !errors.Is(err, errs.InvalidBatchSize) {
		t.Fatalf("duplicate ids: %v", err)
	}

	r, _ := e.remits.Get(ctx, id)
	if r.Status != lifecycle.Processing {
		t.Errorf("rejected batch mutated leg: %s", r.Status)
	}
}

func TestBatchSettle_OneBadLegAbortsAll(t *testing.T) {
	e := newNettingEngine(t)
	ctx := context.Background()

	good := e.createBetween(t, partyA, partyB, 10_000_000)

	// A leg still in Pending poisons the whole batch.
	pending, err := e.remits.Create(ctx, CreateRequest{
		Sender: partyA, Agent: partyB, Amount: big.NewInt(5_000_000),
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = e.remits.BatchSettle(ctx, partyA, []uint64{good, pending})
	if !errors.Is(err, errs.InvalidStatus) {
		t.Fatalf("expected InvalidStatus, got %v", err)
	}

	// Neither leg settled.
	counter, _ := e.remits.SettlementCounter(ctx)
	if counter != 0 {
		t.Errorf("settlement counter = %d after aborted batch", counter)
	}
	r, _ := e.remits.Get(ctx, good)
	if r.Status != lifecycle.Processing {
		t.Errorf("good leg mutated: %s", r.Status)
	}
	if n := len(e.log.ByTopic(event.TopicSettleComplete)); n != 0 {
		t.Errorf("events leaked from aborted batch: %d", n)
	}
}

func TestBatchSettle_AlreadySettledLegRejected(t *testing.T) {
	e := newNettingEngine(t)
	ctx := context.Background()

	id := e.createBetween(t, partyA, partyB, 10_000_000)
	if err := e.remits.ConfirmPayout(ctx, partyB, id); err != nil {
		t.Fatal(err)
	}

	other := e.createBetween(t, partyA, partyB, 5_000_000)
	_, err := e.remits.BatchSettle(ctx, partyA, []uint64{id, other})
	if !errors.Is(err, errs.DuplicateSettlement) {
		t.Fatalf("expected DuplicateSettlement, got %v", err)
	}
}

func TestBatchSettle_FeesAccrueAcrossLegs(t *testing.T) {
	e := newNettingEngine(t)
	ctx := context.Background()

	// Switch to a 1% platform fee; legs created afterwards carry it.
	if err := e.admin.UpdateFee(ctx, adminAddr, 100); err != nil {
		t.Fatal(err)
	}

	ids := []uint64{
		e.createBetween(t, partyA, partyB, 10_000_000),
		e.createBetween(t, partyB, partyA, 10_000_000),
	}
	if _, err := e.remits.BatchSettle(ctx, partyA, ids); err != nil {
		t.Fatal(err)
	}

	// 1% of each 10M leg.
	accrued, _ := e.remits.AccumulatedFees(ctx)
	if accrued.Int64() != 200_000 {
		t.Errorf("accumulated fees = %d, want 200000", accrued.Int64())
	}
}

func TestBatchSettle_RequiresSettlerRole(t *testing.T) {
	e := newNettingEngine(t)
	ctx := context.Background()

	id := e.createBetween(t, partyA, partyB, 10_000_000)
	stranger := common.HexToAddress("0x7777777777777777777777777777777777777777")
	_, err := e.remits.BatchSettle(ctx, stranger, []uint64{id})
	if !errors.Is(err, errs.Unauthorized) {
		t.Fatalf("expected Unauthorized, got %v", err)
	}
}

func TestBatchSettle_UnknownIDRejected(t *testing.T) {
	e := newNettingEngine(t)
	_, err := e.remits.BatchSettle(context.Background(), partyA, []uint64{42})
	if !errors.Is(err, errs.RemittanceNotFound) {
		t.Fatalf("expected RemittanceNotFound, got %v", err)
	}
}
