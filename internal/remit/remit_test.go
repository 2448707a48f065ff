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
	"github.com/swiftremit/swiftremit/internal/fees"
	"github.com/swiftremit/swiftremit/internal/guards"
	"github.com/swiftremit/swiftremit/internal/ledgertime"
	"github.com/swiftremit/swiftremit/internal/lifecycle"
	"github.com/swiftremit/swiftremit/internal/roles"
	"github.com/swiftremit/swiftremit/internal/store"
	"github.com/swiftremit/swiftremit/internal/token"
)

var (
	adminAddr = common.HexToAddress("0xadadadadadadadadadadadadadadadadadadadad")
	custody   = common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")
	senderS   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	agentA    = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

type engine struct {
	remits *Service
	admin  *admin.Service
	store  *store.MemoryStore
	token  *token.Memory
	log    *event.MemoryLog
	clock  *ledgertime.Manual
}

// newEngine initializes a full in-memory engine: Percentage(250) platform
// fee, 100 bps protocol fee, agentA registered, senderS funded.
func newEngine(t *testing.T) *engine {
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
		FeeBps:         250,
		ProtocolFeeBps: 100,
	}); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := adm.RegisterAgent(ctx, adminAddr, agentA); err != nil {
		t.Fatalf("register agent: %v", err)
	}

	tok.Mint(senderS, big.NewInt(1_000_000_000))

	return &engine{
		remits: NewService(st, tok, clock, auth, log, custody),
		admin:  adm,
		store:  st,
		token:  tok,
		log:    log,
		clock:  clock,
	}
}

func (e *engine) balance(t *testing.T, addr common.Address) int64 {
	t.Helper()
	bal, err := e.token.BalanceOf(context.Background(), addr)
	if err != nil {
		t.Fatal(err)
	}
	return bal.Int64()
}

func (e *engine) create(t *testing.T, amount int64) uint64 {
	t.Helper()
	id, err := e.remits.Create(context.Background(), CreateRequest{
		Sender: senderS,
		Agent:  agentA,
		Amount: big.NewInt(amount),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return id
}

func TestHappyPath(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	id := e.create(t, 10_000_000)
	if id != 1 {
		t.Fatalf("first id = %d, want 1", id)
	}

	r, err := e.remits.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if r.Status != lifecycle.Pending {
		t.Errorf("status = %s", r.Status)
	}
	if r.Fee.Int64() != 250_000 {
		t.Errorf("stored fee = %d, want 250000", r.Fee.Int64())
	}
	if got := e.balance(t, custody); got != 10_000_000 {
		t.Errorf("custody = %d after create", got)
	}

	if err := e.remits.StartProcessing(ctx, agentA, id); err != nil {
		t.Fatalf("start: %v", err)
	}
	r, _ = e.remits.Get(ctx, id)
	if r.Status != lifecycle.Processing {
		t.Errorf("status = %s after start", r.Status)
	}

	if err := e.remits.ConfirmPayout(ctx, agentA, id); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	// Agent receives amount - 250000 platform - 100000 protocol.
	if got := e.balance(t, agentA); got != 9_650_000 {
		t.Errorf("agent balance = %d, want 9650000", got)
	}
	accrued, _ := e.remits.AccumulatedFees(ctx)
	if accrued.Int64() != 350_000 {
		t.Errorf("accumulated fees = %d, want 350000", accrued.Int64())
	}
	counter, _ := e.remits.SettlementCounter(ctx)
	if counter != 1 {
		t.Errorf("settlement counter = %d, want 1", counter)
	}

	settles := e.log.ByTopic(event.TopicSettleComplete)
	if len(settles) != 1 {
		t.Fatalf("settle.complete events = %d, want 1", len(settles))
	}
	if settles[0].Data["id"] != uint64(1) {
		t.Errorf("settle event id = %v", settles[0].Data["id"])
	}

	settled, _ := e.remits.SettlementHash(ctx, id)
	if !settled {
		t.Error("settlement hash missing after confirm")
	}

	// The evented settlement id is the deterministic hash of the
	// remittance fields.
	wantID, err := SettlementID(r)
	if err != nil {
		t.Fatal(err)
	}
	if settles[0].Data["settlementId"] != wantID {
		t.Errorf("settlement id = %v, want %s", settles[0].Data["settlementId"], wantID)
	}
	ts, err := e.remits.SettlementTimestamp(ctx, id)
	if err != nil || ts != e.clock.Now {
		t.Errorf("settlement timestamp = %d err=%v", ts, err)
	}
}

func TestEarlyCancelRefundsInFull(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	before := e.balance(t, senderS)
	id := e.create(t, 5_000_000)

	if err := e.remits.Cancel(ctx, senderS, id); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if got := e.balance(t, senderS); got != before {
		t.Errorf("sender balance = %d, want %d (full refund)", got, before)
	}
	accrued, _ := e.remits.AccumulatedFees(ctx)
	if accrued.Sign() != 0 {
		t.Errorf("accumulated fees = %d after cancel", accrued.Int64())
	}
	if n := len(e.log.ByTopic(event.TopicSettleComplete)); n != 0 {
		t.Errorf("settle.complete events = %d after cancel", n)
	}

	r, _ := e.remits.Get(ctx, id)
	if r.Status != lifecycle.Cancelled {
		t.Errorf("status = %s", r.Status)
	}
}

func TestFailedPayoutRefundsInFull(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	before := e.balance(t, senderS)
	id := e.create(t, 1_000_000)
	if err := e.remits.StartProcessing(ctx, agentA, id); err != nil {
		t.Fatal(err)
	}
	if err := e.remits.MarkFailed(ctx, agentA, id); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	if got := e.balance(t, senderS); got != before {
		t.Errorf("sender balance = %d, want %d", got, before)
	}
	r, _ := e.remits.Get(ctx, id)
	if r.Status != lifecycle.Failed {
		t.Errorf("status = %s", r.Status)
	}
}

func TestInvalidTransitionLeavesStateUnchanged(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	id := e.create(t, 10_000_000)
	_ = e.remits.StartProcessing(ctx, agentA, id)
	_ = e.remits.ConfirmPayout(ctx, agentA, id)

	// Completed is terminal: no way back to Processing.
	err := e.remits.StartProcessing(ctx, agentA, id)
	if !errors.Is(err, errs.InvalidStateTransition) {
		t.Fatalf("expected InvalidStateTransition, got %v", err)
	}
	r, _ := e.remits.Get(ctx, id)
	if r.Status != lifecycle.Completed {
		t.Errorf("status changed to %s", r.Status)
	}

	// Pending cannot jump straight to Completed.
	id2 := e.create(t, 1_000_000)
	err = e.remits.ConfirmPayout(ctx, agentA, id2)
	if !errors.Is(err, errs.InvalidStateTransition) {
		t.Fatalf("pending→completed: expected InvalidStateTransition, got %v", err)
	}
}

func TestDuplicateSettlementRejected(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	id := e.create(t, 10_000_000)
	_ = e.remits.StartProcessing(ctx, agentA, id)
	if err := e.remits.ConfirmPayout(ctx, agentA, id); err != nil {
		t.Fatal(err)
	}

	agentBefore := e.balance(t, agentA)
	err := e.remits.ConfirmPayout(ctx, agentA, id)
	if !errors.Is(err, errs.DuplicateSettlement) {
		t.Fatalf("expected DuplicateSettlement, got %v", err)
	}
	if got := e.balance(t, agentA); got != agentBefore {
		t.Error("duplicate confirm moved tokens")
	}
	counter, _ := e.remits.SettlementCounter(ctx)
	if counter != 1 {
		t.Errorf("settlement counter = %d after duplicate attempt", counter)
	}
	if n := len(e.log.ByTopic(event.TopicSettleComplete)); n != 1 {
		t.Errorf("settle.complete events = %d, want exactly 1", n)
	}
}

func TestExpiryBehavior(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	// Expiry in the past at create time is rejected with no mutation.
	past := e.clock.Now - 10
	_, err := e.remits.Create(ctx, CreateRequest{
		Sender: senderS, Agent: agentA, Amount: big.NewInt(1_000_000), Expiry: &past,
	})
	if !errors.Is(err, errs.SettlementExpired) {
		t.Fatalf("past expiry at create: %v", err)
	}
	if got := e.balance(t, custody); got != 0 {
		t.Error("rejected create moved tokens")
	}

	// Expiry passing while Processing blocks confirmation.
	future := e.clock.Now + 100
	id, err := e.remits.Create(ctx, CreateRequest{
		Sender: senderS, Agent: agentA, Amount: big.NewInt(1_000_000), Expiry: &future,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := e.remits.StartProcessing(ctx, agentA, id); err != nil {
		t.Fatal(err)
	}
	e.clock.Advance(100)
	err = e.remits.ConfirmPayout(ctx, agentA, id)
	if !errors.Is(err, errs.SettlementExpired) {
		t.Fatalf("expected SettlementExpired on confirm, got %v", err)
	}
}

func TestCreateValidation(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	_, err := e.remits.Create(ctx, CreateRequest{Sender: senderS, Agent: agentA, Amount: big.NewInt(0)})
	if !errors.Is(err, errs.InvalidAmount) {
		t.Errorf("zero amount: %v", err)
	}
	_, err = e.remits.Create(ctx, CreateRequest{Sender: senderS, Agent: agentA, Amount: big.NewInt(-1)})
	if !errors.Is(err, errs.InvalidAmount) {
		t.Errorf("negative amount: %v", err)
	}
	_, err = e.remits.Create(ctx, CreateRequest{Sender: senderS, Agent: senderS, Amount: big.NewInt(1)})
	if !errors.Is(err, errs.InvalidAddress) {
		t.Errorf("sender == agent: %v", err)
	}

	unregistered := common.HexToAddress("0x9999999999999999999999999999999999999999")
	_, err = e.remits.Create(ctx, CreateRequest{Sender: senderS, Agent: unregistered, Amount: big.NewInt(1)})
	if !errors.Is(err, errs.AgentNotRegistered) {
		t.Errorf("unregistered agent: %v", err)
	}
}

func TestPauseBlocksEntryPoints(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	if err := e.admin.Pause(ctx, adminAddr); err != nil {
		t.Fatal(err)
	}
	_, err := e.remits.Create(ctx, CreateRequest{Sender: senderS, Agent: agentA, Amount: big.NewInt(1_000_000)})
	if !errors.Is(err, errs.ContractPaused) {
		t.Fatalf("expected ContractPaused, got %v", err)
	}

	if err := e.admin.Unpause(ctx, adminAddr); err != nil {
		t.Fatal(err)
	}
	if _, err := e.remits.Create(ctx, CreateRequest{Sender: senderS, Agent: agentA, Amount: big.NewInt(1_000_000)}); err != nil {
		t.Fatalf("create after unpause: %v", err)
	}
}

func TestAuthorizationChecks(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	stranger := common.HexToAddress("0x7777777777777777777777777777777777777777")

	id := e.create(t, 1_000_000)

	// Only the agent (with Settler) may start processing.
	if err := e.remits.StartProcessing(ctx, stranger, id); !errors.Is(err, errs.Unauthorized) {
		t.Errorf("stranger start: %v", err)
	}
	// Only the sender may cancel.
	if err := e.remits.Cancel(ctx, agentA, id); !errors.Is(err, errs.Unauthorized) {
		t.Errorf("agent cancel: %v", err)
	}

	_ = e.remits.StartProcessing(ctx, agentA, id)
	// Only the agent may confirm or fail.
	if err := e.remits.ConfirmPayout(ctx, stranger, id); !errors.Is(err, errs.Unauthorized) {
		t.Errorf("stranger confirm: %v", err)
	}
	if err := e.remits.MarkFailed(ctx, senderS, id); !errors.Is(err, errs.Unauthorized) {
		t.Errorf("sender mark failed: %v", err)
	}
}

func TestTokenFailureRevertsEverything(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	// Sender with no balance: the custody pull fails and nothing persists.
	broke := common.HexToAddress("0x4444444444444444444444444444444444444444")
	_, err := e.remits.Create(ctx, CreateRequest{Sender: broke, Agent: agentA, Amount: big.NewInt(1_000_000)})
	if !errors.Is(err, token.ErrInsufficientBalance) {
		t.Fatalf("expected token failure, got %v", err)
	}

	// The counter did not advance and no events leaked.
	if id := e.create(t, 1_000_000); id != 1 {
		t.Errorf("counter advanced on failed create: next id = %d", id)
	}
	if n := len(e.log.ByTopic(event.TopicRemitCreated)); n != 1 {
		t.Errorf("remit.created events = %d, want 1", n)
	}
}

func TestIdempotentCreate(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	req := CreateRequest{
		Sender:         senderS,
		Agent:          agentA,
		Amount:         big.NewInt(5_000_000),
		IdempotencyKey: "abc",
	}
	id, err := e.remits.Create(ctx, req)
	if err != nil {
		t.Fatal(err)
	}

	custodyAfter := e.balance(t, custody)
	eventsAfter := e.log.Len()

	// Identical retry returns the original id with zero side effects.
	again, err := e.remits.Create(ctx, req)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if again != id {
		t.Errorf("retry id = %d, want %d", again, id)
	}
	if got := e.balance(t, custody); got != custodyAfter {
		t.Error("retry moved tokens")
	}
	if e.log.Len() != eventsAfter {
		t.Error("retry emitted events")
	}
	counter := e.create(t, 1_000_000)
	if counter != id+1 {
		t.Errorf("retry consumed an id: next = %d", counter)
	}

	// Same key, different payload → conflict.
	req.Amount = big.NewInt(9_000_000)
	_, err = e.remits.Create(ctx, req)
	if !errors.Is(err, errs.IdempotencyConflict) {
		t.Fatalf("expected IdempotencyConflict, got %v", err)
	}

	// Replay detection runs before input validation: a keyed request
	// with a mismatched, even invalid, payload still resolves against
	// the stored record first.
	req.Amount = big.NewInt(0)
	_, err = e.remits.Create(ctx, req)
	if !errors.Is(err, errs.IdempotencyConflict) {
		t.Fatalf("expected IdempotencyConflict before InvalidAmount, got %v", err)
	}
}

func TestRateLimitGate(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	if err := e.admin.SetRateLimit(ctx, adminAddr, guards.RateLimitConfig{
		Enabled: true, MaxOps: 2, WindowSeconds: 60,
	}); err != nil {
		t.Fatal(err)
	}

	e.create(t, 1_000_000)
	e.create(t, 1_000_000)
	_, err := e.remits.Create(ctx, CreateRequest{Sender: senderS, Agent: agentA, Amount: big.NewInt(1_000_000)})
	if !errors.Is(err, errs.RateLimitExceeded) {
		t.Fatalf("expected RateLimitExceeded, got %v", err)
	}

	e.clock.Advance(61)
	e.create(t, 1_000_000)
}

func TestDailySendLimitGate(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	if err := e.admin.SetDailyLimit(ctx, adminAddr, guards.DailyLimitConfig{
		Enabled: true, MaxAmount: big.NewInt(10_000_000),
	}); err != nil {
		t.Fatal(err)
	}

	e.create(t, 6_000_000)
	_, err := e.remits.Create(ctx, CreateRequest{Sender: senderS, Agent: agentA, Amount: big.NewInt(5_000_000)})
	if !errors.Is(err, errs.DailySendLimitExceeded) {
		t.Fatalf("expected DailySendLimitExceeded, got %v", err)
	}
}

func TestBlacklistGate(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	if err := e.admin.SetUserBlacklisted(ctx, adminAddr, senderS, true); err != nil {
		t.Fatal(err)
	}
	_, err := e.remits.Create(ctx, CreateRequest{Sender: senderS, Agent: agentA, Amount: big.NewInt(1)})
	if !errors.Is(err, errs.Unauthorized) {
		t.Fatalf("expected Unauthorized, got %v", err)
	}
}

func TestCorridorFeeAppliedThroughLifecycle(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	protocolOverride := uint32(50)
	if err := e.admin.SetFeeCorridor(ctx, adminAddr, corridorUSMX(protocolOverride)); err != nil {
		t.Fatal(err)
	}

	id, err := e.remits.Create(ctx, CreateRequest{
		Sender:      senderS,
		Agent:       agentA,
		Amount:      big.NewInt(10_000_000),
		FromCountry: "US",
		ToCountry:   "MX",
	})
	if err != nil {
		t.Fatal(err)
	}
	r, _ := e.remits.Get(ctx, id)
	if r.Fee.Int64() != 150_000 {
		t.Fatalf("corridor fee = %d, want 150000", r.Fee.Int64())
	}

	_ = e.remits.StartProcessing(ctx, agentA, id)
	if err := e.remits.ConfirmPayout(ctx, agentA, id); err != nil {
		t.Fatal(err)
	}
	if got := e.balance(t, agentA); got != 9_800_000 {
		t.Errorf("agent received %d, want 9800000", got)
	}
}

func TestFeeConfigChangeMidFlightBlocksSettlement(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	id := e.create(t, 10_000_000)
	_ = e.remits.StartProcessing(ctx, agentA, id)

	// Changing the global fee between create and confirm makes the stored
	// fee inconsistent with a recomputation.
	if err := e.admin.UpdateFee(ctx, adminAddr, 500); err != nil {
		t.Fatal(err)
	}
	err := e.remits.ConfirmPayout(ctx, agentA, id)
	if !errors.Is(err, errs.NetSettlementValidationFailed) {
		t.Fatalf("expected NetSettlementValidationFailed, got %v", err)
	}
}

func TestSenderBalanceConservation(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	start := e.balance(t, senderS)

	// Completed: sender down by exactly amount.
	id := e.create(t, 10_000_000)
	_ = e.remits.StartProcessing(ctx, agentA, id)
	_ = e.remits.ConfirmPayout(ctx, agentA, id)
	if got := e.balance(t, senderS); got != start-10_000_000 {
		t.Errorf("sender after completed = %d", got)
	}

	// Cancelled: net zero.
	id = e.create(t, 3_000_000)
	_ = e.remits.Cancel(ctx, senderS, id)
	if got := e.balance(t, senderS); got != start-10_000_000 {
		t.Errorf("sender after cancel = %d", got)
	}
}

func corridorUSMX(protocolBps uint32) fees.Corridor {
	return fees.Corridor{
		FromCountry:    "US",
		ToCountry:      "MX",
		Strategy:       fees.PercentageStrategy(150),
		ProtocolFeeBps: &protocolBps,
	}
}
