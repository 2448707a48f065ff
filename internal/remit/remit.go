// Package remit implements the remittance lifecycle orchestrator.
//
// Flow:
//  1. Sender creates a remittance → amount locked in engine custody
//  2. Payout agent starts processing → disburses off-platform
//  3. Agent confirms payout → custody releases net amount, fees accrue
//  4. Sender cancels (before processing) or agent marks failed → full refund
//
// Every entry point follows authorize → guards → read → validate transition
// → mutate → token call → emit. Storage writes are transactional: the token
// call runs last inside the transaction, so a failed transfer rolls back
// every write, and events are flushed only after commit.
package remit

import (
	"context"
	"encoding/hex"
	"math"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/swiftremit/swiftremit/internal/errs"
	"github.com/swiftremit/swiftremit/internal/event"
	"github.com/swiftremit/swiftremit/internal/fees"
	"github.com/swiftremit/swiftremit/internal/guards"
	"github.com/swiftremit/swiftremit/internal/ledgertime"
	"github.com/swiftremit/swiftremit/internal/lifecycle"
	"github.com/swiftremit/swiftremit/internal/roles"
	"github.com/swiftremit/swiftremit/internal/settlehash"
	"github.com/swiftremit/swiftremit/internal/store"
	"github.com/swiftremit/swiftremit/internal/stroops"
	"github.com/swiftremit/swiftremit/internal/token"
)

// Remittance is the fundamental settlement unit.
type Remittance struct {
	ID          uint64           `json:"id"`
	Sender      common.Address   `json:"sender"`
	Agent       common.Address   `json:"agent"`
	Amount      *big.Int         `json:"amount"`
	Fee         *big.Int         `json:"fee"`
	Expiry      *uint64          `json:"expiry,omitempty"`
	Status      lifecycle.Status `json:"status"`
	FromCountry string           `json:"fromCountry,omitempty"`
	ToCountry   string           `json:"toCountry,omitempty"`
	CreatedAt   uint64           `json:"createdAt"`
	UpdatedAt   uint64           `json:"updatedAt"`
}

// Expired reports whether the remittance's expiry has passed.
func (r *Remittance) Expired(now uint64) bool {
	return r.Expiry != nil && now >= *r.Expiry
}

// Service orchestrates remittance entry points against the store, the
// external token, and the event sink.
type Service struct {
	store   store.Transactional
	token   token.Token
	clock   ledgertime.Clock
	auth    roles.Authorizer
	fees    *fees.Service
	sink    event.Sink
	custody common.Address
}

// NewService creates the orchestrator. The fee service reads its
// configuration from the same store the admin surface writes.
func NewService(st store.Transactional, tok token.Token, clock ledgertime.Clock, auth roles.Authorizer, sink event.Sink, custody common.Address) *Service {
	return &Service{
		store:   st,
		token:   tok,
		clock:   clock,
		auth:    auth,
		fees:    fees.NewService(fees.StoreConfig{Store: st}),
		sink:    sink,
		custody: custody,
	}
}

// Fees exposes the fee service for read-only breakdown queries.
func (s *Service) Fees() *fees.Service { return s.fees }

// Custody returns the engine's custody address.
func (s *Service) Custody() common.Address { return s.custody }

func remitKey(id uint64) store.Key {
	return store.K(store.KindRemittance, strconv.FormatUint(id, 10))
}

func idArg(id uint64) string {
	return strconv.FormatUint(id, 10)
}

// Get loads a remittance by id.
func (s *Service) Get(ctx context.Context, id uint64) (*Remittance, error) {
	return loadRemittance(ctx, s.store, id)
}

func loadRemittance(ctx context.Context, st store.Store, id uint64) (*Remittance, error) {
	var r Remittance
	ok, err := st.Get(ctx, remitKey(id), &r)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.RemittanceNotFound
	}
	return &r, nil
}

// preFlight runs the checks shared by every user-facing entry point.
func (s *Service) preFlight(ctx context.Context, caller common.Address) error {
	if err := guards.RequireInitialized(ctx, s.store); err != nil {
		return err
	}
	if err := guards.RequireNotPaused(ctx, s.store); err != nil {
		return err
	}
	if err := s.auth.RequireAuth(ctx, caller); err != nil {
		return err
	}
	if err := guards.RequireNotBlacklisted(ctx, s.store, caller); err != nil {
		return err
	}
	return guards.RequireKYC(ctx, s.store, s.clock, caller)
}

// breakdownFor recomputes the full fee breakdown for a persisted
// remittance, resolving the corridor it was created under.
func (s *Service) breakdownFor(ctx context.Context, st store.Store, r *Remittance) (*fees.Breakdown, error) {
	var corridor *fees.Corridor
	if r.FromCountry != "" && r.ToCountry != "" {
		c, err := fees.CorridorFor(ctx, st, r.FromCountry, r.ToCountry)
		if err != nil {
			return nil, err
		}
		corridor = c
	}
	return s.fees.Calculate(ctx, r.Amount, corridor)
}

// transition applies from → to on r inside the transaction and stages the
// status event. A same-state transition is a silent no-op (changed=false).
func (s *Service) transition(ctx context.Context, tx store.Tx, rec *event.Recorder, r *Remittance, to lifecycle.Status, actor common.Address) (bool, error) {
	if r.Status == to {
		return false, nil
	}
	if err := lifecycle.Validate(r.Status, to); err != nil {
		return false, err
	}
	from := r.Status
	now := s.clock.Timestamp()
	r.Status = to
	r.UpdatedAt = now
	if err := tx.Set(ctx, remitKey(r.ID), r); err != nil {
		return false, err
	}
	rec.Emit(event.TopicStatusTransit, map[string]interface{}{
		"id":        r.ID,
		"from":      string(from),
		"to":        string(to),
		"actor":     roles.AddrKey(actor),
		"timestamp": now,
	})
	return true, nil
}

// finalizeSettlement applies the terminal bookkeeping for one settled
// remittance: the settlement marks, the fee accrual, the counter, and the
// exactly-once settle event. The settlement-event mark is written before
// the event is staged, so a hostile re-entry can never double-emit.
func (s *Service) finalizeSettlement(ctx context.Context, tx store.Tx, rec *event.Recorder, r *Remittance, b *fees.Breakdown) error {
	now := s.clock.Timestamp()

	if _, err := s.transition(ctx, tx, rec, r, lifecycle.Completed, r.Agent); err != nil {
		return err
	}

	accrued := big.NewInt(0)
	if _, err := tx.Get(ctx, store.K(store.KindAccumulatedFees), accrued); err != nil {
		return err
	}
	accrued, err := stroops.CheckedAdd(accrued, b.TotalFees)
	if err != nil {
		return err
	}
	if err := tx.Set(ctx, store.K(store.KindAccumulatedFees), accrued); err != nil {
		return err
	}

	if err := tx.Set(ctx, store.K(store.KindSettlementHash, idArg(r.ID)), true); err != nil {
		return err
	}
	if err := tx.Set(ctx, store.K(store.KindSettlementTime, idArg(r.ID)), now); err != nil {
		return err
	}

	var counter uint64
	if _, err := tx.Get(ctx, store.K(store.KindSettlementCounter), &counter); err != nil {
		return err
	}
	if counter == math.MaxUint64 {
		return errs.SettlementCounterOverflow
	}
	if err := tx.Set(ctx, store.K(store.KindSettlementCounter), counter+1); err != nil {
		return err
	}

	emitted, err := tx.Has(ctx, store.K(store.KindSettlementEmitted, idArg(r.ID)))
	if err != nil {
		return err
	}
	if !emitted {
		if err := tx.Set(ctx, store.K(store.KindSettlementEmitted, idArg(r.ID)), true); err != nil {
			return err
		}
		var asset string
		if _, err := tx.Get(ctx, store.K(store.KindTokenAddress), &asset); err != nil {
			return err
		}
		settlementID, err := SettlementID(r)
		if err != nil {
			return err
		}
		rec.Emit(event.TopicSettleComplete, map[string]interface{}{
			"id":           r.ID,
			"sender":       roles.AddrKey(r.Sender),
			"receiver":     roles.AddrKey(r.Agent),
			"asset":        asset,
			"amount":       stroops.Format(r.Amount),
			"settlementId": settlementID,
		})
	}
	return nil
}

// SettlementID computes the deterministic 32-byte settlement identifier
// for a remittance as a hex string. External systems reproduce it
// bit-for-bit from the same fields for reconciliation and replay
// detection.
func SettlementID(r *Remittance) (string, error) {
	var expiry uint64
	if r.Expiry != nil {
		expiry = *r.Expiry
	}
	sum, err := settlehash.Compute(settlehash.Inputs{
		RemittanceID: r.ID,
		Sender:       r.Sender,
		Agent:        r.Agent,
		Amount:       r.Amount,
		Fee:          r.Fee,
		Expiry:       expiry,
	})
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sum[:]), nil
}

// SettlementHash reports whether a remittance has been settled.
func (s *Service) SettlementHash(ctx context.Context, id uint64) (bool, error) {
	return s.store.Has(ctx, store.K(store.KindSettlementHash, idArg(id)))
}

// SettlementTimestamp returns the ledger time a remittance settled at.
func (s *Service) SettlementTimestamp(ctx context.Context, id uint64) (uint64, error) {
	var ts uint64
	ok, err := s.store.Get(ctx, store.K(store.KindSettlementTime, idArg(id)), &ts)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, errs.KeyNotFound
	}
	return ts, nil
}

// SettlementCounter returns the count of successful finalizations.
func (s *Service) SettlementCounter(ctx context.Context) (uint64, error) {
	var counter uint64
	if _, err := s.store.Get(ctx, store.K(store.KindSettlementCounter), &counter); err != nil {
		return 0, err
	}
	return counter, nil
}

// AccumulatedFees returns the engine's undistributed fee balance.
func (s *Service) AccumulatedFees(ctx context.Context) (*big.Int, error) {
	accrued := big.NewInt(0)
	if _, err := s.store.Get(ctx, store.K(store.KindAccumulatedFees), accrued); err != nil {
		return nil, err
	}
	return accrued, nil
}
