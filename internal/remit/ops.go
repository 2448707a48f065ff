package remit

import (
	"context"
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/swiftremit/swiftremit/internal/errs"
	"github.com/swiftremit/swiftremit/internal/event"
	"github.com/swiftremit/swiftremit/internal/fees"
	"github.com/swiftremit/swiftremit/internal/guards"
	"github.com/swiftremit/swiftremit/internal/lifecycle"
	"github.com/swiftremit/swiftremit/internal/roles"
	"github.com/swiftremit/swiftremit/internal/store"
	"github.com/swiftremit/swiftremit/internal/stroops"
	"github.com/swiftremit/swiftremit/internal/traces"
)

// CreateRequest carries the parameters for creating a remittance.
type CreateRequest struct {
	Sender common.Address
	Agent  common.Address
	Amount *big.Int
	Expiry *uint64
	// Corridor countries; when both are set, the corridor's fee rules
	// apply for the remittance's whole lifetime.
	FromCountry string
	ToCountry   string
	// IdempotencyKey, when non-empty, makes retries of the identical
	// request return the original id without side effects.
	IdempotencyKey string
}

func (req CreateRequest) requestHash() string {
	var expiry [8]byte
	if req.Expiry != nil {
		binary.BigEndian.PutUint64(expiry[:], *req.Expiry)
	}
	return guards.HashRequest(
		req.Sender.Bytes(),
		req.Agent.Bytes(),
		[]byte(stroops.Format(req.Amount)),
		expiry[:],
		[]byte(req.FromCountry),
		[]byte(req.ToCountry),
	)
}

// Create escrows the sender's amount and records the remittance in Pending.
// Returns the new remittance id.
func (s *Service) Create(ctx context.Context, req CreateRequest) (uint64, error) {
	ctx, span := traces.StartSpan(ctx, "remit.Create",
		traces.Sender(roles.AddrKey(req.Sender)), traces.Agent(roles.AddrKey(req.Agent)),
		traces.Amount(stroops.Format(req.Amount)))
	defer span.End()

	if err := s.preFlight(ctx, req.Sender); err != nil {
		return 0, err
	}

	// Replay detection runs before input validation: a retry of an
	// already-committed request must short-circuit here with zero
	// side effects, whatever the rest of the payload looks like.
	reqHash := req.requestHash()
	if prior, err := guards.CheckIdempotency(ctx, s.store, s.clock, req.IdempotencyKey, reqHash); err != nil {
		return 0, err
	} else if prior != nil {
		return prior.RemittanceID, nil
	}

	if err := guards.ValidAmount(req.Amount); err != nil {
		return 0, err
	}
	if err := guards.ValidExpiry(s.clock, req.Expiry); err != nil {
		return 0, err
	}
	zero := common.Address{}
	if req.Sender == zero || req.Agent == zero || req.Sender == req.Agent {
		return 0, errs.InvalidAddress
	}
	registered, err := s.store.Has(ctx, store.K(store.KindAgent, roles.AddrKey(req.Agent)))
	if err != nil {
		return 0, err
	}
	if !registered {
		return 0, errs.AgentNotRegistered
	}

	var corridor *fees.Corridor
	if req.FromCountry != "" && req.ToCountry != "" {
		corridor, err = fees.CorridorFor(ctx, s.store, req.FromCountry, req.ToCountry)
		if err != nil {
			return 0, err
		}
	}
	breakdown, err := s.fees.Calculate(ctx, req.Amount, corridor)
	if err != nil {
		return 0, err
	}

	done := observeOp("create")
	defer done()

	rec := event.NewRecorder(s.clock, s.sink)
	var id uint64
	err = s.store.RunInTransaction(ctx, func(tx store.Tx) error {
		if err := guards.CheckRateLimit(ctx, tx, s.clock, req.Sender); err != nil {
			return err
		}
		if err := guards.CheckDailyLimit(ctx, tx, s.clock, req.Sender, req.Amount); err != nil {
			return err
		}

		var counter uint64
		if _, err := tx.Get(ctx, store.K(store.KindRemittanceCounter), &counter); err != nil {
			return err
		}
		id = counter + 1
		if err := tx.Set(ctx, store.K(store.KindRemittanceCounter), id); err != nil {
			return err
		}

		now := s.clock.Timestamp()
		r := &Remittance{
			ID:          id,
			Sender:      req.Sender,
			Agent:       req.Agent,
			Amount:      new(big.Int).Set(req.Amount),
			Fee:         breakdown.PlatformFee,
			Expiry:      req.Expiry,
			Status:      lifecycle.Pending,
			FromCountry: req.FromCountry,
			ToCountry:   req.ToCountry,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.Set(ctx, remitKey(id), r); err != nil {
			return err
		}
		if err := guards.SaveIdempotency(ctx, tx, s.clock, req.IdempotencyKey, reqHash, id); err != nil {
			return err
		}

		rec.Emit(event.TopicRemitCreated, map[string]interface{}{
			"id":     id,
			"sender": roles.AddrKey(req.Sender),
			"agent":  roles.AddrKey(req.Agent),
			"amount": stroops.Format(req.Amount),
			"fee":    stroops.Format(breakdown.PlatformFee),
		})

		// Custody pull runs last: a failed transfer reverts every write.
		return s.token.Transfer(ctx, req.Sender, s.custody, req.Amount)
	})
	if err != nil {
		rec.Discard()
		return 0, err
	}
	flushEvents(ctx, rec)
	return id, nil
}

// StartProcessing moves a pending remittance into Processing. The payout
// agent calls this when beginning off-platform disbursement.
func (s *Service) StartProcessing(ctx context.Context, caller common.Address, id uint64) error {
	ctx, span := traces.StartSpan(ctx, "remit.StartProcessing", traces.RemittanceID(id))
	defer span.End()

	if err := s.preFlight(ctx, caller); err != nil {
		return err
	}

	done := observeOp("start_processing")
	defer done()

	rec := event.NewRecorder(s.clock, s.sink)
	err := s.store.RunInTransaction(ctx, func(tx store.Tx) error {
		r, err := loadRemittance(ctx, tx, id)
		if err != nil {
			return err
		}
		if caller != r.Agent {
			return errs.Unauthorized
		}
		if err := roles.Require(ctx, tx, caller, roles.Settler); err != nil {
			return err
		}
		_, err = s.transition(ctx, tx, rec, r, lifecycle.Processing, caller)
		return err
	})
	if err != nil {
		rec.Discard()
		return err
	}
	flushEvents(ctx, rec)
	return nil
}

// ConfirmPayout finalizes a remittance the agent has disbursed: the
// custody releases the net amount to the agent, fees accrue, and the
// settlement marks are written exactly once.
func (s *Service) ConfirmPayout(ctx context.Context, caller common.Address, id uint64) error {
	ctx, span := traces.StartSpan(ctx, "remit.ConfirmPayout", traces.RemittanceID(id))
	defer span.End()

	if err := s.preFlight(ctx, caller); err != nil {
		return err
	}

	done := observeOp("confirm_payout")
	defer done()

	rec := event.NewRecorder(s.clock, s.sink)
	err := s.store.RunInTransaction(ctx, func(tx store.Tx) error {
		r, err := loadRemittance(ctx, tx, id)
		if err != nil {
			return err
		}
		if caller != r.Agent {
			return errs.Unauthorized
		}
		if err := roles.Require(ctx, tx, caller, roles.Settler); err != nil {
			return err
		}
		if r.Expired(s.clock.Timestamp()) {
			return errs.SettlementExpired
		}
		settled, err := tx.Has(ctx, store.K(store.KindSettlementHash, idArg(id)))
		if err != nil {
			return err
		}
		if settled {
			return errs.DuplicateSettlement
		}
		if err := lifecycle.Validate(r.Status, lifecycle.Completed); err != nil {
			return err
		}

		breakdown, err := s.breakdownFor(ctx, tx, r)
		if err != nil {
			return err
		}
		// The stored fee was computed at create time from the same inputs;
		// a mismatch means the fee config changed mid-flight or the record
		// is corrupt. Never settle against inconsistent books.
		if breakdown.PlatformFee.Cmp(r.Fee) != 0 {
			return errs.NetSettlementValidationFailed
		}

		if err := s.finalizeSettlement(ctx, tx, rec, r, breakdown); err != nil {
			return err
		}

		rec.Emit(event.TopicEscrowReleased, map[string]interface{}{
			"id":       id,
			"receiver": roles.AddrKey(r.Agent),
			"amount":   stroops.Format(breakdown.NetAmount),
		})

		return s.token.Transfer(ctx, s.custody, r.Agent, breakdown.NetAmount)
	})
	if err != nil {
		rec.Discard()
		return err
	}
	observeSettlement()
	flushEvents(ctx, rec)
	return nil
}

// Cancel aborts a pending remittance and refunds the full amount to the
// sender. Only the remittance's sender may cancel.
func (s *Service) Cancel(ctx context.Context, caller common.Address, id uint64) error {
	ctx, span := traces.StartSpan(ctx, "remit.Cancel", traces.RemittanceID(id))
	defer span.End()

	if err := s.preFlight(ctx, caller); err != nil {
		return err
	}

	done := observeOp("cancel")
	defer done()

	rec := event.NewRecorder(s.clock, s.sink)
	err := s.store.RunInTransaction(ctx, func(tx store.Tx) error {
		r, err := loadRemittance(ctx, tx, id)
		if err != nil {
			return err
		}
		if caller != r.Sender {
			return errs.Unauthorized
		}
		changed, err := s.transition(ctx, tx, rec, r, lifecycle.Cancelled, caller)
		if err != nil || !changed {
			return err
		}
		// Full refund: no fee is retained on cancellation.
		return s.token.Transfer(ctx, s.custody, r.Sender, r.Amount)
	})
	if err != nil {
		rec.Discard()
		return err
	}
	flushEvents(ctx, rec)
	return nil
}

// MarkFailed records a failed disbursement and refunds the full amount to
// the sender. Only the payout agent may mark failure.
func (s *Service) MarkFailed(ctx context.Context, caller common.Address, id uint64) error {
	ctx, span := traces.StartSpan(ctx, "remit.MarkFailed", traces.RemittanceID(id))
	defer span.End()

	if err := s.preFlight(ctx, caller); err != nil {
		return err
	}

	done := observeOp("mark_failed")
	defer done()

	rec := event.NewRecorder(s.clock, s.sink)
	err := s.store.RunInTransaction(ctx, func(tx store.Tx) error {
		r, err := loadRemittance(ctx, tx, id)
		if err != nil {
			return err
		}
		if caller != r.Agent {
			return errs.Unauthorized
		}
		if err := roles.Require(ctx, tx, caller, roles.Settler); err != nil {
			return err
		}
		changed, err := s.transition(ctx, tx, rec, r, lifecycle.Failed, caller)
		if err != nil || !changed {
			return err
		}
		// No fee retained on failure either.
		return s.token.Transfer(ctx, s.custody, r.Sender, r.Amount)
	})
	if err != nil {
		rec.Discard()
		return err
	}
	flushEvents(ctx, rec)
	return nil
}
