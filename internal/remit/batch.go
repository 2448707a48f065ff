package remit

import (
	"context"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/swiftremit/swiftremit/internal/errs"
	"github.com/swiftremit/swiftremit/internal/event"
	"github.com/swiftremit/swiftremit/internal/fees"
	"github.com/swiftremit/swiftremit/internal/lifecycle"
	"github.com/swiftremit/swiftremit/internal/roles"
	"github.com/swiftremit/swiftremit/internal/store"
	"github.com/swiftremit/swiftremit/internal/stroops"
	"github.com/swiftremit/swiftremit/internal/traces"
)

// MaxBatchSize caps one netting batch. Tunable, but larger inputs are
// rejected by default.
const MaxBatchSize = 50

// pairKey identifies an unordered principal pair; a sorts before b.
type pairKey struct{ a, b string }

// pairFlow accumulates the bilateral flow for one pair. net is positive in
// the a→b direction.
type pairFlow struct {
	a, b    common.Address
	net     *big.Int
	grossAB *big.Int
	grossBA *big.Int
}

// BatchSettle finalizes up to MaxBatchSize processing remittances with
// bilateral netting: opposing flows between the same pair are collapsed
// into at most one transfer of the net difference. Netting never changes
// per-remittance amounts or fees — only the physical transfers.
//
// The batch is all-or-nothing: any invalid leg aborts every leg.
func (s *Service) BatchSettle(ctx context.Context, caller common.Address, ids []uint64) ([]uint64, error) {
	ctx, span := traces.StartSpan(ctx, "remit.BatchSettle", traces.BatchSize(len(ids)))
	defer span.End()

	if err := s.preFlight(ctx, caller); err != nil {
		return nil, err
	}
	if len(ids) == 0 || len(ids) > MaxBatchSize {
		return nil, errs.InvalidBatchSize
	}
	seen := make(map[uint64]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return nil, errs.InvalidBatchSize
		}
		seen[id] = true
	}

	done := observeOp("batch_settle")
	defer done()

	rec := event.NewRecorder(s.clock, s.sink)
	err := s.store.RunInTransaction(ctx, func(tx store.Tx) error {
		if err := roles.Require(ctx, tx, caller, roles.Settler); err != nil {
			return err
		}
		now := s.clock.Timestamp()

		type leg struct {
			r *Remittance
			b *fees.Breakdown
		}
		legs := make([]leg, 0, len(ids))
		for _, id := range ids {
			r, err := loadRemittance(ctx, tx, id)
			if err != nil {
				return err
			}
			if r.Expired(now) {
				return errs.SettlementExpired
			}
			settled, err := tx.Has(ctx, store.K(store.KindSettlementHash, idArg(id)))
			if err != nil {
				return err
			}
			if settled {
				return errs.DuplicateSettlement
			}
			if r.Status != lifecycle.Processing {
				return errs.InvalidStatus
			}
			breakdown, err := s.breakdownFor(ctx, tx, r)
			if err != nil {
				return err
			}
			if breakdown.PlatformFee.Cmp(r.Fee) != 0 {
				return errs.NetSettlementValidationFailed
			}
			legs = append(legs, leg{r: r, b: breakdown})
		}

		// Accumulate bilateral flows on normalized pairs.
		flows := make(map[pairKey]*pairFlow)
		totalGross := big.NewInt(0)
		for _, l := range legs {
			from, to := l.r.Sender, l.r.Agent
			amt := new(big.Int).Set(l.r.Amount)
			totalGross.Add(totalGross, l.r.Amount)

			a, b := from, to
			forward := true
			if roles.AddrKey(a) > roles.AddrKey(b) {
				a, b = b, a
				forward = false
			}
			key := pairKey{roles.AddrKey(a), roles.AddrKey(b)}
			f, ok := flows[key]
			if !ok {
				f = &pairFlow{a: a, b: b, net: big.NewInt(0), grossAB: big.NewInt(0), grossBA: big.NewInt(0)}
				flows[key] = f
			}
			if forward {
				f.net.Add(f.net, amt)
				f.grossAB.Add(f.grossAB, amt)
			} else {
				f.net.Sub(f.net, amt)
				f.grossBA.Add(f.grossBA, amt)
			}
		}

		// Closed-book check: every leg's gross must be accounted for in
		// exactly one pair aggregate.
		pairGross := big.NewInt(0)
		for _, f := range flows {
			pairGross.Add(pairGross, f.grossAB)
			pairGross.Add(pairGross, f.grossBA)
			check := new(big.Int).Sub(f.grossAB, f.grossBA)
			if check.Cmp(f.net) != 0 {
				return errs.NetSettlementValidationFailed
			}
		}
		if pairGross.Cmp(totalGross) != 0 {
			return errs.NetSettlementValidationFailed
		}

		// Finalize every leg: terminal status, fee accrual, settlement
		// marks, exactly-once settle event.
		for _, l := range legs {
			if err := s.finalizeSettlement(ctx, tx, rec, l.r, l.b); err != nil {
				return err
			}
		}

		// One transfer per pair, net-debtor → net-creditor, in
		// deterministic pair order. A zero net moves nothing.
		keys := make([]pairKey, 0, len(flows))
		for k := range flows {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			if keys[i].a != keys[j].a {
				return keys[i].a < keys[j].a
			}
			return keys[i].b < keys[j].b
		})
		for _, k := range keys {
			f := flows[k]
			if f.net.Sign() == 0 {
				continue
			}
			from, to := f.a, f.b
			amount := new(big.Int).Set(f.net)
			if amount.Sign() < 0 {
				from, to = to, from
				amount.Neg(amount)
			}
			rec.Emit(event.TopicEscrowReleased, map[string]interface{}{
				"from":   roles.AddrKey(from),
				"to":     roles.AddrKey(to),
				"amount": stroops.Format(amount),
				"netted": true,
			})
			if err := s.token.Transfer(ctx, from, to, amount); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		rec.Discard()
		return nil, err
	}
	for range ids {
		observeSettlement()
	}
	flushEvents(ctx, rec)

	settled := make([]uint64, len(ids))
	copy(settled, ids)
	return settled, nil
}
