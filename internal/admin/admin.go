// Package admin implements the engine's administrative surface:
// initialization, role and agent management, fee configuration, corridor
// management, compliance flags, pause control, and fee withdrawal.
//
// Every operation except Initialize is gated on the caller holding Admin.
// Admin operations deliberately ignore the pause flag — pause exists to
// stop user traffic, not to lock the operators out.
package admin

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/swiftremit/swiftremit/internal/errs"
	"github.com/swiftremit/swiftremit/internal/event"
	"github.com/swiftremit/swiftremit/internal/fees"
	"github.com/swiftremit/swiftremit/internal/guards"
	"github.com/swiftremit/swiftremit/internal/ledgertime"
	"github.com/swiftremit/swiftremit/internal/roles"
	"github.com/swiftremit/swiftremit/internal/store"
	"github.com/swiftremit/swiftremit/internal/stroops"
	"github.com/swiftremit/swiftremit/internal/token"
)

// Service is the admin surface.
type Service struct {
	store   store.Transactional
	token   token.Token
	clock   ledgertime.Clock
	auth    roles.Authorizer
	sink    event.Sink
	custody common.Address
}

// NewService creates the admin surface.
func NewService(st store.Transactional, tok token.Token, clock ledgertime.Clock, auth roles.Authorizer, sink event.Sink, custody common.Address) *Service {
	return &Service{store: st, token: tok, clock: clock, auth: auth, sink: sink, custody: custody}
}

// InitializeRequest carries the one-time engine configuration.
type InitializeRequest struct {
	Admin          common.Address
	TokenAddress   string
	FeeBps         uint32
	ProtocolFeeBps uint32
}

// Initialize configures the engine exactly once and grants the initial
// admin the Admin role. Re-entry fails with AlreadyInitialized.
func (s *Service) Initialize(ctx context.Context, req InitializeRequest) error {
	if err := s.auth.RequireAuth(ctx, req.Admin); err != nil {
		return err
	}
	if req.Admin == (common.Address{}) {
		return errs.InvalidAddress
	}
	if err := guards.ValidBps(req.FeeBps); err != nil {
		return err
	}
	if err := guards.ValidBps(req.ProtocolFeeBps); err != nil {
		return err
	}

	initialized, err := s.store.Has(ctx, store.K(store.KindInitialized))
	if err != nil {
		return err
	}
	if initialized {
		return errs.AlreadyInitialized
	}

	rec := event.NewRecorder(s.clock, s.sink)
	err = s.store.RunInTransaction(ctx, func(tx store.Tx) error {
		if err := tx.Set(ctx, store.K(store.KindInitialized), true); err != nil {
			return err
		}
		if err := tx.Set(ctx, store.K(store.KindTokenAddress), req.TokenAddress); err != nil {
			return err
		}
		if err := tx.Set(ctx, store.K(store.KindFeeStrategy), fees.PercentageStrategy(req.FeeBps)); err != nil {
			return err
		}
		if err := tx.Set(ctx, store.K(store.KindProtocolFeeBps), req.ProtocolFeeBps); err != nil {
			return err
		}
		if err := tx.Set(ctx, store.K(store.KindPaused), false); err != nil {
			return err
		}
		if err := tx.Set(ctx, store.K(store.KindRemittanceCounter), uint64(0)); err != nil {
			return err
		}
		if err := tx.Set(ctx, store.K(store.KindSettlementCounter), uint64(0)); err != nil {
			return err
		}
		if err := tx.Set(ctx, store.K(store.KindAccumulatedFees), big.NewInt(0)); err != nil {
			return err
		}
		if err := roles.Grant(ctx, tx, req.Admin, roles.Admin); err != nil {
			return err
		}
		rec.Emit(event.TopicRoleGranted, map[string]interface{}{
			"address": roles.AddrKey(req.Admin),
			"role":    string(roles.Admin),
		})
		return nil
	})
	if err != nil {
		rec.Discard()
		return err
	}
	return rec.Flush(ctx)
}

// gate authorizes caller and requires the Admin role.
func (s *Service) gate(ctx context.Context, caller common.Address) error {
	if err := guards.RequireInitialized(ctx, s.store); err != nil {
		return err
	}
	if err := s.auth.RequireAuth(ctx, caller); err != nil {
		return err
	}
	return roles.Require(ctx, s.store, caller, roles.Admin)
}

// AssignRole grants a role to an address.
func (s *Service) AssignRole(ctx context.Context, caller, addr common.Address, role roles.Role) error {
	if err := s.gate(ctx, caller); err != nil {
		return err
	}
	rec := event.NewRecorder(s.clock, s.sink)
	err := s.store.RunInTransaction(ctx, func(tx store.Tx) error {
		if err := roles.Grant(ctx, tx, addr, role); err != nil {
			return err
		}
		rec.Emit(event.TopicRoleGranted, map[string]interface{}{
			"address": roles.AddrKey(addr),
			"role":    string(role),
			"by":      roles.AddrKey(caller),
		})
		return nil
	})
	if err != nil {
		rec.Discard()
		return err
	}
	return rec.Flush(ctx)
}

// RemoveRole revokes a role. Removing the last Admin is rejected.
func (s *Service) RemoveRole(ctx context.Context, caller, addr common.Address, role roles.Role) error {
	if err := s.gate(ctx, caller); err != nil {
		return err
	}
	rec := event.NewRecorder(s.clock, s.sink)
	err := s.store.RunInTransaction(ctx, func(tx store.Tx) error {
		if err := roles.Revoke(ctx, tx, addr, role); err != nil {
			return err
		}
		rec.Emit(event.TopicRoleRevoked, map[string]interface{}{
			"address": roles.AddrKey(addr),
			"role":    string(role),
			"by":      roles.AddrKey(caller),
		})
		return nil
	})
	if err != nil {
		rec.Discard()
		return err
	}
	return rec.Flush(ctx)
}

// RegisterAgent adds a payout agent to the registered set and grants it
// the Settler role it needs to drive settlements.
func (s *Service) RegisterAgent(ctx context.Context, caller, agent common.Address) error {
	if err := s.gate(ctx, caller); err != nil {
		return err
	}
	if agent == (common.Address{}) {
		return errs.InvalidAddress
	}
	rec := event.NewRecorder(s.clock, s.sink)
	err := s.store.RunInTransaction(ctx, func(tx store.Tx) error {
		if err := tx.Set(ctx, store.K(store.KindAgent, roles.AddrKey(agent)), true); err != nil {
			return err
		}
		if err := roles.Grant(ctx, tx, agent, roles.Settler); err != nil {
			return err
		}
		rec.Emit(event.TopicAgentRegistered, map[string]interface{}{
			"agent": roles.AddrKey(agent),
			"by":    roles.AddrKey(caller),
		})
		return nil
	})
	if err != nil {
		rec.Discard()
		return err
	}
	return rec.Flush(ctx)
}

// RemoveAgent removes a payout agent and revokes its Settler role.
// In-flight remittances referencing the agent are unaffected.
func (s *Service) RemoveAgent(ctx context.Context, caller, agent common.Address) error {
	if err := s.gate(ctx, caller); err != nil {
		return err
	}
	registered, err := s.store.Has(ctx, store.K(store.KindAgent, roles.AddrKey(agent)))
	if err != nil {
		return err
	}
	if !registered {
		return errs.AgentNotRegistered
	}
	rec := event.NewRecorder(s.clock, s.sink)
	err = s.store.RunInTransaction(ctx, func(tx store.Tx) error {
		if err := tx.Remove(ctx, store.K(store.KindAgent, roles.AddrKey(agent))); err != nil {
			return err
		}
		if err := roles.Revoke(ctx, tx, agent, roles.Settler); err != nil && !errors.Is(err, errs.KeyNotFound) {
			return err
		}
		rec.Emit(event.TopicAgentRemoved, map[string]interface{}{
			"agent": roles.AddrKey(agent),
			"by":    roles.AddrKey(caller),
		})
		return nil
	})
	if err != nil {
		rec.Discard()
		return err
	}
	return rec.Flush(ctx)
}

// IsAgentRegistered reports whether agent is in the registered set.
func (s *Service) IsAgentRegistered(ctx context.Context, agent common.Address) (bool, error) {
	return s.store.Has(ctx, store.K(store.KindAgent, roles.AddrKey(agent)))
}

// UpdateFee replaces the global strategy with Percentage(bps).
func (s *Service) UpdateFee(ctx context.Context, caller common.Address, bps uint32) error {
	return s.SetFeeStrategy(ctx, caller, fees.PercentageStrategy(bps))
}

// SetFeeStrategy replaces the global fee strategy.
func (s *Service) SetFeeStrategy(ctx context.Context, caller common.Address, strategy fees.Strategy) error {
	if err := s.gate(ctx, caller); err != nil {
		return err
	}
	if err := strategy.Validate(); err != nil {
		return err
	}
	return s.store.Set(ctx, store.K(store.KindFeeStrategy), strategy)
}

// SetProtocolFeeBps replaces the global protocol fee rate.
func (s *Service) SetProtocolFeeBps(ctx context.Context, caller common.Address, bps uint32) error {
	if err := s.gate(ctx, caller); err != nil {
		return err
	}
	if err := guards.ValidBps(bps); err != nil {
		return err
	}
	return s.store.Set(ctx, store.K(store.KindProtocolFeeBps), bps)
}

// SetFeeCorridor installs or replaces corridor fee rules.
func (s *Service) SetFeeCorridor(ctx context.Context, caller common.Address, corridor fees.Corridor) error {
	if err := s.gate(ctx, caller); err != nil {
		return err
	}
	if err := corridor.Validate(); err != nil {
		return err
	}
	rec := event.NewRecorder(s.clock, s.sink)
	err := s.store.RunInTransaction(ctx, func(tx store.Tx) error {
		if err := tx.Set(ctx, store.K(store.KindCorridor, corridor.FromCountry, corridor.ToCountry), corridor); err != nil {
			return err
		}
		rec.Emit(event.TopicCorridorUpdated, map[string]interface{}{
			"from":     corridor.FromCountry,
			"to":       corridor.ToCountry,
			"strategy": corridor.Strategy.String(),
		})
		return nil
	})
	if err != nil {
		rec.Discard()
		return err
	}
	return rec.Flush(ctx)
}

// GetFeeCorridor returns the corridor for an ordered country pair.
func (s *Service) GetFeeCorridor(ctx context.Context, from, to string) (*fees.Corridor, error) {
	c, err := fees.CorridorFor(ctx, s.store, from, to)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, errs.KeyNotFound
	}
	return c, nil
}

// RemoveFeeCorridor deletes corridor fee rules.
func (s *Service) RemoveFeeCorridor(ctx context.Context, caller common.Address, from, to string) error {
	if err := s.gate(ctx, caller); err != nil {
		return err
	}
	return s.store.Remove(ctx, store.K(store.KindCorridor, from, to))
}

// SetRateLimit replaces the per-sender rate-limit configuration.
func (s *Service) SetRateLimit(ctx context.Context, caller common.Address, cfg guards.RateLimitConfig) error {
	if err := s.gate(ctx, caller); err != nil {
		return err
	}
	return s.store.Set(ctx, store.K(store.KindRateLimitConfig), cfg)
}

// SetDailyLimit replaces the per-sender daily amount cap.
func (s *Service) SetDailyLimit(ctx context.Context, caller common.Address, cfg guards.DailyLimitConfig) error {
	if err := s.gate(ctx, caller); err != nil {
		return err
	}
	if cfg.Enabled && (cfg.MaxAmount == nil || cfg.MaxAmount.Sign() <= 0) {
		return errs.InvalidAmount
	}
	return s.store.Set(ctx, store.K(store.KindDailyLimitConfig), cfg)
}

// SetIdempotencyTTL replaces the idempotency-record lifetime in seconds.
func (s *Service) SetIdempotencyTTL(ctx context.Context, caller common.Address, ttl uint64) error {
	if err := s.gate(ctx, caller); err != nil {
		return err
	}
	return s.store.Set(ctx, store.K(store.KindIdempotencyTTL), ttl)
}

// SetUserBlacklisted flags or unflags a principal.
func (s *Service) SetUserBlacklisted(ctx context.Context, caller, user common.Address, blacklisted bool) error {
	if err := s.gate(ctx, caller); err != nil {
		return err
	}
	key := store.K(store.KindBlacklist, roles.AddrKey(user))
	if blacklisted {
		return s.store.Set(ctx, key, true)
	}
	return s.store.Remove(ctx, key)
}

// SetKYCApproved records a KYC approval that lapses at expiry (0 = never).
func (s *Service) SetKYCApproved(ctx context.Context, caller, user common.Address, expiry uint64) error {
	if err := s.gate(ctx, caller); err != nil {
		return err
	}
	return s.store.Set(ctx, store.K(store.KindKYC, roles.AddrKey(user)),
		guards.KYCRecord{Approved: true, Expiry: expiry})
}

// RevokeKYC withdraws a principal's KYC approval.
func (s *Service) RevokeKYC(ctx context.Context, caller, user common.Address) error {
	if err := s.gate(ctx, caller); err != nil {
		return err
	}
	return s.store.Set(ctx, store.K(store.KindKYC, roles.AddrKey(user)),
		guards.KYCRecord{Approved: false})
}

// Pause stops all user-facing entry points.
func (s *Service) Pause(ctx context.Context, caller common.Address) error {
	return s.setPaused(ctx, caller, true)
}

// Unpause resumes user-facing entry points.
func (s *Service) Unpause(ctx context.Context, caller common.Address) error {
	return s.setPaused(ctx, caller, false)
}

func (s *Service) setPaused(ctx context.Context, caller common.Address, paused bool) error {
	if err := s.gate(ctx, caller); err != nil {
		return err
	}
	rec := event.NewRecorder(s.clock, s.sink)
	err := s.store.RunInTransaction(ctx, func(tx store.Tx) error {
		if err := tx.Set(ctx, store.K(store.KindPaused), paused); err != nil {
			return err
		}
		rec.Emit(event.TopicPauseChanged, map[string]interface{}{
			"paused": paused,
			"by":     roles.AddrKey(caller),
		})
		return nil
	})
	if err != nil {
		rec.Discard()
		return err
	}
	return rec.Flush(ctx)
}

// Paused reports the pause flag.
func (s *Service) Paused(ctx context.Context) (bool, error) {
	var paused bool
	if _, err := s.store.Get(ctx, store.K(store.KindPaused), &paused); err != nil {
		return false, err
	}
	return paused, nil
}

// WithdrawFees transfers the whole accumulated fee balance to the
// recipient and zeroes the counter, atomically. An empty balance is an
// error, not a no-op.
func (s *Service) WithdrawFees(ctx context.Context, caller, to common.Address) (*big.Int, error) {
	if err := s.gate(ctx, caller); err != nil {
		return nil, err
	}
	if to == (common.Address{}) {
		return nil, errs.InvalidAddress
	}

	rec := event.NewRecorder(s.clock, s.sink)
	var withdrawn *big.Int
	err := s.store.RunInTransaction(ctx, func(tx store.Tx) error {
		accrued := big.NewInt(0)
		if _, err := tx.Get(ctx, store.K(store.KindAccumulatedFees), accrued); err != nil {
			return err
		}
		if accrued.Sign() <= 0 {
			return errs.NoFeesToWithdraw
		}
		if err := tx.Set(ctx, store.K(store.KindAccumulatedFees), big.NewInt(0)); err != nil {
			return err
		}
		withdrawn = accrued
		rec.Emit(event.TopicFeesWithdrawn, map[string]interface{}{
			"to":     roles.AddrKey(to),
			"amount": stroops.Format(accrued),
			"by":     roles.AddrKey(caller),
		})
		return s.token.Transfer(ctx, s.custody, to, accrued)
	})
	if err != nil {
		rec.Discard()
		return nil, err
	}
	if err := rec.Flush(ctx); err != nil {
		return withdrawn, err
	}
	return withdrawn, nil
}
