// Package fees computes platform and protocol fees for remittances.
//
// The fee service is the only place in the engine that does fee math.
// Strategies are a closed tagged union — adding a variant must extend the
// switch in platformFee, which the compiler and tests enforce.
package fees

import (
	"context"
	"fmt"
	"math/big"

	"github.com/swiftremit/swiftremit/internal/errs"
	"github.com/swiftremit/swiftremit/internal/stroops"
)

// BpsDivisor converts basis points to a fraction: 1 bps = 1/10000.
const BpsDivisor = 10_000

// MaxBps is the largest admissible basis-point value (100%).
const MaxBps = 10_000

// StrategyKind tags the fee strategy union.
type StrategyKind string

const (
	Percentage StrategyKind = "percentage"
	Flat       StrategyKind = "flat"
	Dynamic    StrategyKind = "dynamic"
)

// Strategy is the tagged fee-strategy union. Exactly one variant's fields
// are meaningful, selected by Kind.
type Strategy struct {
	Kind StrategyKind `json:"kind"`
	// Bps applies to Percentage.
	Bps uint32 `json:"bps,omitempty"`
	// FlatAmount applies to Flat; stroops, must be >= 0.
	FlatAmount *big.Int `json:"flatAmount,omitempty"`
	// BaseBps applies to Dynamic.
	BaseBps uint32 `json:"baseBps,omitempty"`
}

// PercentageStrategy builds a Percentage strategy.
func PercentageStrategy(bps uint32) Strategy {
	return Strategy{Kind: Percentage, Bps: bps}
}

// FlatStrategy builds a Flat strategy.
func FlatStrategy(amount *big.Int) Strategy {
	return Strategy{Kind: Flat, FlatAmount: amount}
}

// DynamicStrategy builds a Dynamic strategy.
func DynamicStrategy(baseBps uint32) Strategy {
	return Strategy{Kind: Dynamic, BaseBps: baseBps}
}

// Validate checks the strategy's variant constraints.
func (s Strategy) Validate() error {
	switch s.Kind {
	case Percentage:
		if s.Bps > MaxBps {
			return errs.InvalidFeeBps
		}
	case Flat:
		if s.FlatAmount == nil || s.FlatAmount.Sign() < 0 {
			return errs.InvalidAmount
		}
	case Dynamic:
		if s.BaseBps > MaxBps {
			return errs.InvalidFeeBps
		}
	default:
		return errs.InvalidSymbol
	}
	return nil
}

func (s Strategy) String() string {
	switch s.Kind {
	case Percentage:
		return fmt.Sprintf("percentage(%d)", s.Bps)
	case Flat:
		return fmt.Sprintf("flat(%s)", stroops.Format(s.FlatAmount))
	case Dynamic:
		return fmt.Sprintf("dynamic(%d)", s.BaseBps)
	}
	return "unknown"
}

// Dynamic tier thresholds, denominated in whole stablecoin units.
var (
	dynamicTier1 = new(big.Int).Mul(big.NewInt(1_000), stroops.PerUnit)
	dynamicTier2 = new(big.Int).Mul(big.NewInt(10_000), stroops.PerUnit)
)

// Corridor overrides fee rules for an ordered country pair.
type Corridor struct {
	FromCountry    string   `json:"fromCountry"`
	ToCountry      string   `json:"toCountry"`
	Strategy       Strategy `json:"strategy"`
	ProtocolFeeBps *uint32  `json:"protocolFeeBps,omitempty"`
}

// Validate checks the corridor's fields.
func (c Corridor) Validate() error {
	if c.FromCountry == "" || c.ToCountry == "" {
		return errs.InvalidSymbol
	}
	if c.ProtocolFeeBps != nil && *c.ProtocolFeeBps > MaxBps {
		return errs.InvalidFeeBps
	}
	return c.Strategy.Validate()
}

// Breakdown is a computed fee decomposition. It is derived, never stored.
type Breakdown struct {
	Amount          *big.Int `json:"amount"`
	PlatformFee     *big.Int `json:"platformFee"`
	ProtocolFee     *big.Int `json:"protocolFee"`
	TotalFees       *big.Int `json:"totalFees"`
	NetAmount       *big.Int `json:"netAmount"`
	StrategyUsed    string   `json:"strategyUsed"`
	CorridorApplied string   `json:"corridorApplied,omitempty"`
}

// Validate checks the breakdown's internal arithmetic:
// platform+protocol = total, amount-total = net, everything >= 0.
func (b *Breakdown) Validate() error {
	for _, v := range []*big.Int{b.Amount, b.PlatformFee, b.ProtocolFee, b.TotalFees, b.NetAmount} {
		if v == nil || v.Sign() < 0 {
			return errs.NetSettlementValidationFailed
		}
	}
	sum := new(big.Int).Add(b.PlatformFee, b.ProtocolFee)
	if sum.Cmp(b.TotalFees) != 0 {
		return errs.NetSettlementValidationFailed
	}
	net := new(big.Int).Sub(b.Amount, b.TotalFees)
	if net.Cmp(b.NetAmount) != 0 {
		return errs.NetSettlementValidationFailed
	}
	return nil
}

// Config supplies the engine-wide fee configuration.
type Config interface {
	FeeStrategy(ctx context.Context) (Strategy, error)
	ProtocolFeeBps(ctx context.Context) (uint32, error)
}

// Service computes fee breakdowns. Stateless except for reading config.
type Service struct {
	config Config
}

// NewService creates a fee service reading the given configuration.
func NewService(config Config) *Service {
	return &Service{config: config}
}

// Calculate returns the full breakdown for amount under the corridor's
// rules when corridor is non-nil, or the global configuration otherwise.
func (s *Service) Calculate(ctx context.Context, amount *big.Int, corridor *Corridor) (*Breakdown, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, errs.InvalidAmount
	}
	if !stroops.InRange(amount) {
		return nil, errs.Overflow
	}

	strategy, err := s.config.FeeStrategy(ctx)
	if err != nil {
		return nil, err
	}
	protocolBps, err := s.config.ProtocolFeeBps(ctx)
	if err != nil {
		return nil, err
	}

	corridorApplied := ""
	if corridor != nil {
		if err := corridor.Validate(); err != nil {
			return nil, err
		}
		strategy = corridor.Strategy
		if corridor.ProtocolFeeBps != nil {
			protocolBps = *corridor.ProtocolFeeBps
		}
		corridorApplied = corridor.FromCountry + "-" + corridor.ToCountry
	}
	if protocolBps > MaxBps {
		return nil, errs.InvalidFeeBps
	}

	platformFee, err := platformFee(amount, strategy)
	if err != nil {
		return nil, err
	}
	protocolFee, err := stroops.MulDiv(amount, int64(protocolBps), BpsDivisor)
	if err != nil {
		return nil, err
	}

	total, err := stroops.CheckedAdd(platformFee, protocolFee)
	if err != nil {
		return nil, err
	}
	if total.Cmp(amount) > 0 {
		// Fees exceeding the principal mean the fee config is invalid.
		return nil, errs.InvalidFeeBps
	}

	b := &Breakdown{
		Amount:          new(big.Int).Set(amount),
		PlatformFee:     platformFee,
		ProtocolFee:     protocolFee,
		TotalFees:       total,
		NetAmount:       new(big.Int).Sub(amount, total),
		StrategyUsed:    strategy.String(),
		CorridorApplied: corridorApplied,
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// PlatformFee returns only the platform portion for amount under the given
// strategy. Used at create time where the protocol portion is deferred.
func (s *Service) PlatformFee(ctx context.Context, amount *big.Int, corridor *Corridor) (*big.Int, error) {
	b, err := s.Calculate(ctx, amount, corridor)
	if err != nil {
		return nil, err
	}
	return b.PlatformFee, nil
}

func platformFee(amount *big.Int, s Strategy) (*big.Int, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	switch s.Kind {
	case Percentage:
		return stroops.MulDiv(amount, int64(s.Bps), BpsDivisor)
	case Flat:
		return new(big.Int).Set(s.FlatAmount), nil
	case Dynamic:
		bps := int64(s.BaseBps)
		switch {
		case amount.Cmp(dynamicTier1) < 0:
			// base rate
		case amount.Cmp(dynamicTier2) < 0:
			bps /= 2
		default:
			bps /= 4
		}
		return stroops.MulDiv(amount, bps, BpsDivisor)
	}
	return nil, errs.InvalidSymbol
}
