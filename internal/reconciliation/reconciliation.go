// Package reconciliation cross-checks the engine's books against the audit
// log and the custody token balance.
//
// Two checks run:
//  1. The settlement counter must equal the number of settle events ever
//     committed — every finalization is evented exactly once.
//  2. The custody balance must cover the undistributed accumulated fees —
//     fee withdrawal can never be left unbacked.
package reconciliation

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/swiftremit/swiftremit/internal/event"
	"github.com/swiftremit/swiftremit/internal/stroops"
)

// EventCounter counts committed audit records by topic.
type EventCounter interface {
	CountByTopic(ctx context.Context, topics event.Topic) (int64, error)
}

// EngineBooks exposes the engine aggregates under reconciliation.
type EngineBooks interface {
	SettlementCounter(ctx context.Context) (uint64, error)
	AccumulatedFees(ctx context.Context) (*big.Int, error)
}

// BalanceReader reads the custody token balance.
type BalanceReader interface {
	BalanceOf(ctx context.Context, addr common.Address) (*big.Int, error)
}

// Result holds one reconciliation run's outcome.
type Result struct {
	Healthy bool `json:"healthy"`

	SettlementCounter uint64 `json:"settlementCounter"`
	SettleEvents      int64  `json:"settleEvents"`
	CounterMatch      bool   `json:"counterMatch"`

	CustodyBalance  string `json:"custodyBalance"`
	AccumulatedFees string `json:"accumulatedFees"`
	FeesBacked      bool   `json:"feesBacked"`
}

// Mismatches tracks reconciliation failures across runs.
var Mismatches = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "swiftremit",
	Name:      "reconciliation_mismatches_total",
	Help:      "Total reconciliation runs that found the books inconsistent.",
})

func init() {
	prometheus.MustRegister(Mismatches)
}

// Service runs book reconciliation.
type Service struct {
	events  EventCounter
	books   EngineBooks
	token   BalanceReader
	custody common.Address
}

// NewService creates a reconciliation service.
func NewService(events EventCounter, books EngineBooks, token BalanceReader, custody common.Address) *Service {
	return &Service{events: events, books: books, token: token, custody: custody}
}

// Run executes both checks and returns the combined result.
func (s *Service) Run(ctx context.Context) (*Result, error) {
	counter, err := s.books.SettlementCounter(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading settlement counter: %w", err)
	}
	settleEvents, err := s.events.CountByTopic(ctx, event.TopicSettleComplete)
	if err != nil {
		return nil, fmt.Errorf("counting settle events: %w", err)
	}

	fees, err := s.books.AccumulatedFees(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading accumulated fees: %w", err)
	}
	custodyBal, err := s.token.BalanceOf(ctx, s.custody)
	if err != nil {
		return nil, fmt.Errorf("reading custody balance: %w", err)
	}

	result := &Result{
		SettlementCounter: counter,
		SettleEvents:      settleEvents,
		CounterMatch:      settleEvents == int64(counter),
		CustodyBalance:    stroops.Format(custodyBal),
		AccumulatedFees:   stroops.Format(fees),
		FeesBacked:        custodyBal.Cmp(fees) >= 0,
	}
	result.Healthy = result.CounterMatch && result.FeesBacked
	if !result.Healthy {
		Mismatches.Inc()
	}
	return result, nil
}
