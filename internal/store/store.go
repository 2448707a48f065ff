// Package store provides the typed key→value persistence layer for the
// settlement engine.
//
// Three tiers:
//  1. Instance — engine-level singletons (counters, fee config, pause flag)
//  2. Persistent — per-entity durable state (remittances, corridors, roles)
//  3. Temporary — TTL-bounded records (rate-limit windows, daily totals)
//
// Every mutation made by an entry point flows through a transaction
// (RunInTransaction): either all writes commit or none do.
package store

import (
	"context"
	"fmt"

	"github.com/swiftremit/swiftremit/internal/errs"
)

// Tier identifies which storage tier a key lives in.
type Tier int

const (
	Instance Tier = iota
	Persistent
	Temporary
)

func (t Tier) String() string {
	switch t {
	case Instance:
		return "instance"
	case Persistent:
		return "persistent"
	case Temporary:
		return "temporary"
	}
	return "unknown"
}

// Kind discriminates the logical collections of the keyspace. One variant
// per collection; the tier is a property of the kind, not the caller.
type Kind string

const (
	// Instance singletons.
	KindInitialized       Kind = "init"
	KindTokenAddress      Kind = "token"
	KindRemittanceCounter Kind = "remit_counter"
	KindSettlementCounter Kind = "settle_counter"
	KindAccumulatedFees   Kind = "accrued_fees"
	KindProtocolFeeBps    Kind = "protocol_bps"
	KindFeeStrategy       Kind = "fee_strategy"
	KindPaused            Kind = "paused"
	KindRateLimitConfig   Kind = "rate_limit_cfg"
	KindDailyLimitConfig  Kind = "daily_limit_cfg"
	KindIdempotencyTTL    Kind = "idem_ttl"

	// Persistent collections.
	KindRemittance        Kind = "remit"
	KindCorridor          Kind = "corridor"
	KindRole              Kind = "role"
	KindAgent             Kind = "agent"
	KindSettlementHash    Kind = "settle_hash"
	KindSettlementEmitted Kind = "settle_emitted"
	KindSettlementTime    Kind = "settle_time"
	KindBlacklist         Kind = "blacklist"
	KindKYC               Kind = "kyc"
	KindIdempotency       Kind = "idem"

	// Temporary collections.
	KindRateLimitWindow Kind = "rate_window"
	KindDailySendTotal  Kind = "daily_total"
)

// Key addresses a single record: a kind plus an optional argument
// (entity id, address, or composite).
type Key struct {
	Kind Kind
	Arg  string
}

// K builds a key from a kind and argument parts joined with '/'.
func K(kind Kind, args ...string) Key {
	arg := ""
	for i, a := range args {
		if i > 0 {
			arg += "/"
		}
		arg += a
	}
	return Key{Kind: kind, Arg: arg}
}

// Tier returns the storage tier the key's collection lives in.
func (k Key) Tier() Tier {
	switch k.Kind {
	case KindInitialized, KindTokenAddress, KindRemittanceCounter,
		KindSettlementCounter, KindAccumulatedFees, KindProtocolFeeBps,
		KindFeeStrategy, KindPaused, KindRateLimitConfig,
		KindDailyLimitConfig, KindIdempotencyTTL:
		return Instance
	case KindRateLimitWindow, KindDailySendTotal:
		return Temporary
	default:
		return Persistent
	}
}

func (k Key) String() string {
	if k.Arg == "" {
		return string(k.Kind)
	}
	return string(k.Kind) + "/" + k.Arg
}

// Store is the typed key→value contract every backend implements.
//
// Get decodes into dest and returns false when the key is absent or its TTL
// has lapsed. A value that fails to decode is reported as DataCorruption.
type Store interface {
	Get(ctx context.Context, key Key, dest interface{}) (bool, error)
	Set(ctx context.Context, key Key, value interface{}) error
	// SetTTL writes a temporary-tier record that expires at the given
	// ledger timestamp (seconds).
	SetTTL(ctx context.Context, key Key, value interface{}, expiresAt uint64) error
	Has(ctx context.Context, key Key) (bool, error)
	Remove(ctx context.Context, key Key) error
}

// Tx is the store view inside a transaction. Reads observe earlier writes in
// the same transaction.
type Tx interface {
	Store
}

// Transactional is a Store whose writes can be grouped atomically.
type Transactional interface {
	Store
	// RunInTransaction runs fn against a transactional view. If fn returns
	// an error every write is discarded; otherwise all writes commit as one.
	RunInTransaction(ctx context.Context, fn func(tx Tx) error) error
}

func corrupt(key Key, err error) error {
	return fmt.Errorf("decoding %s: %v: %w", key, err, errs.DataCorruption)
}
