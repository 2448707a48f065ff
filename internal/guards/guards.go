// Package guards implements the pre-flight checks run at every user-facing
// entry point: pause gate, rate limit, daily send limit, blacklist, KYC,
// idempotency, and input validation.
//
// Checks are ordered cheapest first and never mutate state on failure; the
// rate-limit counter increment happens inside the entry point's transaction
// so a later failure rolls it back.
package guards

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/swiftremit/swiftremit/internal/errs"
	"github.com/swiftremit/swiftremit/internal/ledgertime"
	"github.com/swiftremit/swiftremit/internal/roles"
	"github.com/swiftremit/swiftremit/internal/store"
	"github.com/swiftremit/swiftremit/internal/stroops"
)

// MaxIdempotencyKeyLen bounds client-supplied idempotency keys.
const MaxIdempotencyKeyLen = 255

// rateLimitSafetyMargin extends the temporary record's TTL past the window
// so a window is never resurrected early by record expiry.
const rateLimitSafetyMargin = 60

// RateLimitConfig is the per-sender fixed-window limit.
type RateLimitConfig struct {
	Enabled       bool   `json:"enabled"`
	MaxOps        uint32 `json:"maxOps"`
	WindowSeconds uint64 `json:"windowSeconds"`
}

// RateLimitEntry tracks one sender's current window. Lives in temporary
// storage with TTL = window + safety margin.
type RateLimitEntry struct {
	WindowStart uint64 `json:"windowStart"`
	Count       uint32 `json:"count"`
}

// DailyLimitConfig caps the total amount a sender may move per UTC day.
type DailyLimitConfig struct {
	Enabled   bool     `json:"enabled"`
	MaxAmount *big.Int `json:"maxAmount"`
}

// KYCRecord is an admin-set approval with expiry.
type KYCRecord struct {
	Approved bool   `json:"approved"`
	Expiry   uint64 `json:"expiry"`
}

// IdempotencyRecord caches the outcome of a keyed request.
type IdempotencyRecord struct {
	Key          string `json:"key"`
	RequestHash  string `json:"requestHash"` // hex SHA-256
	RemittanceID uint64 `json:"remittanceId"`
	ExpiresAt    uint64 `json:"expiresAt"`
}

// DefaultIdempotencyTTL is used when the instance config is unset.
const DefaultIdempotencyTTL uint64 = 86_400

// RequireNotPaused rejects the call when the engine is paused.
func RequireNotPaused(ctx context.Context, s store.Store) error {
	var paused bool
	if _, err := s.Get(ctx, store.K(store.KindPaused), &paused); err != nil {
		return err
	}
	if paused {
		return errs.ContractPaused
	}
	return nil
}

// RequireInitialized rejects the call before initialization.
func RequireInitialized(ctx context.Context, s store.Store) error {
	ok, err := s.Has(ctx, store.K(store.KindInitialized))
	if err != nil {
		return err
	}
	if !ok {
		return errs.NotInitialized
	}
	return nil
}

// RequireNotBlacklisted rejects blacklisted principals.
func RequireNotBlacklisted(ctx context.Context, s store.Store, addr common.Address) error {
	ok, err := s.Has(ctx, store.K(store.KindBlacklist, roles.AddrKey(addr)))
	if err != nil {
		return err
	}
	if ok {
		return errs.Unauthorized
	}
	return nil
}

// RequireKYC rejects principals whose KYC approval is revoked or lapsed.
// A principal with no KYC record passes: approval is opt-in configuration.
func RequireKYC(ctx context.Context, s store.Store, clock ledgertime.Clock, addr common.Address) error {
	var rec KYCRecord
	ok, err := s.Get(ctx, store.K(store.KindKYC, roles.AddrKey(addr)), &rec)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if !rec.Approved || (rec.Expiry != 0 && clock.Timestamp() >= rec.Expiry) {
		return errs.Unauthorized
	}
	return nil
}

// CheckRateLimit enforces the per-sender fixed window and records the
// operation. Call inside the entry point's transaction so the increment
// rolls back with everything else.
func CheckRateLimit(ctx context.Context, tx store.Tx, clock ledgertime.Clock, sender common.Address) error {
	var cfg RateLimitConfig
	ok, err := tx.Get(ctx, store.K(store.KindRateLimitConfig), &cfg)
	if err != nil {
		return err
	}
	if !ok || !cfg.Enabled || cfg.MaxOps == 0 {
		return nil
	}

	now := clock.Timestamp()
	key := store.K(store.KindRateLimitWindow, roles.AddrKey(sender))

	var entry RateLimitEntry
	found, err := tx.Get(ctx, key, &entry)
	if err != nil {
		return err
	}
	if !found || now >= entry.WindowStart+cfg.WindowSeconds {
		entry = RateLimitEntry{WindowStart: now, Count: 0}
	}
	if entry.Count >= cfg.MaxOps {
		return errs.RateLimitExceeded
	}
	entry.Count++
	return tx.SetTTL(ctx, key, entry, entry.WindowStart+cfg.WindowSeconds+rateLimitSafetyMargin)
}

// CheckDailyLimit enforces the per-sender daily amount cap and records the
// spend. The day boundary is the UTC calendar day of the ledger timestamp.
func CheckDailyLimit(ctx context.Context, tx store.Tx, clock ledgertime.Clock, sender common.Address, amount *big.Int) error {
	var cfg DailyLimitConfig
	ok, err := tx.Get(ctx, store.K(store.KindDailyLimitConfig), &cfg)
	if err != nil {
		return err
	}
	if !ok || !cfg.Enabled || cfg.MaxAmount == nil {
		return nil
	}

	now := clock.Timestamp()
	day := now / 86_400
	key := store.K(store.KindDailySendTotal, roles.AddrKey(sender), strconv.FormatUint(day, 10))

	total := big.NewInt(0)
	if _, err := tx.Get(ctx, key, total); err != nil {
		return err
	}
	next, err := stroops.CheckedAdd(total, amount)
	if err != nil {
		return err
	}
	if next.Cmp(cfg.MaxAmount) > 0 {
		return errs.DailySendLimitExceeded
	}
	return tx.SetTTL(ctx, key, next, (day+1)*86_400+rateLimitSafetyMargin)
}

// HashRequest derives the idempotency request hash from the canonical
// request parts.
func HashRequest(parts ...[]byte) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// CheckIdempotency looks up a non-expired record for key. A hit with a
// matching request hash returns the record for short-circuiting; a hit with
// a different hash is a conflict. A miss returns (nil, nil).
func CheckIdempotency(ctx context.Context, s store.Store, clock ledgertime.Clock, key, requestHash string) (*IdempotencyRecord, error) {
	if key == "" {
		return nil, nil
	}
	if len(key) > MaxIdempotencyKeyLen {
		return nil, errs.InvalidSymbol
	}

	var rec IdempotencyRecord
	ok, err := s.Get(ctx, store.K(store.KindIdempotency, key), &rec)
	if err != nil {
		return nil, err
	}
	if !ok || clock.Timestamp() >= rec.ExpiresAt {
		return nil, nil
	}
	if rec.RequestHash != requestHash {
		return nil, errs.IdempotencyConflict
	}
	return &rec, nil
}

// SaveIdempotency persists the record for a successful keyed request.
func SaveIdempotency(ctx context.Context, tx store.Tx, clock ledgertime.Clock, key, requestHash string, remittanceID uint64) error {
	if key == "" {
		return nil
	}
	ttl := DefaultIdempotencyTTL
	var configured uint64
	if ok, err := tx.Get(ctx, store.K(store.KindIdempotencyTTL), &configured); err != nil {
		return err
	} else if ok && configured > 0 {
		ttl = configured
	}
	rec := IdempotencyRecord{
		Key:          key,
		RequestHash:  requestHash,
		RemittanceID: remittanceID,
		ExpiresAt:    clock.Timestamp() + ttl,
	}
	return tx.Set(ctx, store.K(store.KindIdempotency, key), rec)
}

// ValidAmount rejects non-positive or out-of-range amounts.
func ValidAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return errs.InvalidAmount
	}
	if !stroops.InRange(amount) {
		return errs.Overflow
	}
	return nil
}

// ValidBps rejects basis points above 100%.
func ValidBps(bps uint32) error {
	if bps > 10_000 {
		return errs.InvalidFeeBps
	}
	return nil
}

// ValidExpiry rejects an expiry that is not strictly in the future.
// A nil expiry means the remittance never expires.
func ValidExpiry(clock ledgertime.Clock, expiry *uint64) error {
	if expiry == nil {
		return nil
	}
	if *expiry <= clock.Timestamp() {
		return errs.SettlementExpired
	}
	return nil
}
