package store

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/swiftremit/swiftremit/internal/ledgertime"
)

// MemoryStore is an in-memory backend for demo/development mode and tests.
// Temporary-tier records expire against the injected ledger clock, not the
// wall clock, so expiry is deterministic under a manual clock.
type MemoryStore struct {
	clock ledgertime.Clock

	mu      sync.RWMutex
	data    map[Tier]map[string][]byte
	expires map[string]uint64 // temporary-tier key -> ledger timestamp
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(clock ledgertime.Clock) *MemoryStore {
	m := &MemoryStore{
		clock:   clock,
		data:    make(map[Tier]map[string][]byte),
		expires: make(map[string]uint64),
	}
	for _, t := range []Tier{Instance, Persistent, Temporary} {
		m.data[t] = make(map[string][]byte)
	}
	return m
}

func (m *MemoryStore) expired(key Key) bool {
	if key.Tier() != Temporary {
		return false
	}
	exp, ok := m.expires[key.String()]
	return ok && m.clock.Timestamp() >= exp
}

func (m *MemoryStore) Get(ctx context.Context, key Key, dest interface{}) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.expired(key) {
		return false, nil
	}
	raw, ok := m.data[key.Tier()][key.String()]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, corrupt(key, err)
	}
	return true, nil
}

func (m *MemoryStore) Set(ctx context.Context, key Key, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return corrupt(key, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key.Tier()][key.String()] = raw
	return nil
}

func (m *MemoryStore) SetTTL(ctx context.Context, key Key, value interface{}, expiresAt uint64) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return corrupt(key, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key.Tier()][key.String()] = raw
	m.expires[key.String()] = expiresAt
	return nil
}

func (m *MemoryStore) Has(ctx context.Context, key Key) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.expired(key) {
		return false, nil
	}
	_, ok := m.data[key.Tier()][key.String()]
	return ok, nil
}

func (m *MemoryStore) Remove(ctx context.Context, key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data[key.Tier()], key.String())
	delete(m.expires, key.String())
	return nil
}

// Sweep drops all lapsed temporary records. The wrapper calls this
// periodically; correctness does not depend on it since reads check expiry.
func (m *MemoryStore) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Timestamp()
	n := 0
	for k, exp := range m.expires {
		if now >= exp {
			delete(m.data[Temporary], k)
			delete(m.expires, k)
			n++
		}
	}
	return n
}

// memTx is a copy-on-write overlay over a MemoryStore. Writes land in the
// overlay and are applied under the store lock only on commit.
type memTx struct {
	base    *MemoryStore
	writes  map[Tier]map[string][]byte
	deletes map[Tier]map[string]bool
	ttls    map[string]uint64
}

func newMemTx(base *MemoryStore) *memTx {
	tx := &memTx{
		base:    base,
		writes:  make(map[Tier]map[string][]byte),
		deletes: make(map[Tier]map[string]bool),
		ttls:    make(map[string]uint64),
	}
	for _, t := range []Tier{Instance, Persistent, Temporary} {
		tx.writes[t] = make(map[string][]byte)
		tx.deletes[t] = make(map[string]bool)
	}
	return tx
}

func (tx *memTx) Get(ctx context.Context, key Key, dest interface{}) (bool, error) {
	tier, k := key.Tier(), key.String()
	if tx.deletes[tier][k] {
		return false, nil
	}
	if raw, ok := tx.writes[tier][k]; ok {
		if err := json.Unmarshal(raw, dest); err != nil {
			return false, corrupt(key, err)
		}
		return true, nil
	}
	return tx.base.Get(ctx, key, dest)
}

func (tx *memTx) Set(ctx context.Context, key Key, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return corrupt(key, err)
	}
	tier, k := key.Tier(), key.String()
	delete(tx.deletes[tier], k)
	tx.writes[tier][k] = raw
	return nil
}

func (tx *memTx) SetTTL(ctx context.Context, key Key, value interface{}, expiresAt uint64) error {
	if err := tx.Set(ctx, key, value); err != nil {
		return err
	}
	tx.ttls[key.String()] = expiresAt
	return nil
}

func (tx *memTx) Has(ctx context.Context, key Key) (bool, error) {
	tier, k := key.Tier(), key.String()
	if tx.deletes[tier][k] {
		return false, nil
	}
	if _, ok := tx.writes[tier][k]; ok {
		return true, nil
	}
	return tx.base.Has(ctx, key)
}

func (tx *memTx) Remove(ctx context.Context, key Key) error {
	tier, k := key.Tier(), key.String()
	delete(tx.writes[tier], k)
	tx.deletes[tier][k] = true
	return nil
}

// RunInTransaction runs fn against an overlay and commits its writes
// atomically on success. Entry points are serialized by the host, so a
// single commit lock is sufficient.
func (m *MemoryStore) RunInTransaction(ctx context.Context, fn func(tx Tx) error) error {
	tx := newMemTx(m)
	if err := fn(tx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for tier, dels := range tx.deletes {
		for k := range dels {
			delete(m.data[tier], k)
			delete(m.expires, k)
		}
	}
	for tier, writes := range tx.writes {
		for k, raw := range writes {
			m.data[tier][k] = raw
		}
	}
	for k, exp := range tx.ttls {
		m.expires[k] = exp
	}
	return nil
}

var (
	_ Transactional = (*MemoryStore)(nil)
	_ Tx            = (*memTx)(nil)
)
