// Package ledgertime abstracts the host clock consumed by the engine.
//
// The engine never reads the wall clock directly: expiry checks, rate-limit
// windows, and event timestamps all flow through a Clock so that tests and
// replays are deterministic.
package ledgertime

import (
	"sync/atomic"
	"time"
)

// Clock supplies ledger time to the engine.
type Clock interface {
	// Timestamp returns the current ledger time in seconds.
	Timestamp() uint64
	// Sequence returns the current ledger sequence number.
	Sequence() uint32
}

// System is a Clock backed by the OS clock. The sequence increments on
// every read, which is monotone enough for event ordering in the wrapper.
type System struct {
	seq atomic.Uint32
}

func NewSystem() *System { return &System{} }

func (s *System) Timestamp() uint64 {
	return uint64(time.Now().Unix())
}

func (s *System) Sequence() uint32 {
	return s.seq.Add(1)
}

// Manual is a hand-advanced Clock for tests.
type Manual struct {
	Now uint64
	Seq uint32
}

func (m *Manual) Timestamp() uint64 { return m.Now }
func (m *Manual) Sequence() uint32  { return m.Seq }

// Advance moves the manual clock forward by d seconds.
func (m *Manual) Advance(d uint64) { m.Now += d }
