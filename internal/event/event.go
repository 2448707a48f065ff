// Package event provides the schema-versioned, append-only audit log.
//
// Every state change the engine makes emits an Envelope. Envelopes are
// staged in a Recorder during an entry point and flushed to the configured
// sinks only after the storage transaction commits; on rollback the staged
// envelopes are discarded and never observed.
package event

import (
	"context"

	"github.com/swiftremit/swiftremit/internal/ledgertime"
)

// SchemaVersion is the current payload schema. Consumers parse this first;
// incompatible evolutions must bump it.
const SchemaVersion uint32 = 1

// Topic is a two-symbol topic pair.
type Topic [2]string

var (
	TopicRemitCreated    = Topic{"remit", "created"}
	TopicStatusTransit   = Topic{"status", "transit"}
	TopicSettleComplete  = Topic{"settle", "complete"}
	TopicEscrowReleased  = Topic{"escrow", "released"}
	TopicFeesWithdrawn   = Topic{"fees", "withdraw"}
	TopicRoleGranted     = Topic{"role", "granted"}
	TopicRoleRevoked     = Topic{"role", "revoked"}
	TopicAgentRegistered = Topic{"agent", "registered"}
	TopicAgentRemoved    = Topic{"agent", "removed"}
	TopicCorridorUpdated = Topic{"corridor", "updated"}
	TopicPauseChanged    = Topic{"admin", "pause"}
)

// Envelope is one append-only audit record.
type Envelope struct {
	Topics         Topic                  `json:"topics"`
	SchemaVersion  uint32                 `json:"schemaVersion"`
	LedgerSequence uint32                 `json:"ledgerSequence"`
	Timestamp      uint64                 `json:"timestamp"`
	Data           map[string]interface{} `json:"data"`
}

// Sink receives committed envelopes.
type Sink interface {
	Append(ctx context.Context, e *Envelope) error
}

// MultiSink fans committed envelopes out to several sinks in order.
type MultiSink []Sink

func (m MultiSink) Append(ctx context.Context, e *Envelope) error {
	for _, s := range m {
		if err := s.Append(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// Recorder stages envelopes for one entry point.
//
// Emit stamps the envelope from the ledger clock at emission time so events
// within an entry point carry their in-flight order. Flush hands everything
// to the sink; Discard drops it. A Recorder is not reused across entry
// points.
type Recorder struct {
	clock  ledgertime.Clock
	sink   Sink
	staged []*Envelope
}

// NewRecorder creates a recorder staging into the given sink.
func NewRecorder(clock ledgertime.Clock, sink Sink) *Recorder {
	return &Recorder{clock: clock, sink: sink}
}

// Emit stages one envelope.
func (r *Recorder) Emit(topics Topic, data map[string]interface{}) {
	r.staged = append(r.staged, &Envelope{
		Topics:         topics,
		SchemaVersion:  SchemaVersion,
		LedgerSequence: r.clock.Sequence(),
		Timestamp:      r.clock.Timestamp(),
		Data:           data,
	})
}

// Staged returns the number of staged envelopes.
func (r *Recorder) Staged() int { return len(r.staged) }

// Flush appends every staged envelope to the sink in emission order and
// clears the stage.
func (r *Recorder) Flush(ctx context.Context) error {
	for _, e := range r.staged {
		if err := r.sink.Append(ctx, e); err != nil {
			return err
		}
	}
	r.staged = nil
	return nil
}

// Discard drops all staged envelopes without emitting them.
func (r *Recorder) Discard() { r.staged = nil }
